package grpcserver

import "time"

// ServiceName is the health-checked detector service.
const ServiceName = "soundwatch.Detector"

// Server defaults
const (
	// Keepalive configuration
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second
	MinClientPingInterval   = 5 * time.Second

	// How often detector state is mirrored into the health service
	HealthPollInterval = time.Second
)
