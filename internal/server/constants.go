package server

import "time"

// Server configuration constants
const (
	// Per-connection websocket rate limit
	RateLimitMessages = 20
	RateLimitWindow   = time.Second

	// Broadcast writes that take longer are dropped for that client
	BroadcastTimeout = 2 * time.Second

	// Largest accepted pattern upload (JSON samples or WAV body)
	MaxPatternBodyBytes = 32 << 20

	DefaultSoundTypeSeconds = 2.0
	MaxSoundTypeSeconds     = 30.0

	DefaultDetectionLimit = 50
	MaxDetectionLimit     = 1000
)
