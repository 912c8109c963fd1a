// Package grpcserver exposes the detector's liveness over the standard gRPC
// health protocol.
package grpcserver

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/GriffinCanCode/soundwatch/internal/trace"
)

// RunningReporter reports whether detection is live.
type RunningReporter interface {
	IsRunning() bool
}

// Server serves grpc.health.v1. The overall status is always SERVING;
// ServiceName follows the detector.
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	det     RunningReporter
	serving atomic.Bool
}

// New builds the gRPC server with trace interceptors and keepalive settings.
func New(det RunningReporter) *Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(trace.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(trace.StreamServerInterceptor()),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    DefaultKeepaliveTime,
			Timeout: DefaultKeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             MinClientPingInterval,
			PermitWithoutStream: true,
		}),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{grpc: gs, health: hs, det: det}
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Sync copies the detector state into the health service and reports the
// status it set.
func (s *Server) Sync() healthpb.HealthCheckResponse_ServingStatus {
	running := s.det.IsRunning()
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if running {
		status = healthpb.HealthCheckResponse_SERVING
	}
	if s.serving.Swap(running) != running {
		trace.Logger(context.Background()).Info("detector health changed", "service", ServiceName, "status", status.String())
	}
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Run syncs health every HealthPollInterval until ctx is done.
func (s *Server) Run(ctx context.Context) {
	t := time.NewTicker(HealthPollInterval)
	defer t.Stop()
	s.Sync()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sync()
		}
	}
}

// Stop marks everything NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
