package grpcserver

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
	"github.com/GriffinCanCode/soundwatch/internal/trace"
)

// Dial opens a client connection to a soundwatch gRPC server. Calls carry
// the caller's trace context. A bare ":port" address means localhost.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    DefaultKeepaliveTime,
			Timeout: DefaultKeepaliveTimeout,
		}),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "create grpc client").WithMetadata("addr", addr)
	}
	return conn, nil
}

// CheckHealth asks the server for the serving status of service ("" for the
// whole server). gRPC failures come back as AppErrors.
func CheckHealth(ctx context.Context, cc grpc.ClientConnInterface, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(cc).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, apperrors.FromGRPCError(err).WithMetadata("service", service)
	}
	return resp.GetStatus(), nil
}
