package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
	"github.com/GriffinCanCode/soundwatch/internal/grpcserver"
	"github.com/GriffinCanCode/soundwatch/internal/trace"
)

func newHealthCmd(opts *rootOptions) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check whether a running detector is listening",
		Long: `health asks a running "soundwatch serve" for the gRPC health of the
detector service. It exits non-zero unless the detector is SERVING.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = opts.cfg.GRPCAddr
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			ctx, span := trace.StartSpan(ctx, "health_check")
			defer span.End()

			conn, err := grpcserver.Dial(addr)
			if err != nil {
				return err
			}
			defer conn.Close()

			st, err := grpcserver.CheckHealth(ctx, conn, grpcserver.ServiceName)
			if err != nil {
				span.SetError(err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", grpcserver.ServiceName, st)
			if st != healthpb.HealthCheckResponse_SERVING {
				return apperrors.Newf(apperrors.CodeUnavailable, "detector is %s", st).WithMetadata("addr", addr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gRPC address (default GRPC_ADDR)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for an answer")
	return cmd
}
