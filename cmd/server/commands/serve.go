package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/soundwatch/internal/audio"
	"github.com/GriffinCanCode/soundwatch/internal/clips"
	"github.com/GriffinCanCode/soundwatch/internal/config"
	"github.com/GriffinCanCode/soundwatch/internal/grpcserver"
	"github.com/GriffinCanCode/soundwatch/internal/orchestrator"
	"github.com/GriffinCanCode/soundwatch/internal/patternwatch"
	"github.com/GriffinCanCode/soundwatch/internal/resilience"
	"github.com/GriffinCanCode/soundwatch/internal/server"
	"github.com/GriffinCanCode/soundwatch/internal/store"
	"github.com/GriffinCanCode/soundwatch/internal/trace"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		input     string
		inputRate int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the detector with its HTTP, WebSocket and gRPC surfaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, root.cfg, sourceFor(root.cfg, input, inputRate))
		},
	}
	cmd.Flags().StringVar(&input, "input", "", `raw s16le mono PCM file, or "-" for stdin, instead of a microphone`)
	cmd.Flags().IntVar(&inputRate, "input-rate", 0, "sample rate of --input (default from config)")
	return cmd
}

// sourceFor picks the microphone unless a PCM input was given.
func sourceFor(cfg *config.Config, input string, rate int) audio.Source {
	if rate <= 0 {
		rate = cfg.SampleRate
	}
	switch input {
	case "":
		return audio.NewCapturer(audio.CaptureConfig{
			SampleRate:      cfg.SampleRate,
			FramesPerBuffer: cfg.FramesPerBuffer,
			Device:          cfg.AudioDevice,
			ExcludedDevices: cfg.ExcludedAudioDevices,
		})
	case "-":
		return audio.NewReaderSource("stdin", rate, os.Stdin)
	default:
		return audio.NewStreamSource(input, rate, func(context.Context) (io.ReadCloser, error) {
			return os.Open(input)
		})
	}
}

func serve(ctx context.Context, cfg *config.Config, src audio.Source) error {
	ctx, _ = trace.EnsureContext(ctx)
	log := trace.Logger(ctx)
	log.Info("soundwatch starting", "config", cfg.String(), "source", src.Name())

	st, err := store.Open(store.Options{Dir: cfg.DataDir, InMemory: cfg.DataDir == ""})
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("store close error", "error", err)
		}
	}()

	archiver, err := newArchiver(cfg)
	if err != nil {
		return err
	}

	var srv *server.Server
	sink := newDetectionSink(st, archiver, func(ctx context.Context, ev orchestrator.DetectionEvent) {
		srv.Broadcast(ctx, ev)
	})
	det := orchestrator.New(src, orchestrator.ConfigFrom(cfg), orchestrator.WithHandler(sink.Handle))
	srv = server.New(det, st)

	if err := restorePatterns(ctx, st, det); err != nil {
		return err
	}

	var bg sync.WaitGroup
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.PatternDir != "" {
		w := patternwatch.New(cfg.PatternDir, det.Config().SampleRate, det)
		bg.Go(func() {
			if err := w.Run(runCtx); err != nil {
				log.Error("pattern watcher stopped", "dir", cfg.PatternDir, "error", err)
			}
		})
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	bg.Go(func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
			cancel()
		}
	})

	grpcSrv := grpcserver.New(det)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	bg.Go(func() {
		log.Info("grpc server listening", "addr", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("grpc server error", "error", err)
		}
	})
	bg.Go(func() { grpcSrv.Run(runCtx) })

	// A missing microphone is not fatal; detection can be started later over HTTP.
	bg.Go(func() {
		err := resilience.Retry(runCtx, resilience.DeviceRetryConfig(), func() error { return det.Start(runCtx) })
		if err != nil && runCtx.Err() == nil {
			log.Warn("detector not started", "error", err)
		}
	})

	<-runCtx.Done()
	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown error", "error", err)
	}
	grpcSrv.Stop()
	det.Stop()
	bg.Wait()
	sink.Wait()
	log.Info("shutdown complete")
	return nil
}

func newArchiver(cfg *config.Config) (*clips.Archiver, error) {
	switch {
	case cfg.S3Bucket != "":
		client := clips.NewS3Client(clips.S3Config{
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			PathStyle:       cfg.S3PathStyle,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		return clips.NewArchiver(clips.NewS3(client, cfg.S3Bucket, cfg.S3Prefix)), nil
	case cfg.ClipDir != "":
		local, err := clips.NewLocal(cfg.ClipDir)
		if err != nil {
			return nil, err
		}
		return clips.NewArchiver(local), nil
	default:
		return nil, nil
	}
}

// restorePatterns registers every stored pattern, converting clips recorded
// at another sample rate.
func restorePatterns(ctx context.Context, st *store.Store, det *orchestrator.Orchestrator) error {
	recs, err := st.LoadPatterns()
	if err != nil {
		return err
	}
	rate := det.Config().SampleRate
	for _, rec := range recs {
		samples := rec.Samples
		if rec.SampleRate > 0 && rec.SampleRate != rate {
			if samples, err = audio.Resample(samples, rec.SampleRate, rate); err != nil {
				slog.Warn("skipping stored pattern", "pattern", rec.Name, "error", err)
				continue
			}
		}
		if _, _, err := det.AddReferencePattern(ctx, rec.Name, samples, rec.Active); err != nil {
			slog.Warn("skipping stored pattern", "pattern", rec.Name, "error", err)
		}
	}
	return nil
}
