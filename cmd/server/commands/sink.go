package commands

import (
	"context"
	"errors"
	"sync"

	"github.com/GriffinCanCode/soundwatch/internal/clips"
	"github.com/GriffinCanCode/soundwatch/internal/orchestrator"
	"github.com/GriffinCanCode/soundwatch/internal/resilience"
	"github.com/GriffinCanCode/soundwatch/internal/store"
	"github.com/GriffinCanCode/soundwatch/internal/trace"
)

// detectionSink fans a detection out to websocket clients, the clip archive
// and history. Archiving and persistence run off the detection goroutine.
type detectionSink struct {
	store     *store.Store
	archiver  *clips.Archiver // nil disables clip archiving
	broadcast func(ctx context.Context, ev orchestrator.DetectionEvent)

	// Uploads retry transient failures; a failing archive backend trips the
	// breaker so detections are recorded without clips until it recovers.
	breaker *resilience.Breaker
	retry   resilience.RetryConfig

	wg sync.WaitGroup
}

func newDetectionSink(st *store.Store, archiver *clips.Archiver, broadcast func(context.Context, orchestrator.DetectionEvent)) *detectionSink {
	return &detectionSink{
		store:     st,
		archiver:  archiver,
		broadcast: broadcast,
		breaker:   resilience.New(resilience.Config{Name: "clip-archive"}),
		retry:     resilience.DefaultRetryConfig(),
	}
}

// Handle is an orchestrator.Handler.
func (s *detectionSink) Handle(ctx context.Context, ev orchestrator.DetectionEvent) {
	if s.broadcast != nil {
		s.broadcast(ctx, ev)
	}
	ctx = context.WithoutCancel(ctx)
	s.wg.Go(func() { s.persist(ctx, ev) })
}

func (s *detectionSink) persist(ctx context.Context, ev orchestrator.DetectionEvent) {
	log := trace.Logger(ctx).With("detection", ev.ID)
	rec := store.DetectionRecord{
		ID:          ev.ID,
		PatternName: ev.PatternName,
		Confidence:  ev.Confidence,
		Timestamp:   ev.Timestamp,
		Samples:     len(ev.AudioWindow),
	}
	if s.archiver != nil {
		path, err := s.archive(ctx, ev)
		switch {
		case errors.Is(err, resilience.ErrOpen):
			log.Debug("clip archive paused")
		case err != nil:
			log.Warn("clip archive failed", "error", err)
		default:
			rec.ClipPath = path
		}
	}
	if err := s.store.AppendDetection(rec); err != nil {
		log.Error("detection not recorded", "error", err)
	}
}

func (s *detectionSink) archive(ctx context.Context, ev orchestrator.DetectionEvent) (string, error) {
	return resilience.ExecuteWithResult(s.breaker, func() (string, error) {
		var path string
		err := resilience.Retry(ctx, s.retry, func() error {
			var err error
			path, err = s.archiver.Save(ctx, ev.ID, ev.PatternName, ev.Timestamp, ev.AudioWindow, ev.SampleRate)
			return err
		})
		return path, err
	})
}

// Wait blocks until pending archive and history writes finish.
func (s *detectionSink) Wait() { s.wg.Wait() }
