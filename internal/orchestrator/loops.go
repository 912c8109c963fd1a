package orchestrator

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/soundwatch/internal/audio"
	"github.com/GriffinCanCode/soundwatch/internal/resilience"
	"github.com/GriffinCanCode/soundwatch/internal/trace"
)

// cycleResult says how a detection cycle ended.
type cycleResult string

const (
	cycleSilent     cycleResult = "silent"
	cycleQuiet      cycleResult = "quiet"
	cycleCooldown   cycleResult = "cooldown"
	cycleNoPatterns cycleResult = "no_patterns"
	cycleNoMatch    cycleResult = "no_match"
	cycleDetected   cycleResult = "detected"
)

func (o *Orchestrator) captureLoop(ctx context.Context) {
	defer o.wg.Done()
	o.capturing.Store(true)
	defer o.capturing.Store(false)

	log := trace.Logger(ctx).With("source", o.source.Name())
	buf := make([]float32, o.cfg.FramesPerBuffer)
	backoff := o.cfg.DetectionInterval

	for ctx.Err() == nil {
		n, err := o.source.Read(buf)
		if n > 0 {
			o.ingest.ProcessChunk(buf[:n])
			backoff = o.cfg.DetectionInterval
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil || errors.Is(err, audio.ErrClosed) {
			return
		}
		if errors.Is(err, io.EOF) {
			log.Info("audio source ended")
			return
		}

		log.Warn("audio read failed", "error", err, "retry_in", backoff)
		if !sleep(ctx, backoff) {
			return
		}
		backoff = min(2*backoff, MaxCaptureBackoff)
	}
}

func (o *Orchestrator) detectionLoop(ctx context.Context) {
	defer o.wg.Done()

	interval := o.cfg.DetectionInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := interval
		err := o.breaker.Execute(func() error { return o.runCycle(ctx) })
		switch {
		case err == nil:
		case errors.Is(err, resilience.ErrOpen):
			// Skip cycles until the breaker half-opens.
			next = 2 * interval
		default:
			o.failures.Add(1)
			trace.Logger(ctx).Error("detection cycle failed", "error", err)
			next = 2 * interval
		}
		timer.Reset(next)
	}
}

// runCycle wraps one detection cycle in a span.
func (o *Orchestrator) runCycle(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "detection_cycle")
	defer span.End()

	o.cycles.Add(1)
	res, err := o.detectCycle(ctx)
	span.SetAttr("result", string(res))
	span.SetError(err)
	if res == cycleDetected {
		trace.Logger(ctx).Debug("cycle complete", "span", span)
	}
	return err
}

// detectCycle applies the gates in order and classifies the live window
// against the active pattern snapshot.
func (o *Orchestrator) detectCycle(ctx context.Context) (cycleResult, error) {
	cfg := o.cfg
	if o.buffer.DetectSilence(cfg.SilenceWindowSeconds, cfg.SilenceLevel) {
		return cycleSilent, nil
	}
	level := o.buffer.SignalLevel()
	if !level.HasSignal || level.RMS < cfg.MinRMS {
		return cycleQuiet, nil
	}
	if o.cooldown.Active() {
		return cycleCooldown, nil
	}

	refs := o.patterns.ActiveReferences()
	if len(refs) == 0 {
		return cycleNoPatterns, nil
	}

	// The window covers the longest active pattern so each can be aligned.
	seconds := cfg.SilenceWindowSeconds
	for _, r := range refs {
		seconds = max(seconds, float64(r.Profile.Samples)/float64(cfg.SampleRate))
	}
	window := o.buffer.ReadLastSeconds(seconds)

	match, ok := o.classifier.Classify(window, refs, 0)
	if !ok || match.Confidence <= cfg.ConfidenceThreshold {
		return cycleNoMatch, nil
	}
	if !o.cooldown.Trigger() {
		return cycleCooldown, nil
	}

	ev := DetectionEvent{
		ID:          uuid.NewString(),
		PatternName: match.Name,
		Confidence:  match.Confidence,
		Timestamp:   o.now(),
		AudioWindow: window,
		SampleRate:  cfg.SampleRate,
		Breakdown:   match.Breakdown,
	}
	o.detections.Add(1)
	trace.Logger(ctx).Info("pattern detected", "pattern", ev.PatternName,
		"confidence", ev.Confidence, "id", ev.ID)
	for _, h := range o.handlers {
		h(ctx, ev)
	}
	return cycleDetected, nil
}

// sleep waits for d or until ctx is done; it reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
