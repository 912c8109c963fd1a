// Package orchestrator runs live pattern detection: it captures audio into a
// ring buffer and periodically classifies the most recent window against the
// active reference patterns.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/soundwatch/internal/audio"
	"github.com/GriffinCanCode/soundwatch/internal/classifier"
	"github.com/GriffinCanCode/soundwatch/internal/config"
	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
	"github.com/GriffinCanCode/soundwatch/internal/orchestrator/cooldown"
	"github.com/GriffinCanCode/soundwatch/internal/orchestrator/ingest"
	"github.com/GriffinCanCode/soundwatch/internal/patterns"
	"github.com/GriffinCanCode/soundwatch/internal/resilience"
	"github.com/GriffinCanCode/soundwatch/internal/ringbuffer"
	"github.com/GriffinCanCode/soundwatch/internal/trace"
)

// Config controls capture, gating and matching.
type Config struct {
	SampleRate          int
	BufferSeconds       float64
	FramesPerBuffer     int
	DetectionInterval   time.Duration
	Cooldown            time.Duration
	ConfidenceThreshold float64
	MatchThreshold      float64

	SilenceWindowSeconds float64
	SilenceLevel         float64
	MinRMS               float64
	NoiseGateThreshold   float64
	NoiseGateRatio       float64
}

// DefaultConfig returns the standard detector settings.
func DefaultConfig() Config {
	return Config{
		SampleRate:           DefaultSampleRate,
		BufferSeconds:        DefaultBufferSeconds,
		FramesPerBuffer:      DefaultFramesPerBuffer,
		DetectionInterval:    DefaultDetectionInterval,
		Cooldown:             DefaultCooldown,
		ConfidenceThreshold:  DefaultConfidenceThreshold,
		SilenceWindowSeconds: DefaultSilenceWindowSeconds,
		SilenceLevel:         DefaultSilenceLevel,
		MinRMS:               DefaultMinRMS,
	}
}

// ConfigFrom maps service configuration onto detector settings.
func ConfigFrom(c *config.Config) Config {
	return Config{
		SampleRate:           c.SampleRate,
		BufferSeconds:        c.BufferSeconds,
		FramesPerBuffer:      c.FramesPerBuffer,
		DetectionInterval:    c.DetectionInterval,
		Cooldown:             c.Cooldown(),
		ConfidenceThreshold:  c.ConfidenceThreshold,
		MatchThreshold:       c.MatchThreshold,
		SilenceWindowSeconds: c.SilenceWindowSeconds,
		SilenceLevel:         c.SilenceLevel,
		MinRMS:               c.MinRMS,
		NoiseGateThreshold:   c.NoiseGateThreshold,
		NoiseGateRatio:       c.NoiseGateRatio,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.BufferSeconds <= 0 {
		c.BufferSeconds = d.BufferSeconds
	}
	if c.FramesPerBuffer <= 0 {
		c.FramesPerBuffer = d.FramesPerBuffer
	}
	if c.DetectionInterval <= 0 {
		c.DetectionInterval = d.DetectionInterval
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if c.SilenceWindowSeconds <= 0 {
		c.SilenceWindowSeconds = d.SilenceWindowSeconds
	}
	if c.SilenceLevel <= 0 {
		c.SilenceLevel = d.SilenceLevel
	}
	if c.MinRMS <= 0 {
		c.MinRMS = d.MinRMS
	}
	return c
}

// DetectionEvent is emitted once per detected occurrence of a pattern.
type DetectionEvent struct {
	ID          string               `json:"id"`
	PatternName string               `json:"patternName"`
	Confidence  float64              `json:"confidence"`
	Timestamp   time.Time            `json:"timestamp"`
	AudioWindow []float32            `json:"-"`
	SampleRate  int                  `json:"sampleRate"`
	Breakdown   classifier.Breakdown `json:"breakdown"`
}

// Handler receives detection events on the detection goroutine.
type Handler func(ctx context.Context, ev DetectionEvent)

// Stats is a point-in-time view of the detector.
type Stats struct {
	IsRunning                bool             `json:"isRunning"`
	IsCapturing              bool             `json:"isCapturing"`
	ActivePatternCount       int              `json:"activePatternCount"`
	TotalPatternCount        int              `json:"totalPatternCount"`
	BufferUtilizationPercent float64          `json:"bufferUtilizationPercent"`
	SignalLevel              ringbuffer.Level `json:"signalLevel"`
	SampleRate               int              `json:"sampleRate"`
	Source                   string           `json:"source"`
	Cycles                   int64            `json:"cycles"`
	Detections               int64            `json:"detections"`
	Errors                   int64            `json:"errors"`
	Breaker                  string           `json:"breaker"`
	BreakerOpens             int64            `json:"breakerOpens"`
	Ingest                   ingest.Stats     `json:"ingest"`
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithHandler registers a detection handler.
func WithHandler(h Handler) Option {
	return func(o *Orchestrator) { o.handlers = append(o.handlers, h) }
}

// WithClock replaces the wall clock used for cooldown and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRegistry shares an existing pattern registry.
func WithRegistry(r *patterns.Registry) Option {
	return func(o *Orchestrator) { o.patterns = r }
}

// Orchestrator coordinates capture and detection.
type Orchestrator struct {
	cfg        Config
	source     audio.Source
	buffer     *ringbuffer.RingBuffer
	ingest     *ingest.Processor
	classifier *classifier.Classifier
	patterns   *patterns.Registry
	cooldown   *cooldown.Gate
	breaker    *resilience.Breaker
	handlers   []Handler
	now        func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	capturing  atomic.Bool
	cycles     atomic.Int64
	detections atomic.Int64
	failures   atomic.Int64
	opens      atomic.Int64
}

// New creates an orchestrator reading from src. The source's sample rate
// wins over cfg.SampleRate.
func New(src audio.Source, cfg Config, opts ...Option) *Orchestrator {
	if src != nil && src.SampleRate() > 0 {
		cfg.SampleRate = src.SampleRate()
	}
	cfg = cfg.withDefaults()

	o := &Orchestrator{
		cfg:    cfg,
		source: src,
		buffer: ringbuffer.New(cfg.SampleRate, cfg.BufferSeconds),
		classifier: classifier.New(classifier.Config{
			SampleRate:     cfg.SampleRate,
			MatchThreshold: cfg.MatchThreshold,
		}),
		now: time.Now,
	}
	o.breaker = resilience.New(resilience.CycleConfig("detection", cfg.DetectionInterval)).
		WithHook(o.onBreakerChange)
	for _, opt := range opts {
		opt(o)
	}
	if o.patterns == nil {
		o.patterns = patterns.NewRegistry()
	}
	o.cooldown = cooldown.New(cfg.Cooldown, o.now)
	o.ingest = ingest.NewProcessor(o.buffer, ingest.Config{
		NoiseGateThreshold: cfg.NoiseGateThreshold,
		NoiseGateRatio:     cfg.NoiseGateRatio,
	}, o.now)
	return o
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Classifier exposes the pattern classifier.
func (o *Orchestrator) Classifier() *classifier.Classifier { return o.classifier }

// Patterns exposes the pattern registry.
func (o *Orchestrator) Patterns() *patterns.Registry { return o.patterns }

// Buffer exposes the live ring buffer.
func (o *Orchestrator) Buffer() *ringbuffer.RingBuffer { return o.buffer }

// Start opens the source and launches the capture and detection loops. It
// returns an AppError with CodeAudioUnavailable when the source cannot be
// opened. Starting a running orchestrator is a no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "orchestrator_start")
	defer span.End()
	log := trace.Logger(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil
	}
	if o.source == nil {
		return apperrors.New(apperrors.CodeAudioUnavailable, "no audio source configured")
	}
	span.SetAttr("source", o.source.Name())

	if err := o.source.Open(ctx); err != nil {
		span.SetError(err)
		log.Warn("audio source unavailable", "source", o.source.Name(), "error", err)
		if apperrors.IsCode(err, apperrors.CodeAudioUnavailable) {
			return err
		}
		return apperrors.Wrap(err, apperrors.CodeAudioUnavailable, "open audio source").
			WithMetadata("source", o.source.Name())
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.cancel = cancel
	o.running = true
	o.breaker.Reset()

	o.wg.Add(2)
	go o.captureLoop(loopCtx)
	go o.detectionLoop(loopCtx)

	log.Info("detector started", "source", o.source.Name(), "sample_rate", o.cfg.SampleRate,
		"patterns", o.patterns.Counts().Active)
	return nil
}

// Stop cancels both loops, closes the source and clears the buffer. It
// returns once both loops have exited and is safe to call repeatedly.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.cancel()
	if err := o.source.Close(); err != nil {
		trace.Logger(context.Background()).Warn("audio source close failed", "error", err)
	}
	o.mu.Unlock()

	o.wg.Wait()
	o.buffer.Clear()
	o.ingest.Reset()
	o.cooldown.Reset()
	trace.Logger(context.Background()).Info("detector stopped")
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// AddReferencePattern profiles samples and registers them under name,
// replacing any pattern of the same name. It returns the names of existing
// patterns that sound alike.
func (o *Orchestrator) AddReferencePattern(ctx context.Context, name string, samples []float32, active bool) (patterns.Pattern, []string, error) {
	ctx, span := trace.StartSpan(ctx, "add_reference_pattern")
	defer span.End()
	span.SetAttr("pattern", name)
	span.SetAttr("samples", len(samples))
	log := trace.Logger(ctx)

	p, err := patterns.Build(o.classifier, name, samples, active, o.now())
	if err != nil {
		span.SetError(err)
		return patterns.Pattern{}, nil, err
	}
	similar := o.patterns.Add(p)
	if len(similar) > 0 {
		log.Warn("pattern resembles existing patterns", "pattern", p.Name, "similar", similar)
	}
	log.Info("registered pattern", "pattern", p.Name, "duration", p.Duration(), "active", p.Active)
	return p, similar, nil
}

// UpdatePatternActive toggles whether a pattern takes part in detection.
func (o *Orchestrator) UpdatePatternActive(name string, active bool) error {
	if err := o.patterns.SetActive(name, active); err != nil {
		return err
	}
	trace.Logger(context.Background()).Info("pattern state changed", "pattern", name, "active", active)
	return nil
}

// RemoveReferencePattern unregisters a pattern.
func (o *Orchestrator) RemoveReferencePattern(name string) error {
	if err := o.patterns.Remove(name); err != nil {
		return err
	}
	trace.Logger(context.Background()).Info("removed pattern", "pattern", name)
	return nil
}

// RecognizeType labels the most recent seconds of live audio.
func (o *Orchestrator) RecognizeType(seconds float64) classifier.TypeResult {
	return o.classifier.RecognizeType(o.buffer.ReadLastSeconds(seconds))
}

// Feedback forwards a user verdict on a detection to the classifier.
func (o *Orchestrator) Feedback(pattern string, accepted bool) {
	o.classifier.Feedback(pattern, accepted)
}

func (o *Orchestrator) onBreakerChange(from, to resilience.State) {
	switch {
	case to == resilience.Open:
		o.opens.Add(1)
		slog.Warn("detection paused", "failures", o.failures.Load(), "retry_in", resilience.CycleResetIntervals*o.cfg.DetectionInterval)
	case from == resilience.HalfOpen && to == resilience.Closed:
		slog.Info("detection resumed")
	}
}

// ProcessingStats returns a snapshot of the detector state.
func (o *Orchestrator) ProcessingStats() Stats {
	counts := o.patterns.Counts()
	name := ""
	if o.source != nil {
		name = o.source.Name()
	}
	return Stats{
		IsRunning:                o.IsRunning(),
		IsCapturing:              o.capturing.Load(),
		ActivePatternCount:       counts.Active,
		TotalPatternCount:        counts.Total,
		BufferUtilizationPercent: o.buffer.Stats().UtilizationPercent,
		SignalLevel:              o.buffer.SignalLevel(),
		SampleRate:               o.cfg.SampleRate,
		Source:                   name,
		Cycles:                   o.cycles.Load(),
		Detections:               o.detections.Load(),
		Errors:                   o.failures.Load(),
		Breaker:                  o.breaker.State().String(),
		BreakerOpens:             o.opens.Load(),
		Ingest:                   o.ingest.Stats(),
	}
}
