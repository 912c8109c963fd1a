// Package ingest moves captured audio into the ring buffer.
package ingest

import (
	"log/slog"
	"sync"
	"time"

	"github.com/GriffinCanCode/soundwatch/internal/audio"
	"github.com/GriffinCanCode/soundwatch/internal/ringbuffer"
)

// Config for the ingest processor.
type Config struct {
	NoiseGateThreshold float64 // 0 disables the gate
	NoiseGateRatio     float64
}

// Stats counts what has been ingested since the last Reset.
type Stats struct {
	Chunks    int64     `json:"chunks"`
	Samples   int64     `json:"samples"`
	Clipped   int64     `json:"clipped"`
	LastChunk time.Time `json:"lastChunk"`
}

// Processor clamps, stores and gates captured chunks.
type Processor struct {
	buffer *ringbuffer.RingBuffer
	cfg    Config
	now    func() time.Time

	mu    sync.Mutex
	stats Stats
}

// NewProcessor creates a processor writing into buffer.
func NewProcessor(buffer *ringbuffer.RingBuffer, cfg Config, now func() time.Time) *Processor {
	if now == nil {
		now = time.Now
	}
	return &Processor{buffer: buffer, cfg: cfg, now: now}
}

// ProcessChunk clamps chunk to [-1, 1] in place, appends it to the buffer and
// gates the newly written samples.
func (p *Processor) ProcessChunk(chunk []float32) {
	if len(chunk) == 0 {
		return
	}
	clipped := audio.Clamp(chunk)
	p.buffer.Write(chunk)
	if p.cfg.NoiseGateThreshold > 0 {
		p.buffer.ApplyNoiseGate(p.cfg.NoiseGateThreshold, p.cfg.NoiseGateRatio)
	}

	p.mu.Lock()
	p.stats.Chunks++
	p.stats.Samples += int64(len(chunk))
	p.stats.Clipped += int64(clipped)
	p.stats.LastChunk = p.now()
	p.mu.Unlock()

	if clipped > 0 {
		slog.Debug("clamped out-of-range samples", "count", clipped)
	}
}

// Stats returns a copy of the counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Reset clears the counters.
func (p *Processor) Reset() {
	p.mu.Lock()
	p.stats = Stats{}
	p.mu.Unlock()
}
