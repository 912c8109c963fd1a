// Package ringbuffer holds the most recent seconds of mono audio for analysis.
package ringbuffer

import (
	"math"
	"sync"
)

// Level summarizes the amplitude of the most recent second of audio.
type Level struct {
	Average   float64 `json:"average"`
	Peak      float64 `json:"peak"`
	RMS       float64 `json:"rms"`
	HasSignal bool    `json:"hasSignal"`
}

// Stats reports occupancy and throughput counters.
type Stats struct {
	Capacity           int     `json:"capacity"`
	Available          int     `json:"available"`
	Written            uint64  `json:"written"`
	Overflow           uint64  `json:"overflow"`
	UtilizationPercent float64 `json:"utilizationPercent"`
}

// RingBuffer is a fixed-capacity circular buffer of float32 samples.
// One writer and many readers may use it concurrently.
type RingBuffer struct {
	mu         sync.RWMutex
	buf        []float32
	sampleRate int
	cursor     int  // next write index
	full       bool // cursor has wrapped at least once
	written    uint64
	overflow   uint64
	ungated    int // samples written since the last noise gate pass
}

// New creates a buffer retaining windowSeconds of audio at sampleRate.
func New(sampleRate int, windowSeconds float64) *RingBuffer {
	capacity := int(math.Round(float64(sampleRate) * windowSeconds))
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{buf: make([]float32, capacity), sampleRate: sampleRate}
}

// SampleRate returns the configured rate in Hz.
func (rb *RingBuffer) SampleRate() int { return rb.sampleRate }

// Capacity returns the maximum number of retained samples.
func (rb *RingBuffer) Capacity() int { return len(rb.buf) }

// Write appends samples, overwriting the oldest when full.
func (rb *RingBuffer) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}
	rb.mu.Lock()
	defer rb.mu.Unlock()

	capacity := len(rb.buf)
	rb.written += uint64(len(samples))

	// Only the tail of an oversized write survives.
	if len(samples) > capacity {
		rb.overflow += uint64(len(samples) - capacity)
		samples = samples[len(samples)-capacity:]
	}

	if lost := rb.available() + len(samples) - capacity; lost > 0 {
		rb.overflow += uint64(lost)
	}

	for len(samples) > 0 {
		n := copy(rb.buf[rb.cursor:], samples)
		samples = samples[n:]
		rb.cursor += n
		if rb.cursor == capacity {
			rb.cursor = 0
			rb.full = true
		}
		rb.ungated = min(rb.ungated+n, capacity)
	}
}

// ReadLastSeconds returns up to seconds of the newest audio, oldest first.
func (rb *RingBuffer) ReadLastSeconds(seconds float64) []float32 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.lastN(rb.samplesFor(seconds))
}

// ReadTimeWindow returns audio recorded between startSecondsAgo and
// endSecondsAgo (start > end). The window is clamped to retained history and
// is empty if it lies entirely before it.
func (rb *RingBuffer) ReadTimeWindow(startSecondsAgo, endSecondsAgo float64) []float32 {
	if startSecondsAgo <= endSecondsAgo || endSecondsAgo < 0 {
		return nil
	}
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	avail := rb.available()
	start := min(rb.samplesFor(startSecondsAgo), avail)
	end := rb.samplesFor(endSecondsAgo)
	if end >= start {
		return nil
	}
	window := rb.lastN(start)
	return window[:start-end]
}

// SignalLevel measures the last second of audio.
func (rb *RingBuffer) SignalLevel() Level {
	rb.mu.RLock()
	samples := rb.lastN(rb.sampleRate)
	rb.mu.RUnlock()

	if len(samples) == 0 {
		return Level{}
	}
	var sum, sumSq, peak float64
	for _, s := range samples {
		a := math.Abs(float64(s))
		sum += a
		sumSq += a * a
		peak = max(peak, a)
	}
	n := float64(len(samples))
	return Level{
		Average:   sum / n,
		Peak:      peak,
		RMS:       math.Sqrt(sumSq / n),
		HasSignal: peak > SignalFloor,
	}
}

// DetectSilence reports whether at least SilentFraction of the last
// thresholdSeconds of audio sits at or below silenceLevel. An empty window is
// silent.
func (rb *RingBuffer) DetectSilence(thresholdSeconds, silenceLevel float64) bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	n := min(rb.samplesFor(thresholdSeconds), rb.available())
	if n == 0 {
		return true
	}
	quiet := 0
	rb.scanLast(n, func(s float32) {
		if math.Abs(float64(s)) <= silenceLevel {
			quiet++
		}
	})
	return float64(quiet) >= SilentFraction*float64(n)
}

// ApplyNoiseGate attenuates samples quieter than threshold by 1/ratio. Only
// samples written since the previous call are touched.
func (rb *RingBuffer) ApplyNoiseGate(threshold, ratio float64) {
	if ratio <= 1 || threshold <= 0 {
		return
	}
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := min(rb.ungated, rb.available())
	capacity := len(rb.buf)
	start := (rb.cursor - n + capacity) % capacity
	gain := float32(1 / ratio)
	for i := range n {
		idx := (start + i) % capacity
		if math.Abs(float64(rb.buf[idx])) < threshold {
			rb.buf[idx] *= gain
		}
	}
	rb.ungated = 0
}

// Clear drops all audio and resets counters.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	clear(rb.buf)
	rb.cursor = 0
	rb.full = false
	rb.written = 0
	rb.overflow = 0
	rb.ungated = 0
}

// Stats returns occupancy counters.
func (rb *RingBuffer) Stats() Stats {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	avail := rb.available()
	return Stats{
		Capacity:           len(rb.buf),
		Available:          avail,
		Written:            rb.written,
		Overflow:           rb.overflow,
		UtilizationPercent: 100 * float64(avail) / float64(len(rb.buf)),
	}
}

func (rb *RingBuffer) available() int {
	if rb.full {
		return len(rb.buf)
	}
	return rb.cursor
}

func (rb *RingBuffer) samplesFor(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Round(seconds * float64(rb.sampleRate)))
}

// lastN copies the newest n samples (clamped to what exists), oldest first.
// Caller holds at least a read lock.
func (rb *RingBuffer) lastN(n int) []float32 {
	n = min(n, rb.available())
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)
	capacity := len(rb.buf)
	start := (rb.cursor - n + capacity) % capacity
	if start+n <= capacity {
		copy(out, rb.buf[start:start+n])
	} else {
		first := copy(out, rb.buf[start:])
		copy(out[first:], rb.buf[:n-first])
	}
	return out
}

func (rb *RingBuffer) scanLast(n int, fn func(float32)) {
	capacity := len(rb.buf)
	start := (rb.cursor - n + capacity) % capacity
	for i := range n {
		fn(rb.buf[(start+i)%capacity])
	}
}
