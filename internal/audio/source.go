// Package audio provides mono float32 audio sources and clip helpers.
package audio

import "context"

// Source is a blocking pull source of mono samples in [-1, 1].
//
// Open acquires the underlying device or stream. Read blocks until at least
// one sample is available and returns the number written into buf. Close
// releases the source and unblocks a pending Read; it is safe to call more
// than once.
type Source interface {
	Open(ctx context.Context) error
	Read(buf []float32) (int, error)
	Close() error
	SampleRate() int
	Name() string
}

// Clamp limits every sample to [-1, 1] in place and returns how many were
// out of range.
func Clamp(samples []float32) int {
	clipped := 0
	for i, s := range samples {
		switch {
		case s > 1:
			samples[i] = 1
			clipped++
		case s < -1:
			samples[i] = -1
			clipped++
		case s != s: // NaN
			samples[i] = 0
			clipped++
		}
	}
	return clipped
}
