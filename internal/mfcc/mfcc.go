// Package mfcc turns audio into fixed-length mel-frequency cepstral
// fingerprints.
//
// The pipeline is pre-emphasis, framing, Hamming window, magnitude FFT,
// triangular mel filter bank, log, orthonormal DCT-II, and finally the mean
// of each coefficient across frames. Fingerprints are only comparable when
// produced with the same Config.
package mfcc

import (
	"errors"
	"math"

	"github.com/GriffinCanCode/soundwatch/internal/dsp"
)

// MaxDistance is returned when two fingerprints cannot be compared.
const MaxDistance = math.MaxFloat64

// ErrLengthMismatch reports fingerprints with different coefficient counts.
var ErrLengthMismatch = errors.New("mfcc: fingerprint length mismatch")

// Fingerprint is the mean cepstral vector of a clip.
type Fingerprint []float64

// Equal reports element-wise equality.
func (f Fingerprint) Equal(other Fingerprint) bool {
	if len(f) != len(other) {
		return false
	}
	for i := range f {
		if f[i] != other[i] {
			return false
		}
	}
	return true
}

// Config controls the extraction pipeline.
type Config struct {
	SampleRate  int
	FrameSize   int
	HopSize     int
	NumFilters  int
	NumCoeffs   int
	LowFreq     float64 // Hz
	HighFreq    float64 // Hz, capped at Nyquist
	PreEmphasis float64
	LogFloor    float64
}

// DefaultConfig returns the standard 13-coefficient configuration.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:  sampleRate,
		FrameSize:   DefaultFrameSize,
		HopSize:     DefaultHopSize,
		NumFilters:  DefaultNumFilters,
		NumCoeffs:   DefaultNumCoeffs,
		LowFreq:     DefaultLowFreq,
		HighFreq:    DefaultHighFreq,
		PreEmphasis: DefaultPreEmphasis,
		LogFloor:    DefaultLogFloor,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.SampleRate)
	if c.SampleRate <= 0 {
		c.SampleRate = 44100
	}
	if c.FrameSize <= 0 {
		c.FrameSize = d.FrameSize
	}
	if c.HopSize <= 0 {
		c.HopSize = d.HopSize
	}
	if c.NumFilters <= 0 {
		c.NumFilters = d.NumFilters
	}
	if c.NumCoeffs <= 0 {
		c.NumCoeffs = d.NumCoeffs
	}
	c.NumCoeffs = min(c.NumCoeffs, c.NumFilters)
	if c.LowFreq <= 0 {
		c.LowFreq = d.LowFreq
	}
	if c.HighFreq <= 0 {
		c.HighFreq = d.HighFreq
	}
	c.HighFreq = min(c.HighFreq, float64(c.SampleRate)/2)
	if c.PreEmphasis <= 0 {
		c.PreEmphasis = d.PreEmphasis
	}
	if c.LogFloor <= 0 {
		c.LogFloor = d.LogFloor
	}
	return c
}

// Extractor computes MFCC fingerprints. It holds only read-only tables and
// is safe for concurrent use.
type Extractor struct {
	cfg    Config
	window []float64
	bank   [][]float64 // [NumFilters][bins]
	dct    [][]float64 // [NumCoeffs][NumFilters]
}

// New builds an extractor, filling unset Config fields with defaults.
func New(cfg Config) *Extractor {
	cfg = cfg.withDefaults()
	fftSize := dsp.NextPow2(cfg.FrameSize)
	return &Extractor{
		cfg:    cfg,
		window: dsp.HammingWindow(cfg.FrameSize),
		bank:   melFilterBank(cfg.NumFilters, fftSize/2+1, cfg.SampleRate, cfg.LowFreq, cfg.HighFreq),
		dct:    dctMatrix(cfg.NumCoeffs, cfg.NumFilters),
	}
}

// Config returns the effective configuration.
func (e *Extractor) Config() Config { return e.cfg }

// Extract returns the mean MFCC vector of samples. Empty input yields an
// all-zero fingerprint.
func (e *Extractor) Extract(samples []float32) Fingerprint {
	fp := make(Fingerprint, e.cfg.NumCoeffs)
	frames := e.ExtractFrames(samples)
	if len(frames) == 0 {
		return fp
	}
	for _, f := range frames {
		for i, c := range f {
			fp[i] += c
		}
	}
	for i := range fp {
		fp[i] /= float64(len(frames))
	}
	return fp
}

// ExtractFrames returns the per-frame coefficient sequence. Input shorter
// than one frame is zero-padded to a single frame; a trailing partial frame
// is dropped otherwise.
func (e *Extractor) ExtractFrames(samples []float32) [][]float64 {
	if len(samples) == 0 {
		return nil
	}
	emphasized := e.preEmphasize(samples)

	size, hop := e.cfg.FrameSize, e.cfg.HopSize
	count := 1
	if len(emphasized) > size {
		count = 1 + (len(emphasized)-size)/hop
	}

	out := make([][]float64, count)
	frame := make([]float64, size)
	energies := make([]float64, e.cfg.NumFilters)
	for f := range count {
		start := f * hop
		clear(frame)
		for i := 0; i < size && start+i < len(emphasized); i++ {
			frame[i] = emphasized[start+i] * e.window[i]
		}
		out[f] = e.cepstrum(frame, energies)
	}
	return out
}

func (e *Extractor) preEmphasize(samples []float32) []float64 {
	out := make([]float64, len(samples))
	out[0] = float64(samples[0])
	for i := 1; i < len(samples); i++ {
		out[i] = float64(samples[i]) - e.cfg.PreEmphasis*float64(samples[i-1])
	}
	return out
}

func (e *Extractor) cepstrum(frame, energies []float64) []float64 {
	mags := dsp.MagnitudeSpectrum(frame)
	for m, filter := range e.bank {
		var sum float64
		for k, w := range filter {
			if w != 0 {
				sum += w * mags[k] * mags[k]
			}
		}
		energies[m] = math.Log(max(sum, e.cfg.LogFloor))
	}

	coeffs := make([]float64, e.cfg.NumCoeffs)
	for k, row := range e.dct {
		var sum float64
		for m, basis := range row {
			sum += basis * energies[m]
		}
		coeffs[k] = sum
	}
	return coeffs
}

// Compare returns the Euclidean distance between two fingerprints. Lengths
// must match; otherwise it returns MaxDistance and ErrLengthMismatch.
func Compare(a, b Fingerprint) (float64, error) {
	if len(a) != len(b) {
		return MaxDistance, ErrLengthMismatch
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
