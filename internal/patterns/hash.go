package patterns

import (
	"image"
	"image/color"
	"math"

	"github.com/corona10/goimagehash"

	"github.com/GriffinCanCode/soundwatch/internal/dsp"
)

const (
	spectrogramFrame  = 1024
	spectrogramHop    = 512
	spectrogramRows   = 128
	spectrogramMaxHz  = 8000.0
	DuplicateDistance = 6 // pHash bits; at or below this two patterns look alike
)

// SpectrogramHash renders a log-magnitude spectrogram of samples and returns
// its 64-bit perceptual hash.
func SpectrogramHash(samples []float32, sampleRate int) (uint64, error) {
	img := spectrogram(samples, sampleRate)
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, err
	}
	return h.GetHash(), nil
}

// HashDistance returns the Hamming distance between two spectrogram hashes.
func HashDistance(a, b uint64) int {
	ha := goimagehash.NewImageHash(a, goimagehash.PHash)
	hb := goimagehash.NewImageHash(b, goimagehash.PHash)
	d, err := ha.Distance(hb)
	if err != nil {
		return 64
	}
	return d
}

// spectrogram draws time on x and frequency (low at the bottom) on y, up to
// spectrogramMaxHz.
func spectrogram(samples []float32, sampleRate int) *image.Gray {
	window := dsp.HannWindow(spectrogramFrame)
	frames := 1
	if len(samples) > spectrogramFrame {
		frames = 1 + (len(samples)-spectrogramFrame)/spectrogramHop
	}

	bins := spectrogramFrame/2 + 1
	maxBin := bins - 1
	if res := dsp.Resolution(sampleRate, bins); res > 0 {
		maxBin = min(maxBin, int(spectrogramMaxHz/res))
	}
	maxBin = max(maxBin, 1)

	levels := make([][]float64, frames)
	lo, hi := math.Inf(1), math.Inf(-1)
	frame := make([]float64, spectrogramFrame)
	for f := range frames {
		clear(frame)
		start := f * spectrogramHop
		for i := 0; i < spectrogramFrame && start+i < len(samples); i++ {
			frame[i] = float64(samples[start+i]) * window[i]
		}
		mags := dsp.MagnitudeSpectrum(frame)
		col := make([]float64, spectrogramRows)
		for r := range col {
			k := 1 + r*(maxBin-1)/max(spectrogramRows-1, 1)
			col[r] = math.Log10(mags[k] + 1e-9)
			lo, hi = min(lo, col[r]), max(hi, col[r])
		}
		levels[f] = col
	}

	img := image.NewGray(image.Rect(0, 0, frames, spectrogramRows))
	span := hi - lo
	for x, col := range levels {
		for r, v := range col {
			var g uint8
			if span > 0 {
				g = uint8(math.Round(255 * (v - lo) / span))
			}
			img.SetGray(x, spectrogramRows-1-r, color.Gray{Y: g})
		}
	}
	return img
}
