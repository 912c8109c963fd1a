// Package dsp provides the spectral primitives used by feature extraction
// and sound classification: a radix-2 FFT, magnitude spectra, windows and a
// whole-signal Analyzer.
package dsp

import (
	"math"
	"math/cmplx"
)

// NextPow2 returns the smallest power of two >= n (1 for n <= 1).
func NextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// FFT computes the in-place Cooley-Tukey FFT. len(x) must be a power of two.
func FFT(x []complex128) {
	n := len(x)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation.
	j := 0
	for i := 1; i < n; i++ {
		bit := n >> 1
		for j&bit != 0 {
			j ^= bit
			bit >>= 1
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		wn := cmplx.Exp(complex(0, -2*math.Pi/float64(size)))
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := 0; k < half; k++ {
				u := x[start+k]
				t := w * x[start+k+half]
				x[start+k] = u + t
				x[start+k+half] = u - t
				w *= wn
			}
		}
	}
}

// MagnitudeSpectrum zero-pads frame to the next power of two N and returns
// |X[k]| for k = 0..N/2. An empty frame yields nil.
func MagnitudeSpectrum(frame []float64) []float64 {
	if len(frame) == 0 {
		return nil
	}
	n := NextPow2(len(frame))
	if n < 2 {
		n = 2
	}
	x := make([]complex128, n)
	for i, v := range frame {
		x[i] = complex(v, 0)
	}
	FFT(x)

	mags := make([]float64, n/2+1)
	for k := range mags {
		mags[k] = cmplx.Abs(x[k])
	}
	return mags
}

// Resolution returns the Hz spacing of a spectrum of spectrumLen bins
// produced by MagnitudeSpectrum.
func Resolution(sampleRate, spectrumLen int) float64 {
	if spectrumLen < 2 {
		return 0
	}
	return float64(sampleRate) / (2 * float64(spectrumLen-1))
}

// BinFrequency returns the centre frequency of bin k.
func BinFrequency(k, sampleRate, spectrumLen int) float64 {
	return float64(k) * Resolution(sampleRate, spectrumLen)
}
