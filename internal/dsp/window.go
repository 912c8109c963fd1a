package dsp

import "math"

// HammingWindow returns a symmetric Hamming window of length n.
func HammingWindow(n int) []float64 {
	return cosineWindow(n, 0.54, 0.46)
}

// HannWindow returns a symmetric Hann window of length n.
func HannWindow(n int) []float64 {
	return cosineWindow(n, 0.5, 0.5)
}

func cosineWindow(n int, a0, a1 float64) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = a0 - a1*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// ToFloat64 widens samples for analysis.
func ToFloat64(samples []float32) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s)
	}
	return out
}

// RMS returns the root-mean-square amplitude (0 for empty input).
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
