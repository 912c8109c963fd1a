package mfcc

import (
	"math"

	"github.com/GriffinCanCode/soundwatch/internal/dsp"
)

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterBank builds numFilters triangular filters whose edges are evenly
// spaced on the mel scale between lowHz and highHz. Bin positions use the
// same resolution as dsp.MagnitudeSpectrum.
func melFilterBank(numFilters, bins, sampleRate int, lowHz, highHz float64) [][]float64 {
	res := dsp.Resolution(sampleRate, bins)
	lowMel, highMel := hzToMel(lowHz), hzToMel(highHz)
	step := (highMel - lowMel) / float64(numFilters+1)

	edges := make([]int, numFilters+2)
	for i := range edges {
		edges[i] = min(int(math.Round(melToHz(lowMel+float64(i)*step)/res)), bins-1)
	}
	// Every filter spans at least one bin.
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			edges[i] = edges[i-1] + 1
		}
	}

	bank := make([][]float64, numFilters)
	for m := range bank {
		filter := make([]float64, bins)
		left, center, right := edges[m], edges[m+1], edges[m+2]
		for k := left; k < center && k < bins; k++ {
			filter[k] = float64(k-left) / float64(center-left)
		}
		for k := center; k <= right && k < bins; k++ {
			filter[k] = float64(right-k) / float64(right-center)
		}
		bank[m] = filter
	}
	return bank
}

// dctMatrix returns the orthonormal DCT-II basis truncated to numCoeffs rows.
func dctMatrix(numCoeffs, numFilters int) [][]float64 {
	m := float64(numFilters)
	out := make([][]float64, numCoeffs)
	for k := range out {
		scale := math.Sqrt(2 / m)
		if k == 0 {
			scale = math.Sqrt(1 / m)
		}
		row := make([]float64, numFilters)
		for n := range row {
			row[n] = scale * math.Cos(math.Pi*float64(k)*(float64(n)+0.5)/m)
		}
		out[k] = row
	}
	return out
}
