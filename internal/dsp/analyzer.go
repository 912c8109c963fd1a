package dsp

import "math"

// SpectralFeatures describes the shape of a magnitude spectrum.
type SpectralFeatures struct {
	Centroid          float64 `json:"centroid"`          // Hz
	Spread            float64 `json:"spread"`            // Hz
	DominantFrequency float64 `json:"dominantFrequency"` // Hz
	Energy            float64 `json:"energy"`            // time-domain RMS

	// Spectrum is the Hann-windowed magnitude spectrum the scalars were
	// computed from. It is left out of JSON.
	Spectrum []float64 `json:"-"`
}

// RumbleAnalysis reports low-frequency (20-100 Hz) content.
type RumbleAnalysis struct {
	HasRumble     bool    `json:"hasRumble"`
	LowFreqEnergy float64 `json:"lowFreqEnergy"`
	LowFreqRatio  float64 `json:"lowFreqRatio"`
	PeakFrequency float64 `json:"peakFrequency"`
	PeakMagnitude float64 `json:"peakMagnitude"`
}

// TransientAnalysis reports sharp spectral peaks.
type TransientAnalysis struct {
	HasTransients   bool    `json:"hasTransients"`
	TransientEnergy float64 `json:"transientEnergy"` // mean magnitude of the peaks
	PeakCount       int     `json:"peakCount"`
	Sharpness       float64 `json:"sharpness"`
}

// Analyzer computes whole-signal spectral descriptors. It is stateless and
// safe for concurrent use.
type Analyzer struct {
	sampleRate int
}

// NewAnalyzer creates an analyzer for audio at sampleRate Hz.
func NewAnalyzer(sampleRate int) *Analyzer {
	return &Analyzer{sampleRate: sampleRate}
}

// SampleRate returns the analyzer's rate in Hz.
func (a *Analyzer) SampleRate() int { return a.sampleRate }

// Spectrum returns the Hann-windowed magnitude spectrum of signal.
func (a *Analyzer) Spectrum(signal []float32) []float64 {
	if len(signal) == 0 {
		return nil
	}
	w := HannWindow(len(signal))
	frame := make([]float64, len(signal))
	for i, s := range signal {
		frame[i] = float64(s) * w[i]
	}
	return MagnitudeSpectrum(frame)
}

// SpectralFeatures computes centroid, spread, dominant frequency and RMS.
func (a *Analyzer) SpectralFeatures(signal []float32) SpectralFeatures {
	return a.featuresOf(signal, a.Spectrum(signal))
}

func (a *Analyzer) featuresOf(signal []float32, mags []float64) SpectralFeatures {
	f := SpectralFeatures{Energy: RMS(signal), Spectrum: mags}
	if len(mags) < 2 {
		return f
	}
	res := Resolution(a.sampleRate, len(mags))

	var total, weighted, peak float64
	peakBin := 0
	for k, m := range mags {
		total += m
		weighted += m * float64(k) * res
		if m > peak {
			peak, peakBin = m, k
		}
	}
	if total == 0 {
		return f
	}
	f.Centroid = weighted / total
	f.DominantFrequency = float64(peakBin) * res

	var variance float64
	for k, m := range mags {
		d := float64(k)*res - f.Centroid
		variance += m * d * d
	}
	f.Spread = math.Sqrt(variance / total)
	return f
}

// DetectRumble measures the share of spectral energy in the 20-100 Hz band.
func (a *Analyzer) DetectRumble(signal []float32) RumbleAnalysis {
	return a.rumbleOf(a.Spectrum(signal))
}

func (a *Analyzer) rumbleOf(mags []float64) RumbleAnalysis {
	var r RumbleAnalysis
	if len(mags) < 2 {
		return r
	}
	res := Resolution(a.sampleRate, len(mags))

	var total float64
	for k, m := range mags {
		e := m * m
		total += e
		hz := float64(k) * res
		if hz < RumbleLowHz || hz > RumbleHighHz {
			continue
		}
		r.LowFreqEnergy += e
		if m > r.PeakMagnitude {
			r.PeakMagnitude = m
			r.PeakFrequency = hz
		}
	}
	if total == 0 {
		return RumbleAnalysis{}
	}
	r.LowFreqRatio = r.LowFreqEnergy / total
	r.HasRumble = r.LowFreqRatio > RumbleRatio
	return r
}

// DetectTransients counts local spectral maxima well above the mean magnitude.
func (a *Analyzer) DetectTransients(signal []float32) TransientAnalysis {
	return transientsOf(a.Spectrum(signal))
}

func transientsOf(mags []float64) TransientAnalysis {
	var t TransientAnalysis
	if len(mags) < 3 {
		return t
	}
	var sum float64
	for _, m := range mags {
		sum += m
	}
	mean := sum / float64(len(mags))
	if mean == 0 {
		return t
	}

	limit := TransientFactor * mean
	var peakSum float64
	for k := 1; k < len(mags)-1; k++ {
		m := mags[k]
		if m > limit && m > mags[k-1] && m >= mags[k+1] {
			t.PeakCount++
			peakSum += m
		}
	}
	if t.PeakCount == 0 {
		return t
	}
	t.TransientEnergy = peakSum / float64(t.PeakCount)
	t.Sharpness = t.TransientEnergy / mean
	t.HasTransients = t.PeakCount > TransientPeaks
	return t
}

// Profile bundles every descriptor of one signal, sharing a single FFT.
type Profile struct {
	Spectral   SpectralFeatures  `json:"spectral"`
	Rumble     RumbleAnalysis    `json:"rumble"`
	Transients TransientAnalysis `json:"transients"`
}

// Analyze computes spectral, rumble and transient descriptors together.
func (a *Analyzer) Analyze(signal []float32) Profile {
	mags := a.Spectrum(signal)
	return Profile{
		Spectral:   a.featuresOf(signal, mags),
		Rumble:     a.rumbleOf(mags),
		Transients: transientsOf(mags),
	}
}
