// Package classifier decides whether a window of live audio matches one of a
// set of reference sounds, and labels windows with a coarse sound type.
package classifier

import (
	"log/slog"
	"math"
	"sync"

	"github.com/GriffinCanCode/soundwatch/internal/dsp"
	"github.com/GriffinCanCode/soundwatch/internal/dtw"
	"github.com/GriffinCanCode/soundwatch/internal/mfcc"
)

// Profile is everything the classifier knows about one clip.
type Profile struct {
	Fingerprint mfcc.Fingerprint      `json:"fingerprint"`
	Spectral    dsp.SpectralFeatures  `json:"spectral"`
	Rumble      dsp.RumbleAnalysis    `json:"rumble"`
	Transients  dsp.TransientAnalysis `json:"transients"`
	Samples     int                   `json:"samples"`
	// EventSamples is the length of the sound event inside the clip, with
	// surrounding silence and background excluded.
	EventSamples int `json:"eventSamples"`
}

// Reference is a named profile to score live audio against.
type Reference struct {
	Name    string
	Profile Profile
}

// Breakdown shows how a combined confidence was assembled.
type Breakdown struct {
	MFCC          float64 `json:"mfcc"`
	Spectral      float64 `json:"spectral"`
	Duration      float64 `json:"duration"`
	EnergyPenalty float64 `json:"energyPenalty"`
}

// Match is the best-scoring reference for a window.
type Match struct {
	Name       string     `json:"name"`
	Confidence float64    `json:"confidence"`
	Breakdown  Breakdown  `json:"breakdown"`
	DTW        dtw.Result `json:"dtw"`
}

// Weights blend the component similarities.
type Weights struct {
	MFCC             float64
	Spectral         float64
	Duration         float64
	MaxEnergyPenalty float64
}

// DefaultWeights returns the canonical 0.5 / 0.3 / 0.2 blend.
func DefaultWeights() Weights {
	return Weights{
		MFCC:             WeightMFCC,
		Spectral:         WeightSpectral,
		Duration:         WeightDuration,
		MaxEnergyPenalty: MaxEnergyPenalty,
	}
}

// Config configures a Classifier.
type Config struct {
	SampleRate     int
	MatchThreshold float64 // normalized DTW distance at which MFCC confidence reaches 0
	Weights        Weights
	MFCC           mfcc.Config
}

// Classifier profiles audio and scores it against references. It is safe for
// concurrent use.
type Classifier struct {
	cfg       Config
	extractor *mfcc.Extractor
	analyzer  *dsp.Analyzer
}

// New creates a classifier. Zero-valued fields fall back to defaults.
func New(cfg Config) *Classifier {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = DefaultMatchThreshold
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	cfg.MFCC.SampleRate = cfg.SampleRate
	ex := mfcc.New(cfg.MFCC)
	cfg.MFCC = ex.Config()
	return &Classifier{cfg: cfg, extractor: ex, analyzer: dsp.NewAnalyzer(cfg.SampleRate)}
}

// Config returns the effective configuration.
func (c *Classifier) Config() Config { return c.cfg }

// Extractor exposes the fingerprint extractor.
func (c *Classifier) Extractor() *mfcc.Extractor { return c.extractor }

// Analyzer exposes the spectral analyzer.
func (c *Classifier) Analyzer() *dsp.Analyzer { return c.analyzer }

// Profile computes the fingerprint and spectral descriptors of samples. The
// raw spectrum is not retained.
func (c *Classifier) Profile(samples []float32) Profile {
	a := c.analyzer.Analyze(samples)
	a.Spectral.Spectrum = nil
	return Profile{
		Fingerprint:  c.extractor.Extract(samples),
		Spectral:     a.Spectral,
		Rumble:       a.Rumble,
		Transients:   a.Transients,
		Samples:      len(samples),
		EventSamples: dsp.EventSpan(samples, c.cfg.SampleRate),
	}
}

// Classify scores window against every reference and returns the best one
// whose combined confidence reaches threshold. Each reference is compared
// with the most recent part of the window matching its own duration, while
// duration similarity uses the length of the latest event in the whole
// window. Ties keep the earliest reference.
func (c *Classifier) Classify(window []float32, refs []Reference, threshold float64) (Match, bool) {
	if len(window) == 0 || len(refs) == 0 {
		return Match{}, false
	}

	// References sharing a window length share one live profile.
	groups := make(map[int][]int)
	for i, ref := range refs {
		n := windowLength(len(window), ref.Profile.Samples)
		groups[n] = append(groups[n], i)
	}

	event := dsp.EventSpan(window, c.cfg.SampleRate)
	results := make([]Match, len(refs))
	var wg sync.WaitGroup
	for n, idxs := range groups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			live := c.Profile(window[len(window)-n:])
			live.EventSamples = event
			for _, i := range idxs {
				results[i] = c.Score(live, refs[i])
			}
		}()
	}
	wg.Wait()

	best := -1
	for i, m := range results {
		if m.Confidence < threshold {
			continue
		}
		if best < 0 || m.Confidence > results[best].Confidence {
			best = i
		}
	}
	if best < 0 {
		return Match{}, false
	}
	return results[best], true
}

// Score combines the component similarities of live against ref.
func (c *Classifier) Score(live Profile, ref Reference) Match {
	w := c.cfg.Weights
	r := dtw.Match(live.Fingerprint, ref.Profile.Fingerprint, c.cfg.MatchThreshold)

	b := Breakdown{
		MFCC:          r.Confidence,
		Spectral:      SpectralSimilarity(live, ref.Profile),
		Duration:      ratioSimilarity(float64(live.EventSamples), float64(ref.Profile.EventSamples)),
		EnergyPenalty: energyPenalty(live.Spectral.Energy, ref.Profile.Spectral.Energy, w.MaxEnergyPenalty),
	}
	combined := w.MFCC*b.MFCC + w.Spectral*b.Spectral + w.Duration*b.Duration - b.EnergyPenalty
	return Match{
		Name:       ref.Name,
		Confidence: min(1, max(0, combined)),
		Breakdown:  b,
		DTW:        r,
	}
}

// Feedback receives a user verdict on a detection. Weights are not adapted
// yet; the verdict is only logged.
func (c *Classifier) Feedback(pattern string, accepted bool) {
	slog.Debug("detection feedback", "pattern", pattern, "accepted", accepted)
}

// SpectralSimilarity averages centroid, spread, dominant-frequency and
// rumble-ratio similarity. Frequencies are compared on a log scale.
func SpectralSimilarity(a, b Profile) float64 {
	return (pitchSimilarity(a.Spectral.Centroid, b.Spectral.Centroid) +
		ratioSimilarity(a.Spectral.Spread, b.Spectral.Spread) +
		pitchSimilarity(a.Spectral.DominantFrequency, b.Spectral.DominantFrequency) +
		ratioSimilarity(a.Rumble.LowFreqRatio, b.Rumble.LowFreqRatio)) / 4
}

func windowLength(window, pattern int) int {
	if pattern <= 0 || pattern > window {
		return window
	}
	return pattern
}

// ratioSimilarity is 1 - |a-b|/max(|a|,|b|), and 1 when both are zero.
func ratioSimilarity(a, b float64) float64 {
	m := max(math.Abs(a), math.Abs(b))
	if m == 0 {
		return 1
	}
	return 1 - math.Abs(a-b)/m
}

// pitchSimilarity falls linearly from 1 at equal frequencies to 0 at
// PitchToleranceOctaves apart.
func pitchSimilarity(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		if a == b {
			return 1
		}
		return 0
	}
	return max(0, 1-math.Abs(math.Log2(a/b))/PitchToleranceOctaves)
}

// energyPenalty is zero within a 2x loudness ratio and grows per octave
// beyond it, capped at limit. Silence on either side costs the full limit.
func energyPenalty(live, ref, limit float64) float64 {
	if live <= 0 || ref <= 0 {
		return limit
	}
	octaves := math.Abs(math.Log2(live / ref))
	if octaves <= 1 {
		return 0
	}
	return min(limit, EnergyPenaltyPerOctave*(octaves-1))
}
