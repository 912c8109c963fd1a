package classifier

import (
	"math"
	"slices"
	"testing"

	"github.com/GriffinCanCode/soundwatch/internal/dsp"
)

const rate = 44100

func tone(freq, amp, seconds float64) []float32 {
	n := int(seconds * rate)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return out
}

func sweep(f0, f1, amp, seconds float64) []float32 {
	n := int(seconds * rate)
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / rate
		phase := 2 * math.Pi * (f0*t + (f1-f0)*t*t/(2*seconds))
		out[i] = float32(amp * math.Sin(phase))
	}
	return out
}

func whiteNoise(seconds, amp float64) []float32 {
	n := int(seconds * rate)
	out := make([]float32, n)
	x := uint32(12345)
	for i := range out {
		x = x*1664525 + 1013904223
		out[i] = float32(amp * (float64(x>>8)/float64(1<<24)*2 - 1))
	}
	return out
}

func newTestClassifier() *Classifier {
	return New(Config{SampleRate: rate})
}

func TestClassifyIdenticalClip(t *testing.T) {
	c := newTestClassifier()
	clip := sweep(600, 1400, 0.5, 1)
	refs := []Reference{{Name: "chirp", Profile: c.Profile(clip)}}

	m, ok := c.Classify(clip, refs, 0.6)
	if !ok {
		t.Fatal("identical clip did not match")
	}
	if m.Name != "chirp" || m.Confidence < 0.99 {
		t.Errorf("match = %+v, want chirp with confidence ~1", m)
	}
	if m.Breakdown.Duration != 1 || m.Breakdown.EnergyPenalty != 0 {
		t.Errorf("breakdown = %+v, want full duration and no penalty", m.Breakdown)
	}
}

func TestClassifyAlignsWindowToPatternDuration(t *testing.T) {
	c := newTestClassifier()
	clip := sweep(600, 1400, 0.5, 1)
	refs := []Reference{{Name: "chirp", Profile: c.Profile(clip)}}

	// An unrelated sound and a pause precede the event in the window.
	window := slices.Concat(tone(200, 0.3, 0.5), make([]float32, rate/2), clip)
	m, ok := c.Classify(window, refs, 0.6)
	if !ok || m.Confidence < 0.99 {
		t.Errorf("match = %+v ok = %v, want near-perfect match on window tail", m, ok)
	}
	if m.Breakdown.Duration != 1 {
		t.Errorf("duration similarity = %v, want 1", m.Breakdown.Duration)
	}
}

func TestClassifyDurationFollowsLiveEvent(t *testing.T) {
	c := newTestClassifier()
	refs := []Reference{{Name: "beep", Profile: c.Profile(tone(1000, 0.4, 1))}}

	// The same tone sounding for three seconds is not a one second beep.
	m, _ := c.Classify(tone(1000, 0.4, 3), refs, 0)
	if math.Abs(m.Breakdown.Duration-1.0/3) > 0.01 {
		t.Errorf("duration similarity = %v, want ~1/3", m.Breakdown.Duration)
	}
	if m.Breakdown.MFCC < 0.99 {
		t.Errorf("MFCC similarity = %v, want ~1 on the aligned tail", m.Breakdown.MFCC)
	}
}

func TestClassifyRejectsNearbyTones(t *testing.T) {
	c := newTestClassifier()
	refs := []Reference{{Name: "alarm", Profile: c.Profile(tone(1000, 0.5, 2))}}

	for _, freq := range []float64{300, 1500, 3000} {
		m, _ := c.Classify(tone(freq, 0.5, 2), refs, 0)
		if m.Confidence >= 0.6 {
			t.Errorf("%v Hz vs 1 kHz: confidence = %.3f (%+v), want < 0.6", freq, m.Confidence, m.Breakdown)
		}
	}
	if m, ok := c.Classify(tone(1000, 0.5, 2), refs, 0.6); !ok || m.Confidence < 0.99 {
		t.Errorf("same tone: %+v ok = %v", m, ok)
	}
}

func TestPitchSimilarity(t *testing.T) {
	tests := []struct{ a, b, want float64 }{
		{0, 0, 1},
		{1000, 1000, 1},
		{1000, 2000, 0},
		{2000, 1000, 0},
		{1000, 1414.2135623730951, 0.5},
		{0, 440, 0},
		{300, 3000, 0},
	}
	for _, tt := range tests {
		if got := pitchSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("pitchSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestClassifyRejectsDifferentSound(t *testing.T) {
	c := newTestClassifier()
	refs := []Reference{{Name: "beep", Profile: c.Profile(tone(1000, 0.4, 1))}}

	if m, ok := c.Classify(whiteNoise(1, 0.1), refs, 0.6); ok {
		t.Errorf("noise matched beep: %+v", m)
	}
}

func TestClassifyPicksBestReference(t *testing.T) {
	c := newTestClassifier()
	refs := []Reference{
		{Name: "low", Profile: c.Profile(tone(1000, 0.4, 1))},
		{Name: "high", Profile: c.Profile(tone(3000, 0.4, 1))},
		{Name: "high-copy", Profile: c.Profile(tone(3000, 0.4, 1))},
	}

	m, ok := c.Classify(tone(3000, 0.4, 1), refs, 0.5)
	if !ok || m.Name != "high" {
		t.Errorf("match = %+v ok = %v, want first of the tied 3 kHz references", m, ok)
	}
}

func TestClassifyEmptyInputs(t *testing.T) {
	c := newTestClassifier()
	refs := []Reference{{Name: "beep", Profile: c.Profile(tone(1000, 0.4, 0.5))}}

	if _, ok := c.Classify(nil, refs, 0.1); ok {
		t.Error("empty window matched")
	}
	if _, ok := c.Classify(tone(1000, 0.4, 0.5), nil, 0.1); ok {
		t.Error("matched with no references")
	}
}

func TestScoreEnergyPenalty(t *testing.T) {
	c := newTestClassifier()
	ref := Reference{Name: "beep", Profile: c.Profile(tone(1000, 0.4, 1))}

	loud := c.Score(c.Profile(tone(1000, 0.4, 1)), ref)
	quiet := c.Score(c.Profile(tone(1000, 0.4/16, 1)), ref)
	if loud.Breakdown.EnergyPenalty != 0 {
		t.Errorf("same level penalty = %v, want 0", loud.Breakdown.EnergyPenalty)
	}
	if quiet.Breakdown.EnergyPenalty <= 0 || quiet.Confidence >= loud.Confidence {
		t.Errorf("quiet breakdown = %+v confidence %v vs %v", quiet.Breakdown, quiet.Confidence, loud.Confidence)
	}
}

func TestEnergyPenalty(t *testing.T) {
	tests := []struct {
		live, ref float64
		want       float64
	}{
		{0.2, 0.2, 0},
		{0.1, 0.2, 0},
		{0.4, 0.2, 0},
		{0.8, 0.2, 0.15},
		{0.05, 0.2, 0.15},
		{5, 0.2, 0.3},
		{0, 0.2, 0.3},
		{0.2, 0, 0.3},
	}
	for _, tt := range tests {
		if got := energyPenalty(tt.live, tt.ref, MaxEnergyPenalty); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("energyPenalty(%v, %v) = %v, want %v", tt.live, tt.ref, got, tt.want)
		}
	}
}

func TestRatioSimilarity(t *testing.T) {
	tests := []struct{ a, b, want float64 }{
		{0, 0, 1},
		{100, 100, 1},
		{50, 100, 0.5},
		{100, 50, 0.5},
		{0, 10, 0},
	}
	for _, tt := range tests {
		if got := ratioSimilarity(tt.a, tt.b); got != tt.want {
			t.Errorf("ratioSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	w := DefaultWeights()
	if s := w.MFCC + w.Spectral + w.Duration; math.Abs(s-1) > 1e-12 {
		t.Errorf("weights sum = %v, want 1", s)
	}
}

func TestRecognizeType(t *testing.T) {
	c := newTestClassifier()
	tests := []struct {
		name   string
		window []float32
		want   SoundType
	}{
		{"siren sweep", sweep(600, 1400, 0.5, 2), TypeSiren},
		{"alarm tone", tone(3000, 0.5, 1), TypeAlarm},
		{"beep tone", tone(1000, 0.5, 1), TypeBeeping},
		{"low hum", tone(50, 0.5, 1), TypeRumble},
		{"silence", make([]float32, rate), TypeUnknown},
		{"empty", nil, TypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.RecognizeType(tt.window)
			if got.Type != tt.want {
				t.Errorf("type = %s, want %s (profile %+v)", got.Type, tt.want, got.Profile.Spectral)
			}
			if tt.want == TypeUnknown && got.Confidence != 0 {
				t.Errorf("unknown confidence = %v, want 0", got.Confidence)
			}
			if tt.want != TypeUnknown && got.Confidence <= 0 {
				t.Errorf("confidence = %v, want > 0", got.Confidence)
			}
		})
	}
}

func TestRecognizeUsesTransientSharpness(t *testing.T) {
	machine := dsp.Profile{
		Spectral:   dsp.SpectralFeatures{DominantFrequency: 180, Spread: 300, Energy: 0.3},
		Rumble:     dsp.RumbleAnalysis{HasRumble: true, LowFreqRatio: 0.25},
		Transients: dsp.TransientAnalysis{HasTransients: true, PeakCount: 8, Sharpness: 9},
	}
	if got := recognize(machine).Type; got != TypeMechanicalFailure {
		t.Errorf("sharp harmonics over rumble = %s, want %s", got, TypeMechanicalFailure)
	}

	blunt := machine
	blunt.Transients.Sharpness = 2.5
	if got := recognize(blunt).Type; got != TypeRumble {
		t.Errorf("blunt peaks over rumble = %s, want %s", got, TypeRumble)
	}

	blast := dsp.Profile{
		Spectral:   dsp.SpectralFeatures{DominantFrequency: 60, Spread: 900, Energy: 0.5},
		Rumble:     dsp.RumbleAnalysis{HasRumble: true, LowFreqRatio: 0.45},
		Transients: dsp.TransientAnalysis{HasTransients: true, PeakCount: 5, Sharpness: 2.8},
	}
	if got := recognize(blast).Type; got != TypeExplosion {
		t.Errorf("broadband blast = %s, want %s", got, TypeExplosion)
	}

	tonal := blast
	tonal.Transients.Sharpness = 12
	if got := recognize(tonal).Type; got == TypeExplosion {
		t.Errorf("tonal low-frequency sound labelled %s", got)
	}
}

func TestFeedbackIsHarmless(t *testing.T) {
	c := newTestClassifier()
	before := c.Config().Weights
	c.Feedback("beep", false)
	if c.Config().Weights != before {
		t.Error("feedback changed weights")
	}
}
