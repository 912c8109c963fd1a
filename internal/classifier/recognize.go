package classifier

import "github.com/GriffinCanCode/soundwatch/internal/dsp"

// SoundType is a coarse label for a window of audio.
type SoundType string

const (
	TypeSiren             SoundType = "siren"
	TypeAlarm             SoundType = "alarm"
	TypeMechanicalFailure SoundType = "mechanical_failure"
	TypeExplosion         SoundType = "explosion"
	TypeBeeping           SoundType = "beeping"
	TypeRumble            SoundType = "rumble"
	TypeUnknown           SoundType = "unknown"
)

// TypeResult is the label chosen for a window.
type TypeResult struct {
	Type       SoundType   `json:"type"`
	Confidence float64     `json:"confidence"`
	Profile    dsp.Profile `json:"profile"`
}

type typeRule struct {
	kind       SoundType
	confidence float64
	match      func(dsp.Profile) bool
}

// Rules are checked in order; the first hit wins.
var typeRules = []typeRule{
	{TypeSiren, sirenConfidence, func(p dsp.Profile) bool {
		f := p.Spectral.DominantFrequency
		return f >= sirenMinHz && f <= sirenMaxHz && p.Spectral.Spread >= sirenMinSpread && !p.Rumble.HasRumble
	}},
	{TypeAlarm, alarmConfidence, func(p dsp.Profile) bool {
		f := p.Spectral.DominantFrequency
		return f > alarmMinHz && f <= alarmMaxHz && p.Spectral.Spread < narrowSpread
	}},
	{TypeMechanicalFailure, mechanicalConfidence, func(p dsp.Profile) bool {
		return p.Rumble.HasRumble && p.Transients.HasTransients &&
			p.Transients.Sharpness >= mechanicalMinSharpness && p.Spectral.DominantFrequency > mechanicalMinHz
	}},
	{TypeExplosion, explosionConfidence, func(p dsp.Profile) bool {
		// Broadband: no harmonic line stands far above the rest.
		return p.Rumble.LowFreqRatio > explosionLowRatio && p.Spectral.Spread > explosionSpread &&
			p.Spectral.Energy > explosionMinRMS && p.Transients.Sharpness < explosionMaxSharpness
	}},
	{TypeBeeping, beepConfidence, func(p dsp.Profile) bool {
		f := p.Spectral.DominantFrequency
		return f >= beepMinHz && f <= beepMaxHz && p.Spectral.Spread < narrowSpread
	}},
	{TypeRumble, rumbleConfidence, func(p dsp.Profile) bool {
		return p.Rumble.HasRumble
	}},
}

// RecognizeType labels window using fixed spectral thresholds.
func (c *Classifier) RecognizeType(window []float32) TypeResult {
	p := c.analyzer.Analyze(window)
	p.Spectral.Spectrum = nil
	return recognize(p)
}

func recognize(p dsp.Profile) TypeResult {
	for _, r := range typeRules {
		if r.match(p) {
			return TypeResult{Type: r.kind, Confidence: r.confidence, Profile: p}
		}
	}
	return TypeResult{Type: TypeUnknown, Profile: p}
}
