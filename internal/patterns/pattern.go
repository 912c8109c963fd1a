// Package patterns owns the set of reference sounds the detector listens for.
package patterns

import (
	"strings"
	"time"

	"github.com/GriffinCanCode/soundwatch/internal/classifier"
	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
)

// Pattern is an immutable reference sound. Registry mutations replace
// values; they never modify a Pattern in place.
type Pattern struct {
	Name       string             `json:"name"`
	Profile    classifier.Profile `json:"profile"`
	Active     bool               `json:"isActive"`
	SampleRate int                `json:"sampleRate"`
	CreatedAt  time.Time          `json:"createdAt"`
	Hash       uint64             `json:"spectrogramHash"`
}

// Duration returns the length of the source clip.
func (p Pattern) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(p.Profile.Samples) / float64(p.SampleRate) * float64(time.Second))
}

// Reference adapts the pattern for classification.
func (p Pattern) Reference() classifier.Reference {
	return classifier.Reference{Name: p.Name, Profile: p.Profile}
}

// Build validates and profiles a new pattern.
func Build(c *classifier.Classifier, name string, samples []float32, active bool, now time.Time) (Pattern, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Pattern{}, apperrors.New(apperrors.CodePatternInvalid, "pattern name is required")
	}
	if len(samples) == 0 {
		return Pattern{}, apperrors.New(apperrors.CodeAudioEmptyInput, "pattern has no audio").
			WithMetadata("pattern", name)
	}
	rate := c.Config().SampleRate
	hash, err := SpectrogramHash(samples, rate)
	if err != nil {
		return Pattern{}, apperrors.Wrap(err, apperrors.CodePatternInvalid, "hash pattern spectrogram").
			WithMetadata("pattern", name)
	}
	return Pattern{
		Name:       name,
		Profile:    c.Profile(samples),
		Active:     active,
		SampleRate: rate,
		CreatedAt:  now,
		Hash:       hash,
	}, nil
}
