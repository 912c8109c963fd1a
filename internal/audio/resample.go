package audio

import (
	resampling "github.com/tphakala/go-audio-resampling"

	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
)

// Resample converts mono samples from one rate to another. Equal rates
// return a copy.
func Resample(samples []float32, from, to int) ([]float32, error) {
	if from <= 0 || to <= 0 {
		return nil, apperrors.Newf(apperrors.CodeAudioInvalidFormat, "invalid sample rates %d -> %d", from, to)
	}
	if from == to || len(samples) == 0 {
		return append([]float32(nil), samples...), nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAudioInvalidFormat, "create resampler")
	}

	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s)
	}
	out, err := r.Process(in)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAudioInvalidFormat, "resample")
	}

	res := make([]float32, len(out))
	for i, v := range out {
		res[i] = float32(max(-1, min(1, v)))
	}
	return res, nil
}
