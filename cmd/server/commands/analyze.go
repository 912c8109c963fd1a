package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/soundwatch/internal/audio"
	"github.com/GriffinCanCode/soundwatch/internal/classifier"
	"github.com/GriffinCanCode/soundwatch/internal/orchestrator"
	"github.com/GriffinCanCode/soundwatch/internal/patternwatch"
)

type analyzeReport struct {
	File            string                `json:"file"`
	SampleRate      int                   `json:"sampleRate"`
	DurationSeconds float64               `json:"durationSeconds"`
	SoundType       classifier.TypeResult `json:"soundType"`
	Scores          []classifier.Match    `json:"scores,omitempty"`
	Detected        string                `json:"detected,omitempty"`
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	var (
		patternDir string
		threshold  float64
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Label a WAV file and score it against reference patterns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("threshold") {
				threshold = root.cfg.ConfidenceThreshold
			}
			report, err := analyze(cmd, args[0], patternDir, threshold)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(cmd.OutOrStdout(), report, threshold)
			return nil
		},
	}
	cmd.Flags().StringVar(&patternDir, "patterns", "", "directory of reference WAV clips")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "confidence a match must exceed (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func analyze(cmd *cobra.Command, path, patternDir string, threshold float64) (analyzeReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return analyzeReport{}, err
	}
	clip, err := audio.DecodeWAV(data)
	if err != nil {
		return analyzeReport{}, err
	}

	// The detector runs at the clip's own rate so the clip is never resampled.
	det := orchestrator.New(nil, orchestrator.Config{SampleRate: clip.SampleRate})
	report := analyzeReport{
		File:            path,
		SampleRate:      clip.SampleRate,
		DurationSeconds: float64(len(clip.Samples)) / float64(clip.SampleRate),
		SoundType:       det.Classifier().RecognizeType(clip.Samples),
	}
	if patternDir == "" {
		return report, nil
	}

	if _, err := patternwatch.New(patternDir, clip.SampleRate, det).Scan(cmd.Context()); err != nil {
		return analyzeReport{}, err
	}
	for _, ref := range det.Patterns().ActiveReferences() {
		if m, ok := det.Classifier().Classify(clip.Samples, []classifier.Reference{ref}, 0); ok {
			report.Scores = append(report.Scores, m)
		}
	}
	slices.SortFunc(report.Scores, func(a, b classifier.Match) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})
	if len(report.Scores) > 0 && report.Scores[0].Confidence > threshold {
		report.Detected = report.Scores[0].Name
	}
	return report, nil
}

func printReport(w io.Writer, r analyzeReport, threshold float64) {
	fmt.Fprintf(w, "file:       %s (%.2fs @ %d Hz)\n", r.File, r.DurationSeconds, r.SampleRate)
	fmt.Fprintf(w, "sound type: %s (%.2f), dominant %.0f Hz\n", r.SoundType.Type, r.SoundType.Confidence,
		r.SoundType.Profile.Spectral.DominantFrequency)
	for _, m := range r.Scores {
		b := m.Breakdown
		fmt.Fprintf(w, "  %-20s %.3f  mfcc=%.2f spectral=%.2f duration=%.2f penalty=%.2f\n",
			m.Name, m.Confidence, b.MFCC, b.Spectral, b.Duration, b.EnergyPenalty)
	}
	if r.Detected != "" {
		fmt.Fprintf(w, "detected:   %s\n", r.Detected)
	} else if len(r.Scores) > 0 {
		fmt.Fprintf(w, "detected:   none above %.2f\n", threshold)
	}
}
