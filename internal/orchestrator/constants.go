package orchestrator

import "time"

// Orchestrator defaults
const (
	DefaultSampleRate      = 44100
	DefaultBufferSeconds   = 10
	DefaultFramesPerBuffer = 1024

	DefaultDetectionInterval   = 100 * time.Millisecond
	DefaultCooldown            = 5 * time.Second
	DefaultConfidenceThreshold = 0.6

	// Gating applied before any classification work
	DefaultSilenceWindowSeconds = 3.0
	DefaultSilenceLevel         = 0.01
	DefaultMinRMS               = 0.01

	// Capture read errors back off up to this long between attempts
	MaxCaptureBackoff = 2 * time.Second
)
