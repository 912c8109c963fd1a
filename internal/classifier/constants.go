package classifier

const (
	WeightMFCC             = 0.5
	WeightSpectral         = 0.3
	WeightDuration         = 0.2
	MaxEnergyPenalty       = 0.3
	EnergyPenaltyPerOctave = 0.15
	PitchToleranceOctaves  = 1.0

	DefaultMatchThreshold = 2.0
)

// Sound type decision table.
const (
	sirenMinHz        = 500.0
	sirenMaxHz        = 2000.0
	sirenMinSpread    = 150.0
	alarmMinHz        = 2000.0
	alarmMaxHz        = 4500.0
	narrowSpread      = 150.0
	mechanicalMinHz   = 100.0
	explosionLowRatio = 0.3
	explosionSpread   = 500.0
	explosionMinRMS   = 0.2
	beepMinHz         = 400.0
	beepMaxHz         = 5000.0

	// Transient sharpness is peak magnitude over mean magnitude. Machine
	// harmonics stand well clear of the floor; blasts are broadband.
	mechanicalMinSharpness = 4.0
	explosionMaxSharpness  = 4.0

	sirenConfidence      = 0.8
	alarmConfidence      = 0.85
	mechanicalConfidence = 0.7
	explosionConfidence  = 0.75
	beepConfidence       = 0.7
	rumbleConfidence     = 0.65
)
