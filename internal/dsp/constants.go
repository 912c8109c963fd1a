package dsp

const (
	RumbleLowHz     = 20.0
	RumbleHighHz    = 100.0
	RumbleRatio     = 0.15 // low-band energy share above which a signal rumbles
	TransientFactor = 2.0  // peak must exceed this multiple of the mean magnitude
	TransientPeaks  = 3    // more peaks than this means the signal has transients
)

// Event envelope used by EventSpan
const (
	EventFrameSeconds  = 0.02
	EventFloor         = 0.01 // absolute RMS below which a frame is silent
	EventRelativeLevel = 0.1  // frames under this share of the loudest frame are background
	EventMaxGapSeconds = 0.3  // quieter stretches up to this long stay inside one event
)
