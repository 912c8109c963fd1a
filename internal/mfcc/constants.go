package mfcc

const (
	DefaultFrameSize   = 512
	DefaultHopSize     = 256
	DefaultNumFilters  = 26
	DefaultNumCoeffs   = 13
	DefaultLowFreq     = 80.0
	DefaultHighFreq    = 8000.0
	DefaultPreEmphasis = 0.97
	DefaultLogFloor    = 1e-10
)
