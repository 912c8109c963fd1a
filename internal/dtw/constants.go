package dtw

const (
	BandFraction         = 0.1 // Sakoe-Chiba radius as a share of the longer sequence
	StrongMatchThreshold = 0.7
)
