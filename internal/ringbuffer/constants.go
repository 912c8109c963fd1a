package ringbuffer

const (
	SignalFloor    = 0.01 // peak amplitude below which there is no signal
	SilentFraction = 0.95 // share of quiet samples that makes a window silent
)
