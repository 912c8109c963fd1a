package audio

import "errors"

// DefaultFramesPerBuffer is ~23ms at 44100Hz.
const DefaultFramesPerBuffer = 1024

// ErrClosed is returned by Read after Close.
var ErrClosed = errors.New("audio: source closed")

var (
	loopbackKeywords = []string{"blackhole", "vb-cable", "loopback", "monitor", "soundflower"}
	micKeywords      = []string{"microphone", "input", "mic", "built-in"}
	preferredMics    = []string{"macbook", "built-in"}
)
