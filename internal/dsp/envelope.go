package dsp

// EventSpan returns the length in samples of the most recent sound event in
// signal. The signal is cut into short envelope frames; a frame is active
// when its RMS reaches both EventFloor and EventRelativeLevel times the
// loudest frame. The event is the last run of active frames, bridging quiet
// gaps up to EventMaxGapSeconds. Silence yields 0.
func EventSpan(signal []float32, sampleRate int) int {
	if len(signal) == 0 || sampleRate <= 0 {
		return 0
	}
	frame := max(1, int(float64(sampleRate)*EventFrameSeconds))
	n := (len(signal) + frame - 1) / frame

	env := make([]float64, n)
	var peak float64
	for i := range env {
		end := min(len(signal), (i+1)*frame)
		env[i] = RMS(signal[i*frame : end])
		peak = max(peak, env[i])
	}
	level := max(EventFloor, EventRelativeLevel*peak)
	gapFrames := EventMaxGapSeconds/EventFrameSeconds + 0.5
	maxGap := int(gapFrames)

	last := -1
	for i := n - 1; i >= 0; i-- {
		if env[i] >= level {
			last = i
			break
		}
	}
	if last < 0 {
		return 0
	}

	first, gap := last, 0
	for i := last - 1; i >= 0; i-- {
		if env[i] >= level {
			first, gap = i, 0
			continue
		}
		if gap++; gap > maxGap {
			break
		}
	}
	return min(len(signal), (last+1)*frame) - first*frame
}
