package audio

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
)

// Capturer reads a single microphone through PortAudio.
type Capturer struct {
	sampleRate   int
	framesPerBuf int
	device       string // preferred device name substring; empty picks the best mic
	excludedDevs []string

	mu       sync.Mutex
	stream   *portaudio.Stream
	buf      []float32
	pending  []float32
	name     string
	initDone bool
}

// CaptureConfig configures a Capturer.
type CaptureConfig struct {
	SampleRate      int
	FramesPerBuffer int
	Device          string
	ExcludedDevices []string
}

// NewCapturer creates a microphone source. The device is not touched until Open.
func NewCapturer(cfg CaptureConfig) *Capturer {
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = DefaultFramesPerBuffer
	}
	return &Capturer{
		sampleRate:   cfg.SampleRate,
		framesPerBuf: cfg.FramesPerBuffer,
		device:       cfg.Device,
		excludedDevs: cfg.ExcludedDevices,
	}
}

// SampleRate implements Source.
func (c *Capturer) SampleRate() int { return c.sampleRate }

// Name implements Source. It is the device name once opened.
func (c *Capturer) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.name == "" {
		return "portaudio"
	}
	return c.name
}

// Open selects an input device and starts a blocking mono stream on it.
func (c *Capturer) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeAudioUnavailable, "initialize portaudio")
	}
	c.initDone = true

	devices, err := portaudio.Devices()
	if err != nil {
		c.terminate()
		return apperrors.Wrap(err, apperrors.CodeAudioUnavailable, "list audio devices")
	}
	dev := c.pickDevice(devices)
	if dev == nil {
		c.terminate()
		return apperrors.New(apperrors.CodeAudioUnavailable, "no usable input device")
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(c.sampleRate),
		FramesPerBuffer: c.framesPerBuf,
	}
	buf := make([]float32, c.framesPerBuf)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		c.terminate()
		return apperrors.Wrap(err, apperrors.CodeAudioUnavailable, "open input stream").
			WithMetadata("device", dev.Name)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		c.terminate()
		return apperrors.Wrap(err, apperrors.CodeAudioUnavailable, "start input stream").
			WithMetadata("device", dev.Name)
	}

	c.stream, c.buf, c.name = stream, buf, dev.Name
	slog.Info("started audio capture", "device", dev.Name, "sample_rate", c.sampleRate)
	return nil
}

// Read implements Source. Each call returns at most one device buffer.
func (c *Capturer) Read(out []float32) (int, error) {
	if len(c.pending) == 0 {
		c.mu.Lock()
		stream := c.stream
		c.mu.Unlock()
		if stream == nil {
			return 0, ErrClosed
		}
		if err := stream.Read(); err != nil {
			// Input overflow only means samples were dropped; keep reading.
			if err == portaudio.InputOverflowed {
				slog.Debug("audio input overflowed", "device", c.name)
			} else {
				return 0, apperrors.Wrap(err, apperrors.CodeAudioUnavailable, "read input stream")
			}
		}
		c.pending = c.buf
	}
	n := copy(out, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Close stops the stream and releases PortAudio.
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		_ = c.stream.Stop()
		_ = c.stream.Close()
		c.stream = nil
	}
	c.terminate()
	return nil
}

func (c *Capturer) terminate() {
	if c.initDone {
		_ = portaudio.Terminate()
		c.initDone = false
	}
}

// pickDevice returns the requested device if present, else the best
// microphone, else the first remaining input.
func (c *Capturer) pickDevice(devices []*portaudio.DeviceInfo) *portaudio.DeviceInfo {
	var best, fallback *portaudio.DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 || c.isExcluded(dev.Name) {
			continue
		}
		if c.device != "" {
			if containsIgnoreCase(dev.Name, c.device) {
				return dev
			}
			continue
		}
		if classifyDevice(dev.Name) == SourceLoopback {
			continue
		}
		if fallback == nil {
			fallback = dev
		}
		if classifyDevice(dev.Name) == SourceMicrophone && (best == nil || preferDevice(dev.Name, best.Name)) {
			best = dev
		}
	}
	if best != nil {
		return best
	}
	return fallback
}

func (c *Capturer) isExcluded(name string) bool {
	for _, ex := range c.excludedDevs {
		if containsIgnoreCase(name, ex) {
			return true
		}
	}
	return false
}

// DeviceKind says what an input device most likely is.
type DeviceKind string

const (
	SourceMicrophone DeviceKind = "microphone"
	SourceLoopback   DeviceKind = "loopback"
	SourceOther      DeviceKind = "other"
)

func classifyDevice(name string) DeviceKind {
	for _, kw := range loopbackKeywords {
		if containsIgnoreCase(name, kw) {
			return SourceLoopback
		}
	}
	for _, kw := range micKeywords {
		if containsIgnoreCase(name, kw) {
			return SourceMicrophone
		}
	}
	return SourceOther
}

// preferDevice reports whether name beats current as the default mic.
func preferDevice(name, current string) bool {
	for _, p := range preferredMics {
		if containsIgnoreCase(name, p) && !containsIgnoreCase(current, p) {
			return true
		}
	}
	return false
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Device describes an input device.
type Device struct {
	Name              string     `json:"name"`
	Kind              DeviceKind `json:"kind"`
	Channels          int        `json:"channels"`
	DefaultSampleRate float64    `json:"defaultSampleRate"`
	Default           bool       `json:"default"`
}

// ListInputDevices enumerates PortAudio input devices.
func ListInputDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAudioUnavailable, "initialize portaudio")
	}
	defer func() { _ = portaudio.Terminate() }()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAudioUnavailable, "list audio devices")
	}
	var def string
	if d, err := portaudio.DefaultInputDevice(); err == nil && d != nil {
		def = d.Name
	}

	var out []Device
	for _, d := range devices {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, Device{
			Name:              d.Name,
			Kind:              classifyDevice(d.Name),
			Channels:          d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			Default:           d.Name == def,
		})
	}
	return out, nil
}
