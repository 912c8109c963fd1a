package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"

	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
)

// StreamSource reads signed 16-bit little-endian mono PCM from a reader, such
// as a pipe from arecord or ffmpeg.
type StreamSource struct {
	name       string
	sampleRate int
	open       func(ctx context.Context) (io.ReadCloser, error)

	mu     sync.Mutex
	rc     io.ReadCloser
	raw    []byte
	odd    []byte // carries a split sample between reads
	closed bool
}

// NewStreamSource creates a source whose reader is produced by open.
func NewStreamSource(name string, sampleRate int, open func(ctx context.Context) (io.ReadCloser, error)) *StreamSource {
	return &StreamSource{name: name, sampleRate: sampleRate, open: open}
}

// NewReaderSource wraps an already open reader.
func NewReaderSource(name string, sampleRate int, r io.Reader) *StreamSource {
	return NewStreamSource(name, sampleRate, func(context.Context) (io.ReadCloser, error) {
		if rc, ok := r.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(r), nil
	})
}

func (s *StreamSource) SampleRate() int { return s.sampleRate }
func (s *StreamSource) Name() string    { return s.name }

// Open implements Source.
func (s *StreamSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rc != nil {
		return nil
	}
	rc, err := s.open(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeAudioUnavailable, "open audio stream").
			WithMetadata("source", s.name)
	}
	s.rc, s.closed, s.odd = rc, false, nil
	return nil
}

// Read implements Source. End of stream is reported as io.EOF.
func (s *StreamSource) Read(buf []float32) (int, error) {
	s.mu.Lock()
	rc, closed := s.rc, s.closed
	s.mu.Unlock()
	if closed || rc == nil {
		return 0, ErrClosed
	}
	if len(buf) == 0 {
		return 0, nil
	}

	need := 2 * len(buf)
	if cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	raw := s.raw[:need]
	off := copy(raw, s.odd)
	s.odd = s.odd[:0]

	for off < 2 {
		n, err := rc.Read(raw[off:])
		off += n
		if err != nil {
			if off >= 2 {
				break
			}
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, apperrors.Wrap(err, apperrors.CodeAudioUnavailable, "read audio stream")
		}
	}

	samples := off / 2
	if off%2 == 1 {
		s.odd = append(s.odd, raw[off-1])
	}
	for i := range samples {
		buf[i] = float32(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / pcmScale
	}
	return samples, nil
}

// Close implements Source.
func (s *StreamSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rc == nil {
		return nil
	}
	err := s.rc.Close()
	s.rc, s.closed = nil, true
	return err
}
