package audio

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
)

const (
	pcmScale = 32768.0

	wavFormatPCM   = 1
	wavFormatFloat = 3
	wavExtensible  = 0xFFFE
)

// Clip is decoded mono audio.
type Clip struct {
	Samples    []float32
	SampleRate int
}

// DecodeWAV reads a RIFF/WAVE file holding 8/16/24/32-bit PCM or 32-bit
// float samples. Multi-channel audio is averaged down to mono.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, apperrors.New(apperrors.CodeAudioInvalidFormat, "not a RIFF/WAVE file")
	}

	var (
		format, channels, bits uint16
		rate                   uint32
		body                   []byte
		haveFmt                bool
	)
	for pos := 12; pos+8 <= len(data); {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		start := pos + 8
		end := min(start+size, len(data))
		switch id {
		case "fmt ":
			if end-start < 16 {
				return Clip{}, apperrors.New(apperrors.CodeAudioInvalidFormat, "short fmt chunk")
			}
			c := data[start:end]
			format = binary.LittleEndian.Uint16(c[0:2])
			channels = binary.LittleEndian.Uint16(c[2:4])
			rate = binary.LittleEndian.Uint32(c[4:8])
			bits = binary.LittleEndian.Uint16(c[14:16])
			if format == wavExtensible && len(c) >= 26 {
				format = binary.LittleEndian.Uint16(c[24:26])
			}
			haveFmt = true
		case "data":
			body = data[start:end]
		}
		pos = start + size + size%2 // chunks are word aligned
	}

	if !haveFmt || body == nil {
		return Clip{}, apperrors.New(apperrors.CodeAudioInvalidFormat, "missing fmt or data chunk")
	}
	if channels == 0 || rate == 0 {
		return Clip{}, apperrors.New(apperrors.CodeAudioInvalidFormat, "invalid channel count or sample rate")
	}

	decode, width, err := sampleDecoder(format, bits)
	if err != nil {
		return Clip{}, err
	}
	frame := width * int(channels)
	frames := len(body) / frame
	out := make([]float32, frames)
	for i := range frames {
		var sum float64
		for ch := range int(channels) {
			off := i*frame + ch*width
			sum += decode(body[off : off+width])
		}
		out[i] = float32(sum / float64(channels))
	}
	return Clip{Samples: out, SampleRate: int(rate)}, nil
}

func sampleDecoder(format, bits uint16) (func([]byte) float64, int, error) {
	switch {
	case format == wavFormatPCM && bits == 8:
		return func(b []byte) float64 { return (float64(b[0]) - 128) / 128 }, 1, nil
	case format == wavFormatPCM && bits == 16:
		return func(b []byte) float64 {
			return float64(int16(binary.LittleEndian.Uint16(b))) / pcmScale
		}, 2, nil
	case format == wavFormatPCM && bits == 24:
		return func(b []byte) float64 {
			v := int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
			return float64(v) / (1 << 23)
		}, 3, nil
	case format == wavFormatPCM && bits == 32:
		return func(b []byte) float64 {
			return float64(int32(binary.LittleEndian.Uint32(b))) / (1 << 31)
		}, 4, nil
	case format == wavFormatFloat && bits == 32:
		return func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}, 4, nil
	}
	return nil, 0, apperrors.Newf(apperrors.CodeAudioInvalidFormat, "unsupported WAV encoding: format %d, %d bits", format, bits)
}

// EncodeWAV writes samples as a mono 16-bit PCM WAV file.
func EncodeWAV(w io.Writer, samples []float32, sampleRate int) error {
	dataLen := uint32(2 * len(samples))
	var hdr bytes.Buffer
	hdr.WriteString("RIFF")
	_ = binary.Write(&hdr, binary.LittleEndian, 36+dataLen)
	hdr.WriteString("WAVEfmt ")
	_ = binary.Write(&hdr, binary.LittleEndian, struct {
		Size       uint32
		Format     uint16
		Channels   uint16
		Rate       uint32
		ByteRate   uint32
		BlockAlign uint16
		Bits       uint16
	}{16, wavFormatPCM, 1, uint32(sampleRate), uint32(2 * sampleRate), 2, 16})
	hdr.WriteString("data")
	_ = binary.Write(&hdr, binary.LittleEndian, dataLen)
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}

	body := make([]byte, dataLen)
	for i, s := range samples {
		v := math.Round(float64(s) * (pcmScale - 1))
		v = max(-pcmScale, min(pcmScale-1, v))
		binary.LittleEndian.PutUint16(body[2*i:], uint16(int16(v)))
	}
	_, err := w.Write(body)
	return err
}

// WAVBytes encodes samples with EncodeWAV into memory.
func WAVBytes(samples []float32, sampleRate int) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + 2*len(samples))
	_ = EncodeWAV(&buf, samples, sampleRate)
	return buf.Bytes()
}
