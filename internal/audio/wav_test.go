package audio

import (
	"encoding/binary"
	"math"
	"testing"

	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
)

func TestWAVRoundTrip(t *testing.T) {
	samples := make([]float32, 800)
	for i := range samples {
		samples[i] = float32(0.8 * math.Sin(2*math.Pi*440*float64(i)/8000))
	}

	clip, err := DecodeWAV(WAVBytes(samples, 8000))
	if err != nil {
		t.Fatalf("DecodeWAV error = %v", err)
	}
	if clip.SampleRate != 8000 || len(clip.Samples) != len(samples) {
		t.Fatalf("clip = %d Hz, %d samples", clip.SampleRate, len(clip.Samples))
	}
	for i := range samples {
		if d := math.Abs(float64(clip.Samples[i] - samples[i])); d > 1.0/16000 {
			t.Fatalf("sample %d = %v, want %v", i, clip.Samples[i], samples[i])
		}
	}
}

// rawWAV builds a WAV with arbitrary format fields.
func rawWAV(format, channels uint16, rate uint32, bits uint16, body []byte) []byte {
	b := []byte("RIFF\x00\x00\x00\x00WAVE")
	fmtChunk := make([]byte, 24)
	copy(fmtChunk, "fmt ")
	binary.LittleEndian.PutUint32(fmtChunk[4:], 16)
	binary.LittleEndian.PutUint16(fmtChunk[8:], format)
	binary.LittleEndian.PutUint16(fmtChunk[10:], channels)
	binary.LittleEndian.PutUint32(fmtChunk[12:], rate)
	binary.LittleEndian.PutUint16(fmtChunk[22:], bits)
	b = append(b, fmtChunk...)
	// An unrelated chunk with odd size must be skipped with padding.
	b = append(b, []byte("LIST\x03\x00\x00\x00abc\x00")...)
	data := make([]byte, 8)
	copy(data, "data")
	binary.LittleEndian.PutUint32(data[4:], uint32(len(body)))
	b = append(b, data...)
	return append(b, body...)
}

func TestDecodeWAVStereoDownmix(t *testing.T) {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint16(body[0:], uint16(int16(16384)))
	binary.LittleEndian.PutUint16(body[2:], 0)
	neg := int16(-16384)
	binary.LittleEndian.PutUint16(body[4:], uint16(neg))
	binary.LittleEndian.PutUint16(body[6:], uint16(neg))

	clip, err := DecodeWAV(rawWAV(wavFormatPCM, 2, 22050, 16, body))
	if err != nil {
		t.Fatal(err)
	}
	if len(clip.Samples) != 2 || clip.Samples[0] != 0.25 || clip.Samples[1] != -0.5 {
		t.Errorf("samples = %v, want [0.25 -0.5]", clip.Samples)
	}
}

func TestDecodeWAVFloat(t *testing.T) {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint32(body[0:], math.Float32bits(0.75))
	binary.LittleEndian.PutUint32(body[4:], math.Float32bits(-0.125))

	clip, err := DecodeWAV(rawWAV(wavFormatFloat, 1, 48000, 32, body))
	if err != nil {
		t.Fatal(err)
	}
	if clip.SampleRate != 48000 || len(clip.Samples) != 2 || clip.Samples[0] != 0.75 || clip.Samples[1] != -0.125 {
		t.Errorf("clip = %+v", clip)
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("RIFX\x00\x00\x00\x00WAVE")},
		{"no data", []byte("RIFF\x00\x00\x00\x00WAVE")},
		{"unsupported bits", rawWAV(wavFormatPCM, 1, 8000, 12, []byte{0, 0})},
		{"zero channels", rawWAV(wavFormatPCM, 0, 8000, 16, []byte{0, 0})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeWAV(tt.data)
			if !apperrors.IsCode(err, apperrors.CodeAudioInvalidFormat) {
				t.Errorf("error = %v, want AUDIO_INVALID_FORMAT", err)
			}
		})
	}
}

func TestEncodeWAVClamps(t *testing.T) {
	clip, err := DecodeWAV(WAVBytes([]float32{2, -2}, 8000))
	if err != nil {
		t.Fatal(err)
	}
	if clip.Samples[0] < 0.999 || clip.Samples[1] != -1 {
		t.Errorf("samples = %v, want clamped to full scale", clip.Samples)
	}
}

func TestResample(t *testing.T) {
	in := make([]float32, 16000)
	for i := range in {
		in[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}

	same, err := Resample(in, 16000, 16000)
	if err != nil || len(same) != len(in) {
		t.Fatalf("same-rate Resample = %d samples, %v", len(same), err)
	}
	same[0] = 9
	if in[0] == 9 {
		t.Error("same-rate Resample aliased its input")
	}

	up, err := Resample(in, 16000, 32000)
	if err != nil {
		t.Fatalf("Resample error = %v", err)
	}
	if len(up) == 0 || len(up) > 2*len(in)+1024 {
		t.Errorf("upsampled length = %d, want about %d", len(up), 2*len(in))
	}
	for _, s := range up {
		if s > 1 || s < -1 {
			t.Fatalf("sample %v out of range", s)
		}
	}

	if _, err := Resample(in, 0, 16000); !apperrors.IsCode(err, apperrors.CodeAudioInvalidFormat) {
		t.Errorf("invalid rate error = %v", err)
	}
}
