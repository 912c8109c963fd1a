package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/soundwatch/internal/audio"
	"github.com/GriffinCanCode/soundwatch/internal/clips"
	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
	"github.com/GriffinCanCode/soundwatch/internal/grpcserver"
	"github.com/GriffinCanCode/soundwatch/internal/orchestrator"
	"github.com/GriffinCanCode/soundwatch/internal/resilience"
	"github.com/GriffinCanCode/soundwatch/internal/store"
)

const rate = 16000

func sweep(f0, f1, seconds float64) []float32 {
	n := int(seconds * rate)
	out := make([]float32, n)
	phase := 0.0
	for i := range out {
		f := f0 + (f1-f0)*float64(i)/float64(n)
		phase += 2 * math.Pi * f / rate
		out[i] = float32(0.4 * math.Sin(phase))
	}
	return out
}

func writeWAV(t *testing.T, path string, samples []float32) {
	t.Helper()
	if err := os.WriteFile(path, audio.WAVBytes(samples, rate), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAnalyzeCommand(t *testing.T) {
	dir := t.TempDir()
	patternDir := filepath.Join(dir, "patterns")
	if err := os.Mkdir(patternDir, 0o755); err != nil {
		t.Fatal(err)
	}
	clip := sweep(500, 2000, 1)
	writeWAV(t, filepath.Join(dir, "sample.wav"), clip)
	writeWAV(t, filepath.Join(patternDir, "chirp.wav"), clip)
	writeWAV(t, filepath.Join(patternDir, "hum.wav"), sweep(100, 100, 1))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"analyze", filepath.Join(dir, "sample.wav"), "--patterns", patternDir, "--json"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var report analyzeReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("report %q: %v", out.String(), err)
	}
	if report.SampleRate != rate || report.DurationSeconds != 1 {
		t.Errorf("clip = %d Hz %.2fs", report.SampleRate, report.DurationSeconds)
	}
	if len(report.Scores) != 2 {
		t.Fatalf("scores = %d, want 2", len(report.Scores))
	}
	if report.Detected != "chirp" || report.Scores[0].Name != "chirp" {
		t.Errorf("detected = %q, best = %q; want chirp", report.Detected, report.Scores[0].Name)
	}
	if report.Scores[0].Confidence <= report.Scores[1].Confidence {
		t.Error("scores not sorted by confidence")
	}
}

func TestAnalyzeRejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.wav")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"analyze", path})
	if err := cmd.Execute(); err == nil {
		t.Error("analyze of garbage succeeded")
	}
}

func TestDetectionSinkArchivesAndRecords(t *testing.T) {
	st, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	clipDir := t.TempDir()
	local, err := clips.NewLocal(clipDir)
	if err != nil {
		t.Fatal(err)
	}

	var broadcast []string
	sink := newDetectionSink(st, clips.NewArchiver(local), func(_ context.Context, ev orchestrator.DetectionEvent) {
		broadcast = append(broadcast, ev.ID)
	})
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	sink.Handle(context.Background(), orchestrator.DetectionEvent{
		ID: "ev1", PatternName: "chirp", Confidence: 0.9, Timestamp: at,
		AudioWindow: sweep(500, 2000, 0.1), SampleRate: rate,
	})
	sink.Wait()

	if len(broadcast) != 1 {
		t.Errorf("broadcasts = %v", broadcast)
	}
	recs, err := st.RecentDetections(0)
	if err != nil || len(recs) != 1 {
		t.Fatalf("history = %+v, %v", recs, err)
	}
	want := clips.ClipPath("ev1", "chirp", at)
	if recs[0].ClipPath != want || recs[0].Samples != 1600 {
		t.Errorf("record = %+v, want clip %s", recs[0], want)
	}
	if _, err := os.Stat(filepath.Join(clipDir, filepath.FromSlash(want))); err != nil {
		t.Errorf("clip not written: %v", err)
	}
}

// flakyClips fails the first failures uploads with err.
type flakyClips struct {
	mu       sync.Mutex
	err      error
	failures int
	puts     int
}

func (f *flakyClips) Put(context.Context, string, []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.puts <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyClips) Get(context.Context, string) ([]byte, error) { return nil, nil }

func (f *flakyClips) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func newMemoryStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestDetectionSinkRetriesTransientArchiveErrors(t *testing.T) {
	st := newMemoryStore(t)
	backend := &flakyClips{err: apperrors.New(apperrors.CodeUnavailable, "slow down"), failures: 2}
	sink := newDetectionSink(st, clips.NewArchiver(backend), nil)
	sink.retry.BaseDelay = time.Millisecond

	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	sink.Handle(context.Background(), orchestrator.DetectionEvent{
		ID: "ev1", PatternName: "chirp", Timestamp: at, AudioWindow: sweep(500, 2000, 0.1), SampleRate: rate,
	})
	sink.Wait()

	if got := backend.attempts(); got != 3 {
		t.Errorf("upload attempts = %d, want 3", got)
	}
	recs, err := st.RecentDetections(0)
	if err != nil || len(recs) != 1 || recs[0].ClipPath != clips.ClipPath("ev1", "chirp", at) {
		t.Errorf("history = %+v, %v", recs, err)
	}
}

func TestDetectionSinkStopsArchivingWhenBackendFails(t *testing.T) {
	st := newMemoryStore(t)
	backend := &flakyClips{err: apperrors.New(apperrors.CodeArchiveFailed, "access denied"), failures: 1 << 30}
	sink := newDetectionSink(st, clips.NewArchiver(backend), nil)

	events := resilience.DefaultThreshold + 2
	for i := range events {
		sink.Handle(context.Background(), orchestrator.DetectionEvent{
			ID: fmt.Sprintf("ev%d", i), PatternName: "chirp", Timestamp: time.Unix(int64(i), 0),
			AudioWindow: sweep(500, 2000, 0.05), SampleRate: rate,
		})
		sink.Wait()
	}

	if got := backend.attempts(); got != resilience.DefaultThreshold {
		t.Errorf("upload attempts = %d, want %d before the breaker opens", got, resilience.DefaultThreshold)
	}
	recs, err := st.RecentDetections(0)
	if err != nil || len(recs) != events {
		t.Fatalf("history = %d records, %v; want every detection recorded", len(recs), err)
	}
	for _, r := range recs {
		if r.ClipPath != "" {
			t.Errorf("record %s has clip %q", r.ID, r.ClipPath)
		}
	}
}

func TestRestorePatternsResamples(t *testing.T) {
	st, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.SavePattern(store.PatternRecord{Name: "low", SampleRate: 8000, Samples: sweep(300, 600, 0.5)[:4000], Active: false}); err != nil {
		t.Fatal(err)
	}
	if err := st.SavePattern(store.PatternRecord{Name: "empty", SampleRate: rate}); err != nil {
		t.Fatal(err)
	}

	det := orchestrator.New(nil, orchestrator.Config{SampleRate: rate})
	if err := restorePatterns(context.Background(), st, det); err != nil {
		t.Fatal(err)
	}
	p, ok := det.Patterns().Get("low")
	if !ok || p.Active {
		t.Fatalf("low = %+v, %v; want inactive", p.Name, ok)
	}
	if p.Profile.Samples <= 4000 {
		t.Errorf("samples = %d, want upsampled from 4000", p.Profile.Samples)
	}
	if _, ok := det.Patterns().Get("empty"); ok {
		t.Error("empty stored pattern should be skipped")
	}
}

type runningFlag bool

func (r runningFlag) IsRunning() bool { return bool(r) }

func TestHealthCommand(t *testing.T) {
	tests := []struct {
		name    string
		running bool
		wantErr apperrors.Code
		wantOut string
	}{
		{"serving", true, apperrors.CodeUnspecified, "SERVING"},
		{"stopped", false, apperrors.CodeUnavailable, "NOT_SERVING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lis, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				t.Fatal(err)
			}
			srv := grpcserver.New(runningFlag(tt.running))
			srv.Sync()
			go func() { _ = srv.Serve(lis) }()
			t.Cleanup(srv.Stop)

			var out bytes.Buffer
			cmd := newRootCmd()
			cmd.SetOut(&out)
			cmd.SetArgs([]string{"health", "--addr", lis.Addr().String()})
			err = cmd.Execute()

			if tt.wantErr == apperrors.CodeUnspecified && err != nil {
				t.Fatalf("health: %v", err)
			}
			if tt.wantErr != apperrors.CodeUnspecified && !apperrors.IsCode(err, tt.wantErr) {
				t.Fatalf("health error = %v, want %s", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), grpcserver.ServiceName+" "+tt.wantOut) {
				t.Errorf("output = %q", out.String())
			}
		})
	}
}

func TestHealthCommandUnreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"health", "--addr", addr, "--timeout", "500ms"})
	if err := cmd.Execute(); !apperrors.IsCode(err, apperrors.CodeUnavailable) && !apperrors.IsCode(err, apperrors.CodeTimeout) {
		t.Errorf("health against closed port = %v, want UNAVAILABLE or TIMEOUT", err)
	}
}
