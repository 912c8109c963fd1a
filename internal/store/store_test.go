package store_test

import (
	"fmt"
	"testing"
	"time"

	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
	"github.com/GriffinCanCode/soundwatch/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRequiresDir(t *testing.T) {
	if _, err := store.Open(store.Options{}); !apperrors.IsCode(err, apperrors.CodeConfigMissing) {
		t.Errorf("Open without dir = %v, want CONFIG_MISSING", err)
	}
}

func TestPatternLifecycle(t *testing.T) {
	s := newStore(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, name := range []string{"siren", "alarm"} {
		rec := store.PatternRecord{Name: name, SampleRate: 16000, Samples: []float32{0.1, -0.2, 0.3}, Active: true, CreatedAt: created}
		if err := s.SavePattern(rec); err != nil {
			t.Fatalf("SavePattern(%s): %v", name, err)
		}
	}
	if err := s.SetPatternActive("siren", false); err != nil {
		t.Fatalf("SetPatternActive: %v", err)
	}

	got, err := s.LoadPatterns()
	if err != nil {
		t.Fatalf("LoadPatterns: %v", err)
	}
	if len(got) != 2 || got[0].Name != "alarm" || got[1].Name != "siren" {
		t.Fatalf("patterns = %+v, want alarm then siren", got)
	}
	if got[1].Active || !got[0].Active {
		t.Errorf("active flags = %v/%v, want alarm on siren off", got[0].Active, got[1].Active)
	}
	if len(got[0].Samples) != 3 || got[0].Samples[1] != -0.2 || got[0].SampleRate != 16000 {
		t.Errorf("record = %+v", got[0])
	}
	if !got[0].CreatedAt.Equal(created) {
		t.Errorf("created = %v, want %v", got[0].CreatedAt, created)
	}

	if err := s.DeletePattern("siren"); err != nil {
		t.Fatalf("DeletePattern: %v", err)
	}
	if err := s.DeletePattern("siren"); err != nil {
		t.Errorf("second DeletePattern: %v", err)
	}
	if got, _ := s.LoadPatterns(); len(got) != 1 {
		t.Errorf("patterns after delete = %d, want 1", len(got))
	}
	if err := s.SetPatternActive("siren", true); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Errorf("SetPatternActive(missing) = %v, want NOT_FOUND", err)
	}
}

func TestRecentDetections(t *testing.T) {
	s := newStore(t)
	base := time.Unix(1_700_000_000, 0)
	for i := range 5 {
		rec := store.DetectionRecord{
			ID:          fmt.Sprintf("id-%d", i),
			PatternName: "siren",
			Confidence:  0.7,
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			Samples:     100,
		}
		if err := s.AppendDetection(rec); err != nil {
			t.Fatalf("AppendDetection: %v", err)
		}
	}
	// A pattern record must not leak into detection scans.
	if err := s.SavePattern(store.PatternRecord{Name: "zzz"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.RecentDetections(3)
	if err != nil {
		t.Fatalf("RecentDetections: %v", err)
	}
	if len(got) != 3 || got[0].ID != "id-4" || got[2].ID != "id-2" {
		t.Errorf("recent = %+v, want id-4..id-2", got)
	}

	all, err := s.RecentDetections(0)
	if err != nil || len(all) != 5 {
		t.Errorf("all = %d, %v; want 5", len(all), err)
	}
}

func TestDetectionFeedback(t *testing.T) {
	s := newStore(t)
	at := time.Unix(1_700_000_000, 0)
	if err := s.AppendDetection(store.DetectionRecord{ID: "a", PatternName: "siren", Timestamp: at}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetDetectionFeedback("a", at, false); err != nil {
		t.Fatalf("SetDetectionFeedback: %v", err)
	}
	got, _ := s.RecentDetections(1)
	if len(got) != 1 || got[0].Feedback == nil || *got[0].Feedback {
		t.Errorf("feedback = %+v, want false", got)
	}
	if err := s.SetDetectionFeedback("b", at, true); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Errorf("feedback on missing = %v, want NOT_FOUND", err)
	}
}
