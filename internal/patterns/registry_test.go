package patterns

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/soundwatch/internal/classifier"
	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
)

const rate = 16000

func tone(freq, seconds float64) []float32 {
	out := make([]float32, int(seconds*rate))
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return out
}

func sweep(f0, f1, seconds float64) []float32 {
	out := make([]float32, int(seconds*rate))
	for i := range out {
		t := float64(i) / rate
		out[i] = float32(0.5 * math.Sin(2*math.Pi*(f0*t+(f1-f0)*t*t/(2*seconds))))
	}
	return out
}

func mustBuild(t *testing.T, c *classifier.Classifier, name string, samples []float32) Pattern {
	t.Helper()
	p, err := Build(c, name, samples, true, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("Build(%q) error = %v", name, err)
	}
	return p
}

func TestBuildValidation(t *testing.T) {
	c := classifier.New(classifier.Config{SampleRate: rate})
	tests := []struct {
		name    string
		pattern string
		samples []float32
		code    apperrors.Code
	}{
		{"blank name", "  ", tone(1000, 0.2), apperrors.CodePatternInvalid},
		{"no audio", "beep", nil, apperrors.CodeAudioEmptyInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(c, tt.pattern, tt.samples, true, time.Now())
			if !apperrors.IsCode(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestBuildProfilesClip(t *testing.T) {
	c := classifier.New(classifier.Config{SampleRate: rate})
	p := mustBuild(t, c, " beep ", tone(1000, 0.5))

	if p.Name != "beep" {
		t.Errorf("name = %q, want trimmed", p.Name)
	}
	if p.Profile.Samples != rate/2 {
		t.Errorf("samples = %d, want %d", p.Profile.Samples, rate/2)
	}
	if p.Duration() != 500*time.Millisecond {
		t.Errorf("duration = %v, want 500ms", p.Duration())
	}
	if len(p.Profile.Fingerprint) == 0 {
		t.Error("empty fingerprint")
	}
}

func TestRegistryAddReplacesInPlace(t *testing.T) {
	c := classifier.New(classifier.Config{SampleRate: rate})
	r := NewRegistry()
	r.Add(mustBuild(t, c, "a", tone(500, 0.3)))
	r.Add(mustBuild(t, c, "b", tone(1500, 0.3)))
	r.Add(mustBuild(t, c, "c", tone(3000, 0.3)))

	replacement := mustBuild(t, c, "b", tone(2000, 0.6))
	r.Add(replacement)

	snap := r.Snapshot()
	var names []string
	for _, p := range snap {
		names = append(names, p.Name)
	}
	if len(names) != 3 || names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Fatalf("order = %v, want [a b c]", names)
	}
	if snap[1].Profile.Samples != replacement.Profile.Samples {
		t.Errorf("b samples = %d, want replaced %d", snap[1].Profile.Samples, replacement.Profile.Samples)
	}
}

func TestRegistryAddReportsSimilar(t *testing.T) {
	c := classifier.New(classifier.Config{SampleRate: rate})
	r := NewRegistry()
	if similar := r.Add(mustBuild(t, c, "siren", sweep(600, 1400, 1))); len(similar) != 0 {
		t.Errorf("first add similar = %v, want none", similar)
	}
	similar := r.Add(mustBuild(t, c, "siren-copy", sweep(600, 1400, 1)))
	if len(similar) != 1 || similar[0] != "siren" {
		t.Errorf("similar = %v, want [siren]", similar)
	}
}

func TestRegistrySetActiveAndCounts(t *testing.T) {
	c := classifier.New(classifier.Config{SampleRate: rate})
	r := NewRegistry()
	r.Add(mustBuild(t, c, "a", tone(500, 0.3)))
	r.Add(mustBuild(t, c, "b", tone(1500, 0.3)))

	if err := r.SetActive("a", false); err != nil {
		t.Fatalf("SetActive error = %v", err)
	}
	if got := r.Counts(); got != (Counts{Total: 2, Active: 1}) {
		t.Errorf("counts = %+v, want 2 total 1 active", got)
	}
	refs := r.ActiveReferences()
	if len(refs) != 1 || refs[0].Name != "b" {
		t.Errorf("active refs = %v, want [b]", refs)
	}
	if err := r.SetActive("missing", true); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Errorf("SetActive(missing) = %v, want NOT_FOUND", err)
	}
}

func TestRegistryRemove(t *testing.T) {
	c := classifier.New(classifier.Config{SampleRate: rate})
	r := NewRegistry()
	r.Add(mustBuild(t, c, "a", tone(500, 0.3)))
	r.Add(mustBuild(t, c, "b", tone(1500, 0.3)))

	if err := r.Remove("a"); err != nil {
		t.Fatalf("Remove error = %v", err)
	}
	if _, ok := r.Get("a"); ok {
		t.Error("a still present")
	}
	if snap := r.Snapshot(); len(snap) != 1 || snap[0].Name != "b" {
		t.Errorf("snapshot = %v, want [b]", snap)
	}
	if err := r.Remove("a"); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Errorf("second Remove = %v, want NOT_FOUND", err)
	}
	r.Clear()
	if r.Counts().Total != 0 {
		t.Error("Clear left patterns behind")
	}
}

func TestRegistrySnapshotIsolated(t *testing.T) {
	c := classifier.New(classifier.Config{SampleRate: rate})
	r := NewRegistry()
	r.Add(mustBuild(t, c, "a", tone(500, 0.3)))

	snap := r.Snapshot()
	if err := r.SetActive("a", false); err != nil {
		t.Fatal(err)
	}
	if !snap[0].Active {
		t.Error("snapshot changed after SetActive")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	c := classifier.New(classifier.Config{SampleRate: rate})
	p := mustBuild(t, c, "a", tone(500, 0.2))
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Add(p)
			_ = r.SetActive("a", i%2 == 0)
		}()
		go func() {
			defer wg.Done()
			_ = r.ActiveReferences()
			_ = r.Snapshot()
		}()
	}
	wg.Wait()
	if r.Counts().Total != 1 {
		t.Errorf("total = %d, want 1", r.Counts().Total)
	}
}

func TestHashDistance(t *testing.T) {
	a, err := SpectrogramHash(tone(1000, 0.5), rate)
	if err != nil {
		t.Fatal(err)
	}
	b, err := SpectrogramHash(tone(1000, 0.5), rate)
	if err != nil {
		t.Fatal(err)
	}
	if d := HashDistance(a, b); d != 0 {
		t.Errorf("identical clips distance = %d, want 0", d)
	}
}
