// Package patternwatch keeps the pattern registry in sync with a folder of
// WAV clips.
package patternwatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/GriffinCanCode/soundwatch/internal/audio"
	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
	"github.com/GriffinCanCode/soundwatch/internal/patterns"
	"github.com/GriffinCanCode/soundwatch/internal/trace"
)

// DefaultSettle is how long a file must stay quiet before it is loaded.
// Editors and copies emit several writes per file.
const DefaultSettle = 250 * time.Millisecond

// Registrar receives patterns found in the folder.
type Registrar interface {
	AddReferencePattern(ctx context.Context, name string, samples []float32, active bool) (patterns.Pattern, []string, error)
	RemoveReferencePattern(name string) error
}

// Watcher mirrors *.wav files in a directory into a Registrar.
type Watcher struct {
	dir        string
	sampleRate int
	reg        Registrar
	settle     time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher that resamples clips to sampleRate.
func New(dir string, sampleRate int, reg Registrar) *Watcher {
	return &Watcher{
		dir:        dir,
		sampleRate: sampleRate,
		reg:        reg,
		settle:     DefaultSettle,
		pending:    make(map[string]*time.Timer),
	}
}

// PatternName maps a clip path to its pattern name.
func PatternName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func isClip(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}

// LoadClip decodes a WAV file and converts it to sampleRate.
func LoadClip(path string, sampleRate int) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAudioInvalidFormat, "read clip").WithMetadata("path", path)
	}
	clip, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	return audio.Resample(clip.Samples, clip.SampleRate, sampleRate)
}

// Scan registers every clip currently in the folder and returns how many
// loaded. Unreadable clips are logged and skipped.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "read pattern directory").WithMetadata("dir", w.dir)
	}
	loaded := 0
	for _, e := range entries {
		if e.IsDir() || !isClip(e.Name()) {
			continue
		}
		if w.load(ctx, filepath.Join(w.dir, e.Name())) {
			loaded++
		}
	}
	return loaded, nil
}

func (w *Watcher) load(ctx context.Context, path string) bool {
	log := trace.Logger(ctx)
	samples, err := LoadClip(path, w.sampleRate)
	if err != nil {
		log.Warn("skipping pattern clip", "path", path, "error", err)
		return false
	}
	if _, _, err := w.reg.AddReferencePattern(ctx, PatternName(path), samples, true); err != nil {
		log.Warn("pattern clip rejected", "path", path, "error", err)
		return false
	}
	return true
}

func (w *Watcher) unload(ctx context.Context, path string) {
	err := w.reg.RemoveReferencePattern(PatternName(path))
	if err != nil && !apperrors.IsCode(err, apperrors.CodeNotFound) {
		trace.Logger(ctx).Warn("pattern removal failed", "path", path, "error", err)
	}
}

// Run scans the folder and then follows changes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "create file watcher")
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return apperrors.Wrap(err, apperrors.CodeConfigInvalid, "watch pattern directory").WithMetadata("dir", w.dir)
	}

	ctx, _ = trace.EnsureContext(ctx)
	log := trace.Logger(ctx)
	n, err := w.Scan(ctx)
	if err != nil {
		return err
	}
	log.Info("watching pattern directory", "dir", w.dir, "loaded", n)
	defer w.cancelPending()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if isClip(ev.Name) {
				w.handle(ctx, ev)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("pattern watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(ev.Name)
		w.unload(ctx, ev.Name)
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.schedule(ctx, ev.Name)
	}
}

// schedule loads path once it has been quiet for the settle period.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if ctx.Err() == nil {
			w.load(ctx, path)
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
