// Package clips archives the audio window behind each detection.
package clips

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/GriffinCanCode/soundwatch/internal/audio"
	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
)

// Store writes and reads clip files. Paths are forward-slash separated and
// relative to the store root.
type Store interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
}

// Local stores clips under a directory.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeArchiveFailed, "create clip directory").WithMetadata("dir", abs)
	}
	return &Local{root: abs}, nil
}

func (l *Local) resolve(p string) (string, error) {
	clean := path.Clean("/" + p)[1:]
	if clean == "" {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "empty clip path")
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// Put writes data, creating parent directories.
func (l *Local) Put(_ context.Context, p string, data []byte) error {
	full, err := l.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.CodeArchiveFailed, "create clip directory")
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return apperrors.Wrap(err, apperrors.CodeArchiveFailed, "write clip").WithMetadata("path", p)
	}
	return nil
}

// Get reads a clip.
func (l *Local) Get(_ context.Context, p string) ([]byte, error) {
	full, err := l.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "clip %s not found", p)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeArchiveFailed, "read clip").WithMetadata("path", p)
	}
	return data, nil
}

// Archiver encodes detection windows as WAV and stores them.
type Archiver struct {
	store Store
}

// NewArchiver wraps store.
func NewArchiver(store Store) *Archiver {
	return &Archiver{store: store}
}

// ClipPath returns detections/YYYY-MM-DD/<pattern>-<id>.wav.
func ClipPath(id, pattern string, at time.Time) string {
	return fmt.Sprintf("detections/%s/%s-%s.wav", at.UTC().Format(time.DateOnly), sanitize(pattern), id)
}

// Save writes samples as a mono 16-bit WAV and returns its path.
func (a *Archiver) Save(ctx context.Context, id, pattern string, at time.Time, samples []float32, sampleRate int) (string, error) {
	p := ClipPath(id, pattern, at)
	if err := a.store.Put(ctx, p, audio.WAVBytes(samples, sampleRate)); err != nil {
		return "", err
	}
	return p, nil
}

// Load returns the WAV bytes of a stored clip.
func (a *Archiver) Load(ctx context.Context, p string) ([]byte, error) {
	return a.store.Get(ctx, p)
}

// sanitize keeps pattern names safe as a single path segment.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "pattern"
	}
	return b.String()
}
