// Package store persists reference patterns and detection history in BadgerDB.
// Values are msgpack-encoded records.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
)

const (
	patternPrefix   = "pattern:"
	detectionPrefix = "detection:"
)

// PatternRecord is the raw clip behind a reference pattern. Profiles are
// recomputed on load so extractor changes never leave stale fingerprints.
type PatternRecord struct {
	Name       string    `msgpack:"name"`
	SampleRate int       `msgpack:"sample_rate"`
	Samples    []float32 `msgpack:"samples"`
	Active     bool      `msgpack:"active"`
	CreatedAt  time.Time `msgpack:"created_at"`
}

// DetectionRecord is one entry of detection history.
type DetectionRecord struct {
	ID          string    `msgpack:"id" json:"id"`
	PatternName string    `msgpack:"pattern" json:"patternName"`
	Confidence  float64   `msgpack:"confidence" json:"confidence"`
	Timestamp   time.Time `msgpack:"timestamp" json:"timestamp"`
	Samples     int       `msgpack:"samples" json:"samples"`
	ClipPath    string    `msgpack:"clip_path,omitempty" json:"clipPath,omitempty"`
	Feedback    *bool     `msgpack:"feedback,omitempty" json:"feedback,omitempty"`
}

// Options configures Open.
type Options struct {
	Dir      string // required unless InMemory
	InMemory bool
}

// Store is a Badger-backed record store.
type Store struct {
	db *badger.DB
}

// Open opens or creates the store.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, apperrors.New(apperrors.CodeConfigMissing, "store directory is required")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(slogLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreFailed, "open badger").WithMetadata("dir", opts.Dir)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SavePattern stores rec under its name, replacing any previous record.
func (s *Store) SavePattern(rec PatternRecord) error {
	return s.put(patternPrefix+rec.Name, rec)
}

// DeletePattern removes a pattern record. Missing records are not an error.
func (s *Store) DeletePattern(name string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(patternPrefix + name))
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStoreFailed, "delete pattern").WithMetadata("pattern", name)
	}
	return nil
}

// SetPatternActive updates the active flag of a stored pattern.
func (s *Store) SetPatternActive(name string, active bool) error {
	key := []byte(patternPrefix + name)
	err := s.db.Update(func(txn *badger.Txn) error {
		var rec PatternRecord
		if err := get(txn, key, &rec); err != nil {
			return err
		}
		rec.Active = active
		return set(txn, key, rec)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return apperrors.Newf(apperrors.CodeNotFound, "pattern %q not stored", name)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStoreFailed, "update pattern").WithMetadata("pattern", name)
	}
	return nil
}

// LoadPatterns returns every stored pattern ordered by name.
func (s *Store) LoadPatterns() ([]PatternRecord, error) {
	var out []PatternRecord
	err := s.scan(patternPrefix, false, func(val []byte) bool {
		var rec PatternRecord
		if err := msgpack.Unmarshal(val, &rec); err != nil {
			slog.Warn("skipping unreadable pattern record", "error", err)
			return true
		}
		out = append(out, rec)
		return true
	})
	return out, err
}

// AppendDetection records a detection.
func (s *Store) AppendDetection(rec DetectionRecord) error {
	return s.put(detectionKey(rec.Timestamp, rec.ID), rec)
}

// SetDetectionFeedback stores the user's verdict on a detection.
func (s *Store) SetDetectionFeedback(id string, at time.Time, accepted bool) error {
	key := []byte(detectionKey(at, id))
	err := s.db.Update(func(txn *badger.Txn) error {
		var rec DetectionRecord
		if err := get(txn, key, &rec); err != nil {
			return err
		}
		rec.Feedback = &accepted
		return set(txn, key, rec)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return apperrors.Newf(apperrors.CodeNotFound, "detection %q not stored", id)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStoreFailed, "update detection").WithMetadata("id", id)
	}
	return nil
}

// RecentDetections returns up to limit detections, newest first. A limit of
// zero or less returns all of them.
func (s *Store) RecentDetections(limit int) ([]DetectionRecord, error) {
	var out []DetectionRecord
	err := s.scan(detectionPrefix, true, func(val []byte) bool {
		var rec DetectionRecord
		if err := msgpack.Unmarshal(val, &rec); err != nil {
			slog.Warn("skipping unreadable detection record", "error", err)
			return true
		}
		out = append(out, rec)
		return limit <= 0 || len(out) < limit
	})
	return out, err
}

// detectionKey sorts chronologically: zero-padded nanoseconds then the ID.
func detectionKey(at time.Time, id string) string {
	return fmt.Sprintf("%s%020d:%s", detectionPrefix, at.UnixNano(), id)
}

func (s *Store) put(key string, v any) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return set(txn, []byte(key), v)
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStoreFailed, "write record").WithMetadata("key", key)
	}
	return nil
}

// scan visits values under prefix until fn returns false.
func (s *Store) scan(prefix string, reverse bool, fn func(val []byte) bool) error {
	p := []byte(prefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := p
		if reverse {
			seek = append(append([]byte(nil), p...), 0xFF)
		}
		for it.Seek(seek); it.ValidForPrefix(p); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(val) {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStoreFailed, "scan records").WithMetadata("prefix", prefix)
	}
	return nil
}

func get(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, v)
	})
}

func set(txn *badger.Txn, key []byte, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// slogLogger routes badger's warnings and errors through slog.
type slogLogger struct{}

func (slogLogger) Errorf(f string, v ...any)   { slog.Error(fmt.Sprintf("badger: "+f, v...)) }
func (slogLogger) Warningf(f string, v ...any) { slog.Warn(fmt.Sprintf("badger: "+f, v...)) }
func (slogLogger) Infof(string, ...any)        {}
func (slogLogger) Debugf(string, ...any)       {}
