// Package cas implements the layer cache: stage keys mapped to committed images.
package cas

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/moby/sys/atomicwriter"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	lockTimeout = 10 * time.Second
	lockRetry   = 100 * time.Millisecond
)

var _ ports.LayerStore = (*Store)(nil)

// Store implements ports.LayerStore using a flat JSON file. Writes hold an
// advisory lock on a sibling ".lock" file so concurrent builds sharing the
// cache merge their records instead of overwriting each other.
type Store struct {
	path  string
	mu    sync.RWMutex
	cache map[string]domain.LayerRecord
}

// NewStore creates a new LayerStore backed by the file at the given path.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:  filepath.Clean(path),
		cache: make(map[string]domain.LayerRecord),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// load merges the records on disk into the in-memory cache. Records on disk
// win, so a layer rebuilt by another process is not reverted. Caller holds mu.
func (s *Store) load() error {
	//nolint:gosec // Path is cleaned and provided by trusted caller
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return zerr.With(zerr.Wrap(domain.ErrStoreReadFailed, err.Error()), "path", s.path)
	}

	if len(data) == 0 {
		return nil
	}

	var onDisk map[string]domain.LayerRecord
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return zerr.With(zerr.Wrap(domain.ErrStoreReadFailed, "failed to unmarshal layer cache"), "path", s.path)
	}
	for key, record := range onDisk {
		s.cache[key] = record
	}
	return nil
}

// save writes the cache atomically. Caller holds mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		return zerr.Wrap(domain.ErrStoreWriteFailed, "failed to marshal layer cache")
	}

	if err := atomicwriter.WriteFile(s.path, data, 0o644); err != nil {
		return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "path", s.path)
	}
	return nil
}

func (s *Store) withFileLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, "failed to create directory for layer cache"), "path", s.path)
	}

	fl := flock.New(s.path + ".lock")

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, lockRetry)
	if err != nil || !locked {
		return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, "failed to acquire layer cache lock"), "path", s.path)
	}
	defer func() { _ = fl.Unlock() }()

	return fn()
}

// Get retrieves the record for a stage key.
func (s *Store) Get(key string) (*domain.LayerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.cache[key]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// Put stores the record. A record for the same key and image is kept as is;
// one pointing at a different image, such as a layer rebuilt after its image
// was pruned, is replaced.
func (s *Store) Put(record domain.LayerRecord) error {
	if record.Key == "" {
		return zerr.Wrap(domain.ErrStoreWriteFailed, "layer record has no key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.cache[record.Key]; ok && existing.ImageID == record.ImageID {
		return nil
	}

	return s.withFileLock(func() error {
		if err := s.load(); err != nil {
			return err
		}
		if existing, ok := s.cache[record.Key]; ok && existing.ImageID == record.ImageID {
			return nil
		}
		s.cache[record.Key] = record
		return s.save()
	})
}

// Clear drops every record, both in memory and on disk.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withFileLock(func() error {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "path", s.path)
		}
		clear(s.cache)
		return nil
	})
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}
