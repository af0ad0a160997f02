// Package cache stores raw ticket batches as JSON files addressed by query
// fingerprint, so repeated runs over the same query skip the helpdesk fetch.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"insightbot/internal/domain"
)

const fileExtension = ".json"

// ErrCorrupt marks a cache file that exists but does not parse as a batch.
// Callers treat it like a miss; the file is left in place for inspection.
var ErrCorrupt = errors.New("corrupt cache file")

// Events lets callers observe hits and misses without the store branching on
// them. Either callback may be nil.
type Events struct {
	Hit  func(fingerprint string)
	Miss func(fingerprint string)
}

type Store struct {
	dir    string
	events Events
	logger *log.Logger
}

func NewStore(dir string, events Events, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{dir: dir, events: events, logger: logger}
}

func (s *Store) path(fingerprint string) string {
	return filepath.Join(s.dir, fingerprint+fileExtension)
}

// Lookup loads the batch stored for fingerprint. The bool reports whether an
// entry existed; a file that exists but cannot be parsed returns ErrCorrupt.
func (s *Store) Lookup(fingerprint string) (*domain.RawTicketBatch, bool, error) {
	data, err := os.ReadFile(s.path(fingerprint))
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Printf("cache MISS fingerprint=%s", fingerprint)
		if s.events.Miss != nil {
			s.events.Miss(fingerprint)
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache file: %w", err)
	}

	var batch domain.RawTicketBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		s.logger.Printf("cache corrupt fingerprint=%s err=%v", fingerprint, err)
		return nil, true, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	s.logger.Printf("cache HIT fingerprint=%s records=%d", fingerprint, len(batch.Tickets))
	if s.events.Hit != nil {
		s.events.Hit(fingerprint)
	}
	return &batch, true, nil
}

// Store writes the batch for fingerprint, replacing any prior entry. The
// write goes to a temp file first and is renamed into place so a concurrent
// reader never sees a partial file.
func (s *Store) Store(fingerprint string, batch *domain.RawTicketBatch) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding batch: %w", err)
	}

	final := s.path(fingerprint)
	tmp, err := os.CreateTemp(s.dir, fingerprint+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("placing cache file: %w", err)
	}

	s.logger.Printf("cache stored fingerprint=%s records=%d bytes=%d", fingerprint, len(batch.Tickets), len(data))
	return final, nil
}

// Delete removes the entry for fingerprint and reports whether one existed.
func (s *Store) Delete(fingerprint string) (bool, error) {
	err := os.Remove(s.path(fingerprint))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting cache file: %w", err)
	}
	s.logger.Printf("cache deleted fingerprint=%s", fingerprint)
	return true, nil
}

// Info describes a cache entry without loading it.
type Info struct {
	Filename     string
	Path         string
	SizeBytes    int64
	ModifiedTime time.Time
}

// Info returns metadata for the entry, or nil if no entry exists.
func (s *Store) Info(fingerprint string) (*Info, error) {
	path := s.path(fingerprint)
	stat, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stating cache file: %w", err)
	}
	return &Info{
		Filename:     filepath.Base(path),
		Path:         path,
		SizeBytes:    stat.Size(),
		ModifiedTime: stat.ModTime(),
	}, nil
}
