package countrykey

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Storage keys of the persisted mapping. The version 1 key is read once,
// migrated and removed.
const (
	MappingKey       = "countryMapping_v2"
	LegacyMappingKey = "countryMapping_v1"
)

// ErrNotFound is returned by a Store when no blob exists for a key.
var ErrNotFound = errors.New("countrykey: blob not found")

// Store reads and writes whole blobs. Implementations never expose partial
// writes: a Put either replaces the blob completely or fails.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
	Delete(key string) error
}

// FileStore keeps one JSON file per key in a directory.
type FileStore struct {
	dir string
}

// NewFileStore returns a FileStore rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// Get returns the blob stored under key, or ErrNotFound.
func (s *FileStore) Get(key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// Put atomically replaces the blob under key: data goes to a temporary file
// in the same directory which is then renamed over the target.
func (s *FileStore) Put(key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", key, err)
	}
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return fmt.Errorf("setting mode of %s: %w", tmp.Name(), err)
	}
	// Close explicitly to catch flush errors before the rename.
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp.Name(), err)
	}
	success = true
	return nil
}

// Delete removes the blob under key. Deleting a missing key is not an error.
func (s *FileStore) Delete(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// MemoryStore is an in-process Store. It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Get returns a copy of the blob under key, or ErrNotFound.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Put stores a copy of data under key.
func (s *MemoryStore) Put(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), data...)
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// LoadMapping builds the working model from storage:
//
//  1. start empty and migrate the seed mapping;
//  2. if a version 2 blob exists and decodes, it replaces the model (normalized);
//  3. if a version 1 blob exists and decodes, it is migrated on top;
//  4. the result is saved, and only then is the version 1 blob removed.
//
// Undecodable blobs are logged and skipped. Only storage failures are errors.
func LoadMapping(store Store, r CountryResolver, seed map[string]string) (*MappingModel, error) {
	model := NewMappingModel().ApplyLegacyMigration(seed, r)

	data, err := store.Get(MappingKey)
	switch {
	case err == nil:
		parsed, perr := ParseMappingModel(data)
		if perr != nil {
			log.Printf("warning: ignoring unreadable %s: %v", MappingKey, perr)
			break
		}
		model = parsed.Normalize(r)
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("loading %s: %w", MappingKey, err)
	}

	migrated := false
	data, err = store.Get(LegacyMappingKey)
	switch {
	case err == nil:
		legacy, perr := ParseLegacyMapping(data)
		if perr != nil {
			log.Printf("warning: ignoring unreadable %s: %v", LegacyMappingKey, perr)
			break
		}
		model = model.ApplyLegacyMigration(legacy, r)
		migrated = true
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("loading %s: %w", LegacyMappingKey, err)
	}

	saved, err := SaveMapping(store, model, r)
	if err != nil {
		return nil, err
	}
	if migrated {
		if err := store.Delete(LegacyMappingKey); err != nil {
			log.Printf("warning: failed to retire %s: %v", LegacyMappingKey, err)
		} else {
			log.Printf("info: migrated %s into %s", LegacyMappingKey, MappingKey)
		}
	}
	return saved, nil
}

// SaveMapping normalizes model, stamps it and writes it whole. It returns the
// model exactly as written.
func SaveMapping(store Store, model *MappingModel, r CountryResolver) (*MappingModel, error) {
	normalized := model.Normalize(r)
	normalized.UpdatedAt = timestamp()
	data, err := normalized.Encode()
	if err != nil {
		return nil, err
	}
	if err := store.Put(MappingKey, data); err != nil {
		return nil, fmt.Errorf("saving %s: %w", MappingKey, err)
	}
	return normalized, nil
}

// ResetFailure records a key that could not be removed during ResetMapping.
type ResetFailure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// ResetReport lists what ResetMapping removed.
type ResetReport struct {
	Removed []string       `json:"removed"`
	Failed  []ResetFailure `json:"failed,omitempty"`
}

// ResetMapping deletes both persisted mappings and reloads from the seed.
func ResetMapping(store Store, r CountryResolver, seed map[string]string) (ResetReport, *MappingModel, error) {
	var report ResetReport
	for _, key := range []string{MappingKey, LegacyMappingKey} {
		if err := store.Delete(key); err != nil {
			report.Failed = append(report.Failed, ResetFailure{Key: key, Error: err.Error()})
			continue
		}
		report.Removed = append(report.Removed, key)
	}
	model, err := LoadMapping(store, r, seed)
	return report, model, err
}
