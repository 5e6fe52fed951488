package convlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store persists a patient's entries. Both calls are synchronous.
type Store interface {
	// Load returns the entries for patient, newest first. A patient with
	// no history yields an empty slice and no error.
	Load(patient string) ([]Entry, error)

	// Save replaces the stored entries for patient.
	Save(patient string, entries []Entry) error
}

// JSONStore keeps one JSON file per patient in a directory.
type JSONStore struct {
	dir string
	mu  sync.Mutex
}

// storeData is the on-disk file format.
type storeData struct {
	Version   int     `json:"version"`
	UpdatedAt string  `json:"updated_at"`
	Patient   string  `json:"patient"`
	Entries   []Entry `json:"entries"`
}

const currentVersion = 1

// NewJSONStore creates a store rooted at dir, creating it if needed.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	return &JSONStore{dir: dir}, nil
}

// Path returns the file used for patient.
func (s *JSONStore) Path(patient string) string {
	return filepath.Join(s.dir, safeName(patient)+".json")
}

// Load implements Store.
func (s *JSONStore) Load(patient string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path(patient))
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var stored storeData
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	if stored.Entries == nil {
		stored.Entries = []Entry{}
	}
	return stored.Entries, nil
}

// Save implements Store with an atomic temp-file rename.
func (s *JSONStore) Save(patient string, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entries == nil {
		entries = []Entry{}
	}
	stored := storeData{
		Version:   currentVersion,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Patient:   patient,
		Entries:   entries,
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	return writeAtomic(s.Path(patient), data, 0644)
}

// MemoryStore is a Store backed by a map. Useful for tests and replay.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]Entry

	// SaveErr, when set, is returned by every Save.
	SaveErr error
	// LoadErr, when set, is returned by every Load.
	LoadErr error
	// Saves counts Save calls.
	Saves int
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]Entry)}
}

// Load implements Store.
func (m *MemoryStore) Load(patient string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	src := m.data[patient]
	out := make([]Entry, len(src))
	copy(out, src)
	return out, nil
}

// Save implements Store.
func (m *MemoryStore) Save(patient string, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	m.data[patient] = cp
	return nil
}
