package convlog

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultMaxEntries bounds the log per patient.
const DefaultMaxEntries = 50

// Option configures a Log.
type Option func(*Log)

// WithMaxEntries overrides the capacity. Values below 1 are ignored.
func WithMaxEntries(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.max = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Log is the conversation log for the active patient. Entries are kept
// newest-first and trimmed to the capacity; every mutation is saved to the
// store before returning. A save failure is returned to the caller but the
// in-memory change stands. While the stored history could not be read, the
// store is never overwritten: each save first retries the load and merges.
// Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	store   Store
	max     int
	patient string
	entries []Entry
	lastID  int64
	loaded  bool
	logger  *slog.Logger
}

// New creates a log for patient and loads its history. When loading fails
// the log starts empty and the *PersistenceError is returned alongside it;
// later mutations stay in memory until the history can be read.
func New(store Store, patient string, opts ...Option) (*Log, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	l := &Log{
		store:  store,
		max:    DefaultMaxEntries,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "convlog")

	l.mu.Lock()
	defer l.mu.Unlock()
	return l, l.loadLocked(patient)
}

// Patient returns the active patient ID.
func (l *Log) Patient() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.patient
}

// Entries returns a copy of the entries, newest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Append records message at now, evicting the oldest entries beyond the
// capacity. IDs are millisecond timestamps forced to be strictly
// increasing.
func (l *Log) Append(message, category string, now time.Time) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := now.UnixMilli()
	if id <= l.lastID {
		id = l.lastID + 1
	}
	l.lastID = id

	e := Entry{
		ID:        id,
		Message:   message,
		Category:  category,
		Timestamp: now.UTC().Format(isoMillis),
		PatientID: l.patient,
	}

	entries := make([]Entry, 0, min(len(l.entries)+1, l.max))
	entries = append(entries, e)
	for _, old := range l.entries {
		if len(entries) == l.max {
			break
		}
		entries = append(entries, old)
	}
	l.entries = entries

	return e, l.saveLocked()
}

// Clear removes all entries for the active patient.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.loaded = true
	return l.saveLocked()
}

// SwitchPatient saves the current patient's log and loads patient's.
// A save failure does not prevent the switch.
func (l *Log) SwitchPatient(patient string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if patient == l.patient {
		return nil
	}
	saveErr := l.saveLocked()
	loadErr := l.loadLocked(patient)
	if loadErr != nil {
		return loadErr
	}
	return saveErr
}

// Export returns the export document for the active patient.
func (l *Log) Export(now time.Time) Export {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	return NewExport(l.patient, entries, now)
}

func (l *Log) loadLocked(patient string) error {
	l.patient = patient
	l.entries = nil
	l.loaded = false

	entries, err := l.store.Load(patient)
	if err != nil {
		l.logger.Warn("load failed, starting empty", "patient", patient, "error", err)
		return persistErr("load", patient, err)
	}
	l.merge(entries)
	l.loaded = true
	l.logger.Debug("loaded", "patient", patient, "entries", len(l.entries))
	return nil
}

// merge folds stored entries under the in-memory ones, newest first by ID,
// trimmed to the capacity.
func (l *Log) merge(stored []Entry) {
	all := make([]Entry, 0, len(l.entries)+len(stored))
	all = append(all, l.entries...)
	all = append(all, stored...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if len(all) > l.max {
		all = all[:l.max]
	}
	l.entries = all
	for _, e := range all {
		if e.ID > l.lastID {
			l.lastID = e.ID
		}
	}
}

func (l *Log) saveLocked() error {
	if !l.loaded {
		stored, err := l.store.Load(l.patient)
		if err != nil {
			l.logger.Warn("history still unreadable, not saving", "patient", l.patient, "error", err)
			return persistErr("save", l.patient, fmt.Errorf("stored history not loaded: %w", err))
		}
		l.merge(stored)
		l.loaded = true
		l.logger.Info("recovered history", "patient", l.patient, "entries", len(l.entries))
	}

	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	if err := l.store.Save(l.patient, entries); err != nil {
		l.logger.Warn("save failed", "patient", l.patient, "error", err)
		return persistErr("save", l.patient, err)
	}
	return nil
}
