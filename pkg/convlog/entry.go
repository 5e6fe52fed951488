// Package convlog keeps the per-patient conversation log: a bounded,
// newest-first list of committed messages that is persisted after every
// change and can be exported as a JSON document or a Google Doc.
package convlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// isoMillis matches the ISO-8601 form used in persisted entries.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Entry is one logged message. Entries are never modified after creation.
type Entry struct {
	ID        int64  `json:"id"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	PatientID string `json:"patientId"`
}

// Time parses Timestamp. A malformed value yields the time encoded in ID.
func (e Entry) Time() time.Time {
	if t, err := time.Parse(isoMillis, e.Timestamp); err == nil {
		return t
	}
	return time.UnixMilli(e.ID).UTC()
}

// Export is the exported artifact for one patient.
type Export struct {
	Patient    string  `json:"patient"`
	ExportedAt string  `json:"exportedAt"`
	Entries    []Entry `json:"entries"`
}

// NewExport builds an export document.
func NewExport(patient string, entries []Entry, now time.Time) Export {
	if entries == nil {
		entries = []Entry{}
	}
	return Export{
		Patient:    patient,
		ExportedAt: now.UTC().Format(isoMillis),
		Entries:    entries,
	}
}

// Filename returns the suggested file name for the export.
func (x Export) Filename() string {
	t, err := time.Parse(isoMillis, x.ExportedAt)
	if err != nil {
		t = time.Now().UTC()
	}
	return fmt.Sprintf("conversation-%s-%s.json", safeName(x.Patient), t.Format("20060102-150405"))
}

// JSON returns the indented export document.
func (x Export) JSON() ([]byte, error) {
	return json.MarshalIndent(x, "", "  ")
}

// Text renders the export as plain text, oldest message first, for
// documents meant to be read by people.
func (x Export) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation log: %s\n", x.Patient)
	fmt.Fprintf(&b, "Exported: %s\n\n", x.ExportedAt)
	if len(x.Entries) == 0 {
		b.WriteString("(no messages)\n")
		return b.String()
	}
	for i := len(x.Entries) - 1; i >= 0; i-- {
		e := x.Entries[i]
		fmt.Fprintf(&b, "[%s] (%s) %s\n", e.Time().Format("2006-01-02 15:04:05"), e.Category, e.Message)
	}
	return b.String()
}

// WriteExport writes x into dir and returns the file path.
func WriteExport(dir string, x Export) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	data, err := x.JSON()
	if err != nil {
		return "", fmt.Errorf("marshal export: %w", err)
	}
	path := filepath.Join(dir, x.Filename())
	if err := writeAtomic(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// safeName maps a patient ID to a file-system safe name.
func safeName(patient string) string {
	if patient == "" {
		return "default"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, patient)
}

// writeAtomic writes to a temp file and renames it over path.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
