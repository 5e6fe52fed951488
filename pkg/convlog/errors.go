package convlog

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistence is matched by every load or save failure.
	ErrPersistence = errors.New("convlog: persistence failure")

	// ErrNotAuthenticated is returned by Docs operations before the OAuth
	// flow has completed.
	ErrNotAuthenticated = errors.New("convlog: not connected to Google")

	// ErrNoCredentials is returned when Google client credentials are
	// missing.
	ErrNoCredentials = errors.New("convlog: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
)

// PersistenceError describes a failed load or save. The in-memory log is
// still usable when one is returned.
type PersistenceError struct {
	Op      string // "load" or "save"
	Patient string
	Err     error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("convlog: %s patient %q: %v", e.Op, e.Patient, e.Err)
}

// Unwrap exposes both ErrPersistence and the cause.
func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

func persistErr(op, patient string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Patient: patient, Err: err}
}
