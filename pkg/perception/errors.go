package perception

import "errors"

var (
	// ErrUnavailable is returned while a source has not produced anything
	// yet (model still loading, no ingest client connected). The engine
	// treats it as "no face" and retries on the next tick.
	ErrUnavailable = errors.New("perception: source unavailable")

	// ErrMalformed marks a face whose landmarks lack a required role or
	// carry non-finite coordinates.
	ErrMalformed = errors.New("perception: malformed sample")

	// ErrClosed is returned by sources after Close.
	ErrClosed = errors.New("perception: source closed")
)
