package tts

import (
	"context"
	"sync"
	"time"
)

// Mock is an offline Provider. By default it returns the phrase bytes as
// audio, which is enough for the speech hub to carry something.
type Mock struct {
	// SynthesizeFunc replaces the default behavior when set.
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)

	mu     sync.Mutex
	spoken []string
	closed bool
}

// NewMock returns a mock with the default behavior.
func NewMock() *Mock {
	return &Mock{}
}

// Synthesize remembers text and produces audio for it.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.mu.Lock()
	m.spoken = append(m.spoken, text)
	fn := m.SynthesizeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return &AudioResult{Audio: []byte(text), Format: EncodingMP3, CharCount: len(text)}, nil
}

// Name returns "mock".
func (m *Mock) Name() string { return "mock" }

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Spoken returns every phrase passed to Synthesize, oldest first.
func (m *Mock) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.spoken...)
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// WithError returns a mock whose Synthesize always fails with err.
func WithError(err error) *Mock {
	return &Mock{SynthesizeFunc: func(context.Context, string) (*AudioResult, error) {
		return nil, WrapError("mock", err)
	}}
}

// WithLatency makes m wait delay before answering. Cancellation wins.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	inner := m.SynthesizeFunc
	m.SynthesizeFunc = func(ctx context.Context, text string) (*AudioResult, error) {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if inner != nil {
			return inner(ctx, text)
		}
		return &AudioResult{Audio: []byte(text), Format: EncodingMP3, CharCount: len(text)}, nil
	}
	return m
}

var _ Provider = (*Mock)(nil)
