package perception

import (
	"context"
	"sync"
	"time"
)

// Buffer holds the most recent sample pushed by a remote producer and serves
// it to the engine. Samples older than the staleness window read as "no
// face" so a stalled producer decays to silence.
type Buffer struct {
	mu        sync.Mutex
	latest    *Sample
	received  time.Time
	staleness time.Duration
	pushed    bool
}

// NewBuffer creates a buffer with the given staleness window.
func NewBuffer(staleness time.Duration) *Buffer {
	if staleness <= 0 {
		staleness = 500 * time.Millisecond
	}
	return &Buffer{staleness: staleness}
}

// Push stores s as the latest sample received at t.
func (b *Buffer) Push(s *Sample, t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = s
	b.received = t
	b.pushed = true
}

// Sample returns the latest sample. It returns ErrUnavailable before the
// first push and an empty sample once the latest one is stale.
func (b *Buffer) Sample(_ context.Context, now time.Time) (*Sample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.pushed {
		return nil, ErrUnavailable
	}
	if b.latest == nil || now.Sub(b.received) > b.staleness {
		return &Sample{TimestampMs: now.UnixMilli()}, nil
	}
	return b.latest, nil
}

// Reset drops the held sample. The buffer reports ErrUnavailable until the
// next push.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = nil
	b.pushed = false
}

// DetectorSource runs a Detector over frames pulled from a FrameSource.
type DetectorSource struct {
	Frames   FrameSource
	Detector Detector
}

// Sample pulls one frame and detects on it.
func (d *DetectorSource) Sample(ctx context.Context, now time.Time) (*Sample, error) {
	if d.Frames == nil || d.Detector == nil {
		return nil, ErrUnavailable
	}
	frame, err := d.Frames.Next(ctx)
	if err != nil {
		return nil, err
	}
	return d.Detector.Detect(frame, now.UnixMilli())
}

// Close releases the frame source and detector.
func (d *DetectorSource) Close() error {
	var firstErr error
	if d.Frames != nil {
		if err := d.Frames.Close(); err != nil {
			firstErr = err
		}
	}
	if d.Detector != nil {
		if err := d.Detector.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
