// Package gesture classifies head nods and shakes from a short rolling
// window of nose-tip positions.
package gesture

import (
	"math"
	"time"
)

// Gesture is a discrete head gesture.
type Gesture string

const (
	Still Gesture = "still"
	Nod   Gesture = "nod"
	Shake Gesture = "shake"
)

// Config tunes classification.
type Config struct {
	Window         time.Duration // Samples older than this are dropped
	MinSamples     int           // Below this, always Still
	ShakeThreshold float64       // Minimum |dx| that counts as horizontal motion
	NodThreshold   float64       // Minimum |dy| that counts as vertical motion
	MinFlips       int           // Direction reversals needed to confirm
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Window:         500 * time.Millisecond,
		MinSamples:     10,
		ShakeThreshold: 0.02,
		NodThreshold:   0.015,
		MinFlips:       2,
	}
}

type sample struct {
	x, y float64
	t    time.Time
}

// Tracker holds the nose history. It is not safe for concurrent use; the
// engine calls it from the evaluation tick only.
type Tracker struct {
	cfg     Config
	history []sample
}

// NewTracker creates a tracker.
func NewTracker(cfg Config) *Tracker {
	if cfg.MinFlips <= 0 {
		cfg.MinFlips = 2
	}
	return &Tracker{cfg: cfg, history: make([]sample, 0, 64)}
}

// Observe records the tracked point at now and prunes the window.
func (t *Tracker) Observe(x, y float64, now time.Time) {
	t.history = append(t.history, sample{x: x, y: y, t: now})

	cutoff := now.Add(-t.cfg.Window)
	drop := 0
	for drop < len(t.history) && t.history[drop].t.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		t.history = append(t.history[:0], t.history[drop:]...)
	}
}

// Classify returns the gesture in the current window. Vertical oscillation
// wins over horizontal.
func (t *Tracker) Classify() Gesture {
	if len(t.history) < t.cfg.MinSamples {
		return Still
	}

	var hFlips, vFlips int
	var hSign, vSign int
	for i := 1; i < len(t.history); i++ {
		dx := t.history[i].x - t.history[i-1].x
		dy := t.history[i].y - t.history[i-1].y

		if math.Abs(dx) > t.cfg.ShakeThreshold {
			s := sign(dx)
			if hSign != 0 && s != hSign {
				hFlips++
			}
			hSign = s
		}
		if math.Abs(dy) > t.cfg.NodThreshold {
			s := sign(dy)
			if vSign != 0 && s != vSign {
				vFlips++
			}
			vSign = s
		}
	}

	switch {
	case vFlips >= t.cfg.MinFlips:
		return Nod
	case hFlips >= t.cfg.MinFlips:
		return Shake
	default:
		return Still
	}
}

// Movement returns min(1, total path length in the window × 5).
func (t *Tracker) Movement() float64 {
	var total float64
	for i := 1; i < len(t.history); i++ {
		total += math.Abs(t.history[i].x-t.history[i-1].x) + math.Abs(t.history[i].y-t.history[i-1].y)
	}
	return math.Min(1, total*5)
}

// Len returns the number of samples in the window.
func (t *Tracker) Len() int {
	return len(t.history)
}

// Reset clears the history.
func (t *Tracker) Reset() {
	t.history = t.history[:0]
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
