package audioio

import (
	"math"
	"sync"
	"time"
)

// DefaultStaleness is how long a level stays valid without new input.
const DefaultStaleness = time.Second

// MeterConfig tunes level computation.
type MeterConfig struct {
	// Gain scales normalized RMS before clamping. Speech at a normal
	// distance sits well below full scale.
	Gain float64

	// Decay is applied to the held level on every update so short
	// spikes remain visible for a few polls.
	Decay float64

	// Staleness is how long the level is held without new input. After
	// that the meter reads silent until the next update.
	Staleness time.Duration
}

// DefaultMeterConfig returns gain 4, decay 0.8 and a one second hold.
func DefaultMeterConfig() MeterConfig {
	return MeterConfig{Gain: 4, Decay: 0.8, Staleness: DefaultStaleness}
}

// Meter holds the current sound level. Safe for concurrent use.
type Meter struct {
	cfg MeterConfig

	now func() time.Time

	mu      sync.Mutex
	level   float64
	updated time.Time
}

// NewMeter creates a silent meter.
func NewMeter(cfg MeterConfig) *Meter {
	if cfg.Gain <= 0 {
		cfg.Gain = 1
	}
	if cfg.Decay < 0 || cfg.Decay >= 1 {
		cfg.Decay = 0
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = DefaultStaleness
	}
	return &Meter{cfg: cfg, now: time.Now}
}

// Push folds a chunk into the level.
func (m *Meter) Push(c Chunk) {
	m.Set(RMS(c.Samples) * m.cfg.Gain)
}

// Set folds a level that was measured elsewhere, e.g. by the browser.
func (m *Meter) Set(level float64) {
	level = clamp01(level)
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if m.staleLocked(now) {
		m.level = 0
	}
	m.level = math.Max(level, m.level*m.cfg.Decay)
	m.updated = now
}

// PollLevel returns the current level in [0,1]. A level that has not been
// updated within the staleness window reads as silence, so a stalled or
// disconnected capture client cannot hold a spike.
func (m *Meter) PollLevel() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staleLocked(m.now()) {
		m.level = 0
	}
	return m.level
}

func (m *Meter) staleLocked(now time.Time) bool {
	return m.level > 0 && now.Sub(m.updated) > m.cfg.Staleness
}

// Reset drops to silence.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = 0
}

// RMS returns the root-mean-square of samples normalized to [0,1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
