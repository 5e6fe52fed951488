// Package commit holds the temporal core: a suggestion must stay the same
// for a stability delay before it is committed, and every commit is
// followed by a lock during which nothing is evaluated.
package commit

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-intent/pkg/rules"
)

// Phase is the observable machine phase.
type Phase string

const (
	Waiting     Phase = "waiting"
	Stabilizing Phase = "stabilizing"
	Locked      Phase = "locked"
)

// Config sets the two windows.
type Config struct {
	StabilityDelay time.Duration
	LockDuration   time.Duration
}

// DefaultConfig returns 800ms stability and a 4s lock.
func DefaultConfig() Config {
	return Config{
		StabilityDelay: 800 * time.Millisecond,
		LockDuration:   4 * time.Second,
	}
}

// State is the full machine state. Candidate != nil implies CandidateSince
// is set; Locked implies LockUntil is set.
type State struct {
	Candidate      *rules.Suggestion
	CandidateSince time.Time
	Locked         bool
	LockUntil      time.Time
}

// Outcome is the result of one Step.
type Outcome struct {
	Phase     Phase
	Progress  int               // 0-100 while stabilizing
	Candidate *rules.Suggestion // current candidate while stabilizing
	Committed *rules.Suggestion // set on the tick that committed
	LockUntil time.Time         // set while locked
}

// Label renders the phase the way the dashboard shows it.
func (o Outcome) Label() string {
	if o.Phase == Stabilizing {
		return fmt.Sprintf("stabilizing %d%%", o.Progress)
	}
	return string(o.Phase)
}

// Machine is the commit state machine. It is not safe for concurrent use;
// the engine drives it from its evaluation tick under its own lock.
type Machine struct {
	cfg   Config
	state State
}

// New creates a machine in the idle state.
func New(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// Step advances the machine to now. evaluate is only called when the
// machine is not locked, so a frozen tick costs no rule evaluation.
func (m *Machine) Step(now time.Time, evaluate func() *rules.Suggestion) Outcome {
	if m.state.Locked {
		if now.Before(m.state.LockUntil) {
			return Outcome{Phase: Locked, LockUntil: m.state.LockUntil}
		}
		m.state.Locked = false
		m.state.LockUntil = time.Time{}
	}

	s := evaluate()
	if s == nil {
		m.clearCandidate()
		return Outcome{Phase: Waiting}
	}

	if !s.Equal(m.state.Candidate) {
		m.state.Candidate = s
		m.state.CandidateSince = now
		return Outcome{Phase: Stabilizing, Candidate: s}
	}

	elapsed := now.Sub(m.state.CandidateSince)
	if elapsed >= m.cfg.StabilityDelay {
		m.clearCandidate()
		m.state.Locked = true
		m.state.LockUntil = now.Add(m.cfg.LockDuration)
		return Outcome{Phase: Locked, Committed: s, LockUntil: m.state.LockUntil}
	}

	return Outcome{
		Phase:     Stabilizing,
		Progress:  progress(elapsed, m.cfg.StabilityDelay),
		Candidate: m.state.Candidate,
	}
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	return m.state
}

// Abandon drops the current candidate without touching an active lock.
func (m *Machine) Abandon() {
	m.clearCandidate()
}

// Reset returns the machine to idle, releasing any lock.
func (m *Machine) Reset() {
	m.state = State{}
}

func (m *Machine) clearCandidate() {
	m.state.Candidate = nil
	m.state.CandidateSince = time.Time{}
}

func progress(elapsed, total time.Duration) int {
	if total <= 0 {
		return 100
	}
	p := int(elapsed * 100 / total)
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}
