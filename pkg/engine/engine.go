// Package engine runs the evaluation loop: each tick pulls a perception
// sample, extracts a signal frame, evaluates the rules against the latest
// sound level and steps the commit machine. Commits go to the output
// coordinator; every tick's result goes to the presenter.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-intent/pkg/commit"
	"github.com/teslashibe/go-intent/pkg/metrics"
	"github.com/teslashibe/go-intent/pkg/output"
	"github.com/teslashibe/go-intent/pkg/perception"
	"github.com/teslashibe/go-intent/pkg/rules"
	"github.com/teslashibe/go-intent/pkg/signals"
)

// LevelSource is the audio contract.
type LevelSource interface {
	PollLevel() float64
}

// Committer receives commits. *output.Coordinator satisfies it.
type Committer interface {
	Commit(ctx context.Context, message, category string, src output.Source, now time.Time) (output.Event, error)
}

// Presenter receives every tick's snapshot. Present must not block.
type Presenter interface {
	Present(s Snapshot)
}

// resetter is implemented by inputs that hold derived state, such as
// perception.Buffer and audioio.Meter.
type resetter interface {
	Reset()
}

// Config tunes the engine.
type Config struct {
	Signals signals.Config
	Rules   rules.Config
	Commit  commit.Config

	FrameInterval time.Duration // evaluation tick cadence
	AudioInterval time.Duration // level poll cadence

	// CommitCategory is the log category of machine commits.
	CommitCategory string
}

// DefaultConfig returns ~30Hz evaluation and 20Hz audio polling.
func DefaultConfig() Config {
	return Config{
		Signals:        signals.DefaultConfig(),
		Rules:          rules.DefaultConfig(),
		Commit:         commit.DefaultConfig(),
		FrameInterval:  33 * time.Millisecond,
		AudioInterval:  50 * time.Millisecond,
		CommitCategory: "signal",
	}
}

// Deps are the engine's collaborators. Any may be nil.
type Deps struct {
	Perception perception.Source
	Audio      LevelSource
	Output     Committer
	Presenter  Presenter
	Logger     *slog.Logger
}

// Snapshot is the observable result of one tick.
type Snapshot struct {
	At        time.Time         `json:"at"`
	Frame     signals.Frame     `json:"frame"`
	Level     float64           `json:"level"`
	Spike     bool              `json:"spike"`
	Phase     commit.Phase      `json:"phase"`
	Label     string            `json:"label"`
	Progress  int               `json:"progress"`
	Candidate *rules.Suggestion `json:"candidate,omitempty"`
	Committed *rules.Suggestion `json:"committed,omitempty"`
	Camera    bool              `json:"camera"`
	Mic       bool              `json:"mic"`
}

// Engine owns all mutable evaluation state. Tick, PollAudio and the
// Start/Stop controls may be called from different goroutines; one mutex
// serializes them so the tick remains the only writer of gesture history
// and commit state.
type Engine struct {
	cfg    Config
	deps   Deps
	rules  *rules.Engine
	logger *slog.Logger

	mu        sync.Mutex
	extractor *signals.Extractor
	machine   *commit.Machine
	level     float64
	camera    bool
	mic       bool
	phase     commit.Phase
	candidate *rules.Suggestion
	last      Snapshot
}

// New creates an engine with camera and mic enabled.
func New(cfg Config, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:       cfg,
		deps:      deps,
		rules:     rules.New(cfg.Rules),
		logger:    logger.With("component", "engine"),
		extractor: signals.NewExtractor(cfg.Signals),
		machine:   commit.New(cfg.Commit),
		camera:    true,
		mic:       true,
		phase:     commit.Waiting,
	}
	e.last = e.idleSnapshotLocked(time.Time{})
	return e
}

// Tick runs one evaluation at now.
func (e *Engine) Tick(ctx context.Context, now time.Time) Snapshot {
	start := time.Now()

	e.mu.Lock()
	camera := e.camera
	e.mu.Unlock()

	var sample *perception.Sample
	if camera && e.deps.Perception != nil {
		s, err := e.deps.Perception.Sample(ctx, now)
		if err != nil {
			e.countPerceptionError(err)
		} else {
			sample = s
		}
	}

	e.mu.Lock()
	if !e.camera {
		// Stopped while the sample was in flight.
		sample = nil
	}
	frame := e.extractor.Extract(sample, now)
	if err := e.extractor.LastError(); err != nil {
		metrics.PerceptionFailures.WithLabelValues("malformed").Inc()
		e.logger.Debug("malformed sample", "error", err)
	}

	level := e.level
	out := e.machine.Step(now, func() *rules.Suggestion {
		return e.rules.Evaluate(frame, level)
	})
	e.observeLocked(out)

	snap := Snapshot{
		At:        now,
		Frame:     frame,
		Level:     level,
		Spike:     e.rules.Spike(level),
		Phase:     out.Phase,
		Label:     out.Label(),
		Progress:  out.Progress,
		Candidate: out.Candidate,
		Committed: out.Committed,
		Camera:    e.camera,
		Mic:       e.mic,
	}
	e.last = snap
	e.mu.Unlock()

	if out.Committed != nil && e.deps.Output != nil {
		if _, err := e.deps.Output.Commit(ctx, out.Committed.Label, e.cfg.CommitCategory, output.FromSignal, now); err != nil {
			e.logger.Warn("commit output degraded", "message", out.Committed.Label, "error", err)
		}
	}
	if e.deps.Presenter != nil {
		e.deps.Presenter.Present(snap)
	}

	metrics.FramesProcessed.Inc()
	metrics.TickDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
	return snap
}

// observeLocked records phase transitions and new candidates.
func (e *Engine) observeLocked(out commit.Outcome) {
	if out.Phase != e.phase {
		metrics.PhaseTransitions.WithLabelValues(string(e.phase), string(out.Phase)).Inc()
		e.logger.Debug("phase", "from", e.phase, "to", out.Phase, "candidate", out.Candidate.String())
		e.phase = out.Phase
	}
	if out.Candidate != nil && !out.Candidate.Equal(e.candidate) {
		metrics.Suggestions.WithLabelValues(out.Candidate.Label).Inc()
	}
	e.candidate = out.Candidate
}

func (e *Engine) countPerceptionError(err error) {
	kind := "error"
	switch {
	case errors.Is(err, perception.ErrUnavailable):
		kind = "unavailable"
	case errors.Is(err, perception.ErrMalformed):
		kind = "malformed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return
	}
	metrics.PerceptionFailures.WithLabelValues(kind).Inc()
	e.logger.Debug("perception failed, treating as no face", "kind", kind, "error", err)
}

// PollAudio samples the audio source.
func (e *Engine) PollAudio() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.mic || e.deps.Audio == nil {
		e.level = 0
	} else {
		e.level = e.deps.Audio.PollLevel()
	}
	metrics.SoundLevel.Set(e.level)
	return e.level
}

// Run drives Tick and PollAudio at their cadences until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return every(ctx, e.cfg.AudioInterval, func(time.Time) { e.PollAudio() })
	})
	g.Go(func() error {
		return every(ctx, e.cfg.FrameInterval, func(now time.Time) { e.Tick(ctx, now) })
	})

	e.logger.Info("running", "frame_interval", e.cfg.FrameInterval, "audio_interval", e.cfg.AudioInterval)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func every(ctx context.Context, d time.Duration, fn func(now time.Time)) error {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			fn(now)
		}
	}
}

// StopCamera disables perception and clears all derived signal state at
// once: the frame reads zero, gesture history and the pending candidate are
// dropped. An active commit lock is kept.
func (e *Engine) StopCamera(now time.Time) Snapshot {
	e.mu.Lock()
	e.camera = false
	e.extractor.Reset()
	e.machine.Abandon()
	snap := e.resetSnapshotLocked(now)
	e.mu.Unlock()

	if r, ok := e.deps.Perception.(resetter); ok {
		r.Reset()
	}
	e.logger.Info("camera stopped")
	e.present(snap)
	return snap
}

// StartCamera re-enables perception.
func (e *Engine) StartCamera(now time.Time) Snapshot {
	e.mu.Lock()
	e.camera = true
	snap := e.last
	snap.Camera = true
	e.last = snap
	e.mu.Unlock()

	e.logger.Info("camera started")
	e.present(snap)
	return snap
}

// StopMic disables audio and drops the level to zero at once.
func (e *Engine) StopMic(now time.Time) Snapshot {
	e.mu.Lock()
	e.mic = false
	e.level = 0
	snap := e.last
	snap.At = now
	snap.Level = 0
	snap.Spike = false
	snap.Mic = false
	e.last = snap
	e.mu.Unlock()

	if r, ok := e.deps.Audio.(resetter); ok {
		r.Reset()
	}
	metrics.SoundLevel.Set(0)
	e.logger.Info("mic stopped")
	e.present(snap)
	return snap
}

// StartMic re-enables audio.
func (e *Engine) StartMic(now time.Time) Snapshot {
	e.mu.Lock()
	e.mic = true
	snap := e.last
	snap.Mic = true
	e.last = snap
	e.mu.Unlock()

	e.logger.Info("mic started")
	e.present(snap)
	return snap
}

// Snapshot returns the latest tick result.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// State returns a copy of the commit machine state.
func (e *Engine) State() commit.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine.State()
}

// Inputs reports whether camera and mic are enabled.
func (e *Engine) Inputs() (camera, mic bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.camera, e.mic
}

// Say commits a manually chosen phrase, bypassing the commit machine.
func (e *Engine) Say(ctx context.Context, message, category string, now time.Time) (output.Event, error) {
	if e.deps.Output == nil {
		return output.Event{Message: message, Category: category, Source: output.FromManual, At: now}, nil
	}
	return e.deps.Output.Commit(ctx, message, category, output.FromManual, now)
}

func (e *Engine) present(s Snapshot) {
	if e.deps.Presenter != nil {
		e.deps.Presenter.Present(s)
	}
}

func (e *Engine) resetSnapshotLocked(now time.Time) Snapshot {
	snap := e.idleSnapshotLocked(now)
	if st := e.machine.State(); st.Locked {
		snap.Phase = commit.Locked
		snap.Label = string(commit.Locked)
	}
	e.phase = snap.Phase
	e.candidate = nil
	e.last = snap
	return snap
}

func (e *Engine) idleSnapshotLocked(now time.Time) Snapshot {
	return Snapshot{
		At:     now,
		Frame:  signals.Zero(),
		Level:  e.level,
		Spike:  e.rules.Spike(e.level),
		Phase:  commit.Waiting,
		Label:  string(commit.Waiting),
		Camera: e.camera,
		Mic:    e.mic,
	}
}
