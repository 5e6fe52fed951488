// Package output fans a committed message out to the display, the speech
// sink, haptics and the conversation log.
package output

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-intent/pkg/convlog"
	"github.com/teslashibe/go-intent/pkg/metrics"
)

// Source tags where a commit came from.
type Source string

const (
	FromSignal Source = "signal" // commit machine
	FromManual Source = "manual" // phrase chosen by a caregiver or the patient
)

// Event describes one committed message after it was handled.
type Event struct {
	Message  string        `json:"message"`
	Category string        `json:"category"`
	Source   Source        `json:"source"`
	Spoken   bool          `json:"spoken"`
	Entry    convlog.Entry `json:"entry"`
	At       time.Time     `json:"at"`
}

// Display renders committed messages.
type Display interface {
	ShowCommit(ev Event)
}

// Speaker is the speech sink. Speak must not block.
type Speaker interface {
	Speak(text string)
}

// Haptics issues tactile or audible feedback.
type Haptics interface {
	Pulse(pattern []time.Duration)
}

// Recorder appends to the conversation log. *convlog.Log satisfies it.
type Recorder interface {
	Append(message, category string, now time.Time) (convlog.Entry, error)
}

// DefaultHapticPattern is vibrate-pause-vibrate.
var DefaultHapticPattern = []time.Duration{100 * time.Millisecond, 50 * time.Millisecond, 100 * time.Millisecond}

// Config wires the sinks. Nil sinks are skipped.
type Config struct {
	Display  Display
	Speaker  Speaker
	Haptics  Haptics
	Recorder Recorder
	Policy   SpeechPolicy
	Pattern  []time.Duration
	Logger   *slog.Logger
}

// Coordinator handles commits. Safe for concurrent use.
type Coordinator struct {
	cfg    Config
	logger *slog.Logger

	mu  sync.Mutex
	tts TTSState
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Pattern == nil {
		cfg.Pattern = DefaultHapticPattern
	}
	if cfg.Policy == (SpeechPolicy{}) {
		cfg.Policy = DefaultSpeechPolicy()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{cfg: cfg, logger: logger.With("component", "output")}
}

// Commit displays, logs and signals message, and speaks it when the speech
// policy allows. A log persistence error is returned after every other sink
// has run.
func (c *Coordinator) Commit(ctx context.Context, message, category string, src Source, now time.Time) (Event, error) {
	ev := Event{Message: message, Category: category, Source: src, At: now}

	var logErr error
	if c.cfg.Recorder != nil {
		ev.Entry, logErr = c.cfg.Recorder.Append(message, category, now)
		if logErr != nil {
			metrics.PersistenceFailures.Inc()
			c.logger.Warn("log persistence failed", "message", message, "error", logErr)
		}
	}

	ev.Spoken = c.speak(ctx, message, now)
	if ev.Spoken {
		metrics.Speech.WithLabelValues("spoken").Inc()
	} else {
		metrics.Speech.WithLabelValues("suppressed").Inc()
	}

	if c.cfg.Display != nil {
		c.cfg.Display.ShowCommit(ev)
	}
	if c.cfg.Haptics != nil {
		c.cfg.Haptics.Pulse(c.cfg.Pattern)
	}

	metrics.Commits.WithLabelValues(category, string(src)).Inc()
	c.logger.Info("commit", "message", message, "category", category, "source", src, "spoken", ev.Spoken)
	return ev, logErr
}

// TTSState returns the speech suppression state.
func (c *Coordinator) TTSState() TTSState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tts
}

// speak hands message to the speaker when the policy allows. The speech
// state only advances when an utterance was actually started.
func (c *Coordinator) speak(ctx context.Context, message string, now time.Time) bool {
	if c.cfg.Speaker == nil || ctx.Err() != nil {
		return false
	}
	c.mu.Lock()
	if !c.cfg.Policy.Allow(c.tts, message, now) {
		c.mu.Unlock()
		return false
	}
	c.tts = TTSState{LastSpeak: now, LastMessage: message}
	c.mu.Unlock()

	c.cfg.Speaker.Speak(message)
	return true
}
