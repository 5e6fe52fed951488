// Package rules maps a signal frame and the current sound level to at most
// one suggestion. Evaluation is pure and ordered: the first matching rule
// wins.
package rules

import (
	"github.com/teslashibe/go-intent/pkg/gesture"
	"github.com/teslashibe/go-intent/pkg/signals"
)

// Category groups suggestions for display and logging.
type Category string

const (
	Mood   Category = "mood"
	Need   Category = "need"
	Signal Category = "signal"
)

// Suggestion labels.
const (
	Yes            = "Yes"
	No             = "No"
	NeedsAttention = "Needs attention"
	NeedsBreak     = "Needs a break"
	FeelingHappy   = "Feeling happy"
	FeelingSad     = "Feeling sad"
	Surprised      = "Surprised"
)

// Suggestion is a candidate message. Values are compared by label and
// category.
type Suggestion struct {
	Label    string   `json:"label"`
	Category Category `json:"category"`
}

// Equal reports whether two suggestions carry the same message. nil equals
// only nil.
func (s *Suggestion) Equal(o *Suggestion) bool {
	if s == nil || o == nil {
		return s == o
	}
	return *s == *o
}

func (s *Suggestion) String() string {
	if s == nil {
		return "<none>"
	}
	return s.Label
}

// Config holds the rule thresholds. Every comparison is strict.
type Config struct {
	SoundSpike float64
	MouthOpen  float64
	Movement   float64
	Smile      float64
	Sad        float64
	Surprised  float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		SoundSpike: 0.4,
		MouthOpen:  0.15,
		Movement:   0.5,
		Smile:      0.08,
		Sad:        0.15,
		Surprised:  0.2,
	}
}

// Engine evaluates the ordered rule list.
type Engine struct {
	cfg Config
}

// New creates a rule engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the thresholds in use.
func (e *Engine) Config() Config {
	return e.cfg
}

// Spike reports whether level counts as a sound spike.
func (e *Engine) Spike(level float64) bool {
	return level > e.cfg.SoundSpike
}

// Evaluate returns the suggestion for f at the given sound level, or nil.
// Volitional gestures outrank distress-with-audio, which outranks affect.
func (e *Engine) Evaluate(f signals.Frame, level float64) *Suggestion {
	spike := e.Spike(level)

	switch {
	case f.HeadGesture == gesture.Nod:
		return &Suggestion{Label: Yes, Category: Signal}
	case f.HeadGesture == gesture.Shake:
		return &Suggestion{Label: No, Category: Signal}
	case f.MouthOpen > e.cfg.MouthOpen && spike:
		return &Suggestion{Label: NeedsAttention, Category: Need}
	case f.Movement > e.cfg.Movement && spike:
		return &Suggestion{Label: NeedsBreak, Category: Need}
	case f.Smile > e.cfg.Smile:
		return &Suggestion{Label: FeelingHappy, Category: Mood}
	case f.Emotion.Sad > e.cfg.Sad:
		return &Suggestion{Label: FeelingSad, Category: Mood}
	case f.Emotion.Surprised > e.cfg.Surprised:
		return &Suggestion{Label: Surprised, Category: Mood}
	default:
		return nil
	}
}
