package signals

import (
	"math"
	"time"

	"github.com/teslashibe/go-intent/pkg/gesture"
	"github.com/teslashibe/go-intent/pkg/perception"
)

// Config tunes extraction.
type Config struct {
	Gesture gesture.Config

	// Dominant-emotion thresholds, checked in order happy, sad, surprised.
	// Happy is checked against the fused smile score, the others against
	// the distribution.
	HappyThreshold     float64
	SadThreshold       float64
	SurprisedThreshold float64
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Gesture:            gesture.DefaultConfig(),
		HappyThreshold:     0.1,
		SadThreshold:       0.15,
		SurprisedThreshold: 0.2,
	}
}

// Extractor maps perception samples to frames. It owns the gesture tracker
// and is driven from a single goroutine.
type Extractor struct {
	cfg     Config
	tracker *gesture.Tracker
	lastErr error
}

// NewExtractor creates an extractor.
func NewExtractor(cfg Config) *Extractor {
	return &Extractor{
		cfg:     cfg,
		tracker: gesture.NewTracker(cfg.Gesture),
	}
}

// Extract produces the frame for sample observed at now. A nil sample, a
// sample without a face and a malformed face all yield Zero() and clear the
// gesture history. Extract never panics on bad input.
func (e *Extractor) Extract(sample *perception.Sample, now time.Time) Frame {
	e.lastErr = nil

	if !sample.HasFace() {
		e.tracker.Reset()
		return Zero()
	}
	face := sample.Face
	if err := perception.Check(face); err != nil {
		e.lastErr = err
		e.tracker.Reset()
		return Zero()
	}

	frame := Frame{HeadGesture: gesture.Still}

	if nose, ok := face.Landmarks.Get(perception.NoseTip); ok {
		e.tracker.Observe(nose.X, nose.Y, now)
		frame.HeadGesture = e.tracker.Classify()
		frame.Movement = e.tracker.Movement()
	} else {
		e.tracker.Reset()
	}

	lm := estimateLandmarks(face.Landmarks)
	ex := estimateExpressions(face.Expressions)

	frame.Smile = clamp01(maxOf(lm.smile, ex.smileEstimate()))
	frame.MouthOpen = clamp01(preferred(ex.mouthOpenEstimate(), lm.mouthOpen))
	frame.Emotion = distribution(frame.Smile, ex)
	frame.Dominant = e.dominant(frame)

	return frame
}

// LastError returns why the previous Extract call fell back to Zero(), or
// nil.
func (e *Extractor) LastError() error {
	return e.lastErr
}

// Reset clears gesture history.
func (e *Extractor) Reset() {
	e.tracker.Reset()
	e.lastErr = nil
}

// distribution derives the emotion mix. Sad and surprised need expression
// data; without it only happy (from the fused smile) is populated.
func distribution(smile float64, ex expressionEstimate) Emotion {
	em := Emotion{Happy: math.Min(1, 2*smile)}
	if ex.ok {
		em.Sad = math.Min(1, 1.5*ex.frown+0.5*ex.browDown)
		em.Surprised = math.Min(1, 0.8*ex.browUp+0.8*ex.eyeWide+0.4*ex.jawOpen)
	}
	em.Neutral = math.Max(0, 1-em.Happy-em.Sad-em.Surprised)
	return em
}

func (e *Extractor) dominant(f Frame) string {
	switch {
	case f.Smile > e.cfg.HappyThreshold:
		return Happy
	case f.Emotion.Sad > e.cfg.SadThreshold:
		return Sad
	case f.Emotion.Surprised > e.cfg.SurprisedThreshold:
		return Surprised
	default:
		return Neutral
	}
}
