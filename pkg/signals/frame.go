// Package signals turns raw perception samples into normalized signal
// frames: smile, mouth-open, head movement and gesture, and an emotion
// distribution.
package signals

import "github.com/teslashibe/go-intent/pkg/gesture"

// Emotion labels.
const (
	Happy     = "happy"
	Sad       = "sad"
	Surprised = "surprised"
	Neutral   = "neutral"
)

// Emotion is a distribution over four affect classes. Neutral is the
// residual after the other three.
type Emotion struct {
	Happy     float64 `json:"happy"`
	Sad       float64 `json:"sad"`
	Surprised float64 `json:"surprised"`
	Neutral   float64 `json:"neutral"`
}

// Frame is the per-frame signal summary. All scalars are in [0,1].
type Frame struct {
	Smile       float64         `json:"smile"`
	MouthOpen   float64         `json:"mouth_open"`
	Movement    float64         `json:"movement"`
	HeadGesture gesture.Gesture `json:"head_gesture"`
	Emotion     Emotion         `json:"emotion"`
	Dominant    string          `json:"dominant_emotion"`
}

// Zero returns the frame for "no usable face": all scores zero, fully
// neutral, head still.
func Zero() Frame {
	return Frame{
		HeadGesture: gesture.Still,
		Emotion:     Emotion{Neutral: 1},
		Dominant:    Neutral,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
