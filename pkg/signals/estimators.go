package signals

import (
	"math"

	"github.com/teslashibe/go-intent/pkg/perception"
)

// Expression intensity names as reported by face landmarker blendshapes.
const (
	exprSmileLeft      = "mouthSmileLeft"
	exprSmileRight     = "mouthSmileRight"
	exprFrownLeft      = "mouthFrownLeft"
	exprFrownRight     = "mouthFrownRight"
	exprBrowDownLeft   = "browDownLeft"
	exprBrowDownRight  = "browDownRight"
	exprBrowInnerUp    = "browInnerUp"
	exprBrowOuterLeft  = "browOuterUpLeft"
	exprBrowOuterRight = "browOuterUpRight"
	exprEyeWideLeft    = "eyeWideLeft"
	exprEyeWideRight   = "eyeWideRight"
	exprSquintLeft     = "eyeSquintLeft"
	exprSquintRight    = "eyeSquintRight"
	exprJawOpen        = "jawOpen"
)

// minMouthHeight guards the width/height ratio against a fully closed mouth.
const minMouthHeight = 0.005

// estimate is one estimator's opinion. ok is false when the estimator had
// nothing to work with.
type estimate struct {
	value float64
	ok    bool
}

func some(v float64) estimate { return estimate{value: v, ok: true} }

// landmarkEstimate holds the geometry-based scores.
type landmarkEstimate struct {
	smile     estimate
	mouthOpen estimate
}

// estimateLandmarks scores smile and mouth opening from the outer lip
// points and mouth corners.
func estimateLandmarks(l perception.Landmarks) landmarkEstimate {
	if !l.Has(perception.MouthRoles[:]...) {
		return landmarkEstimate{}
	}
	left, _ := l.Get(perception.MouthLeft)
	right, _ := l.Get(perception.MouthRight)
	upper, _ := l.Get(perception.UpperLip)
	lower, _ := l.Get(perception.LowerLip)

	width := math.Hypot(right.X-left.X, right.Y-left.Y)
	height := math.Abs(lower.Y - upper.Y)

	centerY := (upper.Y + lower.Y) / 2
	lift := centerY - (left.Y+right.Y)/2

	var ratioTerm float64
	if height >= minMouthHeight {
		ratioTerm = (width/height - 2.5) / 2
	}

	return landmarkEstimate{
		smile:     some(clamp01(ratioTerm + lift*15)),
		mouthOpen: some(clamp01(height * 5)),
	}
}

// expressionEstimate holds intensities read from expression data.
type expressionEstimate struct {
	ok        bool
	smile     float64
	frown     float64
	browDown  float64
	browUp    float64
	eyeWide   float64
	eyeSquint float64
	jawOpen   float64
}

// estimateExpressions averages left/right pairs. An empty map yields ok=false.
func estimateExpressions(expr map[string]float64) expressionEstimate {
	if len(expr) == 0 {
		return expressionEstimate{}
	}
	get := func(name string) float64 { return clamp01(expr[name]) }
	pair := func(l, r string) float64 { return (get(l) + get(r)) / 2 }

	return expressionEstimate{
		ok:        true,
		smile:     pair(exprSmileLeft, exprSmileRight),
		frown:     pair(exprFrownLeft, exprFrownRight),
		browDown:  pair(exprBrowDownLeft, exprBrowDownRight),
		browUp:    math.Max(get(exprBrowInnerUp), pair(exprBrowOuterLeft, exprBrowOuterRight)),
		eyeWide:   pair(exprEyeWideLeft, exprEyeWideRight),
		eyeSquint: pair(exprSquintLeft, exprSquintRight),
		jawOpen:   get(exprJawOpen),
	}
}

func (e expressionEstimate) smileEstimate() estimate {
	if !e.ok {
		return estimate{}
	}
	return some(e.smile)
}

func (e expressionEstimate) mouthOpenEstimate() estimate {
	if !e.ok {
		return estimate{}
	}
	return some(e.jawOpen)
}

// maxOf returns the larger of the available estimates. The more sensitive
// estimator wins, biasing toward not missing a signal.
func maxOf(a, b estimate) float64 {
	switch {
	case a.ok && b.ok:
		return math.Max(a.value, b.value)
	case a.ok:
		return a.value
	case b.ok:
		return b.value
	default:
		return 0
	}
}

// preferred returns primary when available, else fallback.
func preferred(primary, fallback estimate) float64 {
	if primary.ok {
		return primary.value
	}
	if fallback.ok {
		return fallback.value
	}
	return 0
}
