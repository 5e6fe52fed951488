// Package perception defines face perception samples and the sources that
// produce them.
//
// A source hands the engine at most one face per frame as a set of
// normalized landmark points addressed by semantic role, plus optional named
// expression intensities in [0,1]. Detection backends (YuNet via gocv in
// package detection, a browser-side face landmarker pushing samples over the
// ingest socket) are interchangeable behind Source.
package perception

import (
	"context"
	"math"
	"time"
)

// Point is a landmark position normalized to [0,1] in frame coordinates.
// Y grows downward.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both coordinates are finite.
func (p Point) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Role names a semantic landmark position.
type Role string

const (
	MouthLeft  Role = "mouth_left"
	MouthRight Role = "mouth_right"
	UpperLip   Role = "upper_lip"
	LowerLip   Role = "lower_lip"
	NoseTip    Role = "nose_tip"
	LeftEye    Role = "left_eye"
	RightEye   Role = "right_eye"
)

// MouthRoles are the four roles the landmark mouth estimator needs.
var MouthRoles = [...]Role{MouthLeft, MouthRight, UpperLip, LowerLip}

// Landmarks maps roles to points. A detector fills the roles it can see.
type Landmarks map[Role]Point

// Get returns the point for role and whether it is present and finite.
func (l Landmarks) Get(role Role) (Point, bool) {
	p, ok := l[role]
	if !ok || !p.Valid() {
		return Point{}, false
	}
	return p, true
}

// Has reports whether every role is present and finite.
func (l Landmarks) Has(roles ...Role) bool {
	for _, r := range roles {
		if _, ok := l.Get(r); !ok {
			return false
		}
	}
	return true
}

// Face is a single detected face.
type Face struct {
	Landmarks   Landmarks          `json:"landmarks,omitempty"`
	Expressions map[string]float64 `json:"expressions,omitempty"`
}

// Sample is the result of perceiving one frame. Face is nil when no face
// was detected.
type Sample struct {
	Face        *Face `json:"face,omitempty"`
	TimestampMs int64 `json:"ts"`
}

// HasFace reports whether s carries a detected face.
func (s *Sample) HasFace() bool {
	return s != nil && s.Face != nil
}

// Frame is an encoded video frame handed to a Detector.
type Frame struct {
	Data   []byte // JPEG
	Width  int
	Height int
}

// Detector turns one frame into a sample.
type Detector interface {
	Detect(frame Frame, timestampMs int64) (*Sample, error)
	Close() error
}

// FrameSource yields camera frames.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Source is what the engine polls once per evaluation tick.
type Source interface {
	Sample(ctx context.Context, now time.Time) (*Sample, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, now time.Time) (*Sample, error)

// Sample calls f.
func (f SourceFunc) Sample(ctx context.Context, now time.Time) (*Sample, error) {
	return f(ctx, now)
}
