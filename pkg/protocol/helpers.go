package protocol

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/teslashibe/go-intent/pkg/perception"
)

// NewFaceMessage encodes a perception sample. A nil sample or one without a
// face is sent as Present=false.
func NewFaceMessage(s *perception.Sample) (*Message, error) {
	data := FaceData{}
	at := time.Now()
	if s != nil {
		if s.TimestampMs != 0 {
			at = time.UnixMilli(s.TimestampMs)
		}
		if s.HasFace() {
			data.Present = true
			data.Expressions = s.Face.Expressions
			if len(s.Face.Landmarks) > 0 {
				data.Landmarks = make(map[string]PointData, len(s.Face.Landmarks))
				for role, p := range s.Face.Landmarks {
					data.Landmarks[string(role)] = PointData{X: p.X, Y: p.Y}
				}
			}
		}
	}
	return NewMessageAt(TypeFace, data, at)
}

// Sample converts face data into a perception sample stamped with tsMs.
func (f FaceData) Sample(tsMs int64) *perception.Sample {
	s := &perception.Sample{TimestampMs: tsMs}
	if !f.Present {
		return s
	}
	face := &perception.Face{Expressions: f.Expressions}
	if len(f.Landmarks) > 0 {
		face.Landmarks = make(perception.Landmarks, len(f.Landmarks))
		for name, p := range f.Landmarks {
			face.Landmarks[perception.Role(name)] = perception.Point{X: p.X, Y: p.Y}
		}
	}
	s.Face = face
	return s
}

// NewLevelMessage encodes a sound level.
func NewLevelMessage(level float64) (*Message, error) {
	return NewMessage(TypeLevel, LevelData{Level: level})
}

// NewMicMessage encodes audio. format is "opus" or "pcm16".
func NewMicMessage(format string, payload []byte, sampleRate, channels int) (*Message, error) {
	return NewMessage(TypeMic, MicData{
		Format:     format,
		SampleRate: sampleRate,
		Channels:   channels,
		Data:       base64.StdEncoding.EncodeToString(payload),
	})
}

// NewCameraMessage encodes camera state.
func NewCameraMessage(active bool) (*Message, error) {
	return NewMessage(TypeCamera, CameraData{Active: active})
}

// NewPingMessage creates a ping.
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Timestamp: time.Now().UnixMilli()})
}

// NewPongMessage answers ping.
func NewPongMessage(ping PingData) (*Message, error) {
	now := time.Now().UnixMilli()
	return NewMessage(TypePong, PongData{
		ID:        ping.ID,
		PingTS:    ping.Timestamp,
		PongTS:    now,
		LatencyMs: now - ping.Timestamp,
	})
}

// NewErrorMessage reports a problem to the sender.
func NewErrorMessage(format string, args ...any) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: fmt.Sprintf(format, args...)})
}

// Decode returns the raw audio bytes.
func (d MicData) Decode() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(d.Data)
	if err != nil {
		return nil, fmt.Errorf("decode mic data: %w", err)
	}
	return b, nil
}

// MillisPattern converts durations to a millisecond pattern.
func MillisPattern(pattern []time.Duration) []int64 {
	out := make([]int64, len(pattern))
	for i, d := range pattern {
		out[i] = d.Milliseconds()
	}
	return out
}
