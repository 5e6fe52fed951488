// Package protocol defines the websocket message envelope and payloads.
//
// Ingest messages flow from a capture client (browser or facecam) to the
// server: face samples, sound levels, mic audio and camera state.
// Presentation messages flow from the server to dashboards: signal frames,
// commit phase, commits, speech and haptic cues.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies a message.
type MessageType string

const (
	// Capture client → server
	TypeFace   MessageType = "face"   // Perception sample
	TypeLevel  MessageType = "level"  // Sound level measured by the client
	TypeMic    MessageType = "mic"    // Encoded microphone audio
	TypeCamera MessageType = "camera" // Camera on/off

	// Server → dashboard
	TypeSignal MessageType = "signal" // Signal frame + sound level
	TypePhase  MessageType = "phase"  // Commit machine phase
	TypeCommit MessageType = "commit" // Committed message
	TypeSpeak  MessageType = "speak"  // Speech request
	TypeHaptic MessageType = "haptic" // Vibration pattern
	TypeLog    MessageType = "log"    // Conversation log changed
	TypeStatus MessageType = "status" // Camera/mic/patient state

	// Bidirectional
	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message is the envelope for every websocket message.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(msgType MessageType, data any) (*Message, error) {
	return NewMessageAt(msgType, data, time.Now())
}

// NewMessageAt creates a message stamped with at.
func NewMessageAt(msgType MessageType, data any, at time.Time) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s data: %w", msgType, err)
		}
	}
	return &Message{Type: msgType, Timestamp: at.UnixMilli(), Data: raw}, nil
}

// ParseData unmarshals Data into v. Empty data leaves v untouched.
func (m *Message) ParseData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("parse %s data: %w", m.Type, err)
	}
	return nil
}

// Time returns the timestamp, or the zero time when unset.
func (m *Message) Time() time.Time {
	if m.Timestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.Timestamp)
}

// Bytes returns the JSON encoding.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage decodes an envelope.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Capture client → server
// =============================================================================

// PointData is a normalized 2D point.
type PointData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FaceData is one perception result. Present=false means no face.
// Landmarks are keyed by role name (see perception.Role).
type FaceData struct {
	Present     bool                 `json:"present"`
	Landmarks   map[string]PointData `json:"landmarks,omitempty"`
	Expressions map[string]float64   `json:"expressions,omitempty"`
}

// LevelData is a sound level in [0,1].
type LevelData struct {
	Level float64 `json:"level"`
}

// MicData is encoded microphone audio.
type MicData struct {
	Format     string `json:"format"` // "opus" or "pcm16"
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Data       string `json:"data"` // base64
}

// CameraData reports whether the client's camera is running.
type CameraData struct {
	Active bool `json:"active"`
}

// =============================================================================
// Server → dashboard
// =============================================================================

// SignalData carries the latest frame. Frame is a signals.Frame encoded
// by the sender.
type SignalData struct {
	Frame json.RawMessage `json:"frame"`
	Level float64         `json:"level"`
	Spike bool            `json:"spike"`
}

// PhaseData is the commit machine phase.
type PhaseData struct {
	Phase     string `json:"phase"`
	Label     string `json:"label"`
	Progress  int    `json:"progress"`
	Candidate string `json:"candidate,omitempty"`
}

// CommitData is a committed message.
type CommitData struct {
	ID       int64  `json:"id"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Source   string `json:"source"`
	Spoken   bool   `json:"spoken"`
}

// SpeakData asks the dashboard to speak. Without Audio the browser uses
// its own voice for Text.
type SpeakData struct {
	Text     string `json:"text"`
	Provider string `json:"provider,omitempty"`
	MIME     string `json:"mime,omitempty"`
	Audio    string `json:"audio,omitempty"` // base64
}

// HapticData is a vibrate/pause pattern in milliseconds.
type HapticData struct {
	Pattern []int64 `json:"pattern"`
}

// StatusData describes input state.
type StatusData struct {
	Camera  bool   `json:"camera"`
	Mic     bool   `json:"mic"`
	Patient string `json:"patient"`
}

// LogData is the conversation log after a change.
type LogData struct {
	Patient string          `json:"patient"`
	Entries json.RawMessage `json:"entries"`
}

// =============================================================================
// Bidirectional
// =============================================================================

// PingData is a health check.
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData answers a ping.
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}

// ErrorData reports a rejected message.
type ErrorData struct {
	Message string `json:"message"`
}
