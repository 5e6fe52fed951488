// Package hub fans presentation messages out to dashboard websocket
// clients with one channel per client.
package hub

import "github.com/teslashibe/go-intent/pkg/protocol"

// Kind is the websocket frame kind.
type Kind int

const (
	Text Kind = iota
	Binary
)

// Message is one encoded frame to broadcast.
type Message struct {
	Kind Kind
	Data []byte
}

// NewText wraps pre-encoded JSON.
func NewText(data []byte) Message {
	return Message{Kind: Text, Data: data}
}

// NewBinary wraps binary data.
func NewBinary(data []byte) Message {
	return Message{Kind: Binary, Data: data}
}

// Encode wraps a protocol envelope.
func Encode(m *protocol.Message) (Message, error) {
	data, err := m.Bytes()
	if err != nil {
		return Message{}, err
	}
	return NewText(data), nil
}
