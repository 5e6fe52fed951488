package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-intent/pkg/perception"
	"github.com/teslashibe/go-intent/pkg/protocol"
)

// Dialer is a capture-side connection to the ingest socket, used by
// facecam and by tests.
type Dialer struct {
	url    string
	logger *slog.Logger

	conn *websocket.Conn
	mu   sync.Mutex
}

// Dial connects to url, e.g. ws://host:8080/ws/ingest/cam-1.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Dialer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ingest: dial %s: %w", url, err)
	}
	return &Dialer{
		url:    url,
		conn:   conn,
		logger: logger.With("component", "ingest.client"),
	}, nil
}

// Send writes one message.
func (d *Dialer) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return d.conn.WriteMessage(websocket.TextMessage, data)
}

// SendSample sends a perception sample.
func (d *Dialer) SendSample(s *perception.Sample) error {
	msg, err := protocol.NewFaceMessage(s)
	if err != nil {
		return err
	}
	return d.Send(msg)
}

// SendLevel sends a sound level.
func (d *Dialer) SendLevel(level float64) error {
	msg, err := protocol.NewLevelMessage(level)
	if err != nil {
		return err
	}
	return d.Send(msg)
}

// SendCamera reports camera state.
func (d *Dialer) SendCamera(active bool) error {
	msg, err := protocol.NewCameraMessage(active)
	if err != nil {
		return err
	}
	return d.Send(msg)
}

// Ping sends a ping; the pong arrives through Listen.
func (d *Dialer) Ping(id string) error {
	msg, err := protocol.NewPingMessage(id)
	if err != nil {
		return err
	}
	return d.Send(msg)
}

// Listen reads server messages until ctx is done or the connection fails.
func (d *Dialer) Listen(ctx context.Context, fn func(*protocol.Message)) error {
	go func() {
		<-ctx.Done()
		d.conn.Close()
	}()
	for {
		_, data, err := d.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			d.logger.Debug("bad server message", "error", err)
			continue
		}
		fn(msg)
	}
}

// Close sends a close frame and closes the connection.
func (d *Dialer) Close() error {
	d.mu.Lock()
	d.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	d.mu.Unlock()
	return d.conn.Close()
}
