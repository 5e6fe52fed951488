package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-intent/pkg/protocol"
)

// Hub tracks connected clients and broadcasts to them. All client set
// changes happen on the Run goroutine.
type Hub struct {
	name   string
	logger *slog.Logger

	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.RWMutex
	count   int
	running atomic.Bool
	dropped atomic.Int64

	// welcome, when set, produces the messages queued for every new client
	// before any broadcast.
	welcome func() []Message
}

// New creates a hub.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// OnConnect sets the welcome producer. Call before Run.
func (h *Hub) OnConnect(fn func() []Message) {
	h.welcome = fn
}

// Run serves register, unregister and broadcast until ctx is done, then
// disconnects every client. Run may be called once.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			if h.welcome != nil {
				for _, m := range h.welcome() {
					select {
					case c.send <- m:
					default:
					}
				}
			}
			h.setCount()
			h.logger.Info("client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.setCount()
				h.logger.Info("client disconnected", "clients", len(h.clients))
			}

		case m := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- m:
				default:
					h.drop(c)
					h.setCount()
					h.logger.Warn("dropped slow client")
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}

// Broadcast queues m for every client. Never blocks; a full queue drops m.
func (h *Hub) Broadcast(m Message) {
	select {
	case h.broadcast <- m:
	default:
		h.dropped.Add(1)
		h.logger.Debug("broadcast queue full, dropping message")
	}
}

// Publish encodes a protocol message and broadcasts it.
func (h *Hub) Publish(t protocol.MessageType, data any) error {
	msg, err := protocol.NewMessage(t, data)
	if err != nil {
		return err
	}
	m, err := Encode(msg)
	if err != nil {
		return err
	}
	h.Broadcast(m)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Dropped returns how many broadcasts were discarded.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
