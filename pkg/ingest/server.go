// Package ingest receives perception samples, sound levels and microphone
// audio from capture clients over a websocket and feeds them to the
// engine's inputs.
package ingest

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-intent/pkg/audioio"
	"github.com/teslashibe/go-intent/pkg/metrics"
	"github.com/teslashibe/go-intent/pkg/perception"
	"github.com/teslashibe/go-intent/pkg/protocol"
)

// SampleSink accepts perception samples. *perception.Buffer satisfies it.
type SampleSink interface {
	Push(s *perception.Sample, at time.Time)
}

// LevelSink accepts sound levels and decoded audio. *audioio.Meter
// satisfies it.
type LevelSink interface {
	Set(level float64)
	Push(c audioio.Chunk)
	Reset()
}

// Config wires the server to its sinks. Nil sinks drop their messages.
type Config struct {
	Samples SampleSink
	Levels  LevelSink
	Logger  *slog.Logger

	// OnCamera is called when a client reports its camera starting or
	// stopping.
	OnCamera func(active bool)
}

// Client is one connected capture client.
type Client struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu      sync.Mutex
	decoder *audioio.OpusDecoder
}

// Send writes msg to the client.
func (c *Client) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) touch(now time.Time) {
	c.mu.Lock()
	c.LastSeen = now
	c.mu.Unlock()
}

// Server manages capture client connections.
type Server struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client

	received atomic.Uint64
	rejected atomic.Uint64
	samples  atomic.Uint64
}

// NewServer creates an ingest server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		logger:  logger.With("component", "ingest"),
		clients: make(map[string]*Client),
	}
}

// RegisterRoutes mounts the ingest socket at /ws/ingest and /ws/ingest/:id.
func (s *Server) RegisterRoutes(router fiber.Router) {
	router.Use("/ws/ingest", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws/ingest", websocket.New(s.handleClient))
	router.Get("/ws/ingest/:id", websocket.New(s.handleClient))
}

func (s *Server) handleClient(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now()
	client := &Client{ID: id, Conn: c, Connected: now, LastSeen: now}

	s.mu.Lock()
	if old, ok := s.clients[id]; ok {
		old.Conn.Close()
	}
	s.clients[id] = client
	n := len(s.clients)
	s.mu.Unlock()
	metrics.IngestClients.Set(float64(n))
	s.logger.Info("client connected", "client", id, "clients", n)

	defer func() {
		s.mu.Lock()
		if s.clients[id] == client {
			delete(s.clients, id)
		}
		n := len(s.clients)
		s.mu.Unlock()
		metrics.IngestClients.Set(float64(n))
		s.logger.Info("client disconnected", "client", id, "clients", n)
		if n == 0 {
			s.silence()
		}
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			s.logger.Debug("read ended", "client", id, "error", err)
			return
		}
		received := time.Now()
		client.touch(received)
		s.received.Add(1)

		reply, err := s.HandleMessage(client, data, received)
		if err != nil {
			s.rejected.Add(1)
			s.logger.Debug("rejected message", "client", id, "error", err)
			reply, _ = protocol.NewErrorMessage("%v", err)
		}
		if reply != nil {
			if err := client.Send(reply); err != nil {
				s.logger.Debug("reply failed", "client", id, "error", err)
				return
			}
		}
	}
}

// HandleMessage applies one raw message received at now. It returns the
// reply to send, if any. client may be nil for out-of-band feeds; mic audio
// then cannot be decoded.
func (s *Server) HandleMessage(client *Client, data []byte, now time.Time) (*protocol.Message, error) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		metrics.IngestMessages.WithLabelValues("invalid").Inc()
		return nil, err
	}
	metrics.IngestMessages.WithLabelValues(string(msg.Type)).Inc()

	switch msg.Type {
	case protocol.TypeFace:
		var face protocol.FaceData
		if err := msg.ParseData(&face); err != nil {
			return nil, err
		}
		s.samples.Add(1)
		if s.cfg.Samples != nil {
			ts := msg.Timestamp
			if ts == 0 {
				ts = now.UnixMilli()
			}
			s.cfg.Samples.Push(face.Sample(ts), now)
		}

	case protocol.TypeLevel:
		var lvl protocol.LevelData
		if err := msg.ParseData(&lvl); err != nil {
			return nil, err
		}
		if s.cfg.Levels != nil {
			s.cfg.Levels.Set(lvl.Level)
		}

	case protocol.TypeMic:
		var mic protocol.MicData
		if err := msg.ParseData(&mic); err != nil {
			return nil, err
		}
		chunk, err := s.decodeMic(client, mic)
		if err != nil {
			return nil, err
		}
		if s.cfg.Levels != nil {
			s.cfg.Levels.Push(chunk)
		}

	case protocol.TypeCamera:
		var cam protocol.CameraData
		if err := msg.ParseData(&cam); err != nil {
			return nil, err
		}
		if s.cfg.OnCamera != nil {
			s.cfg.OnCamera(cam.Active)
		}

	case protocol.TypePing:
		var ping protocol.PingData
		if err := msg.ParseData(&ping); err != nil {
			return nil, err
		}
		if ping.Timestamp == 0 {
			ping.Timestamp = msg.Timestamp
		}
		return protocol.NewPongMessage(ping)

	case protocol.TypePong:

	default:
		return nil, fmt.Errorf("unsupported message type %q", msg.Type)
	}
	return nil, nil
}

func (s *Server) decodeMic(client *Client, mic protocol.MicData) (audioio.Chunk, error) {
	payload, err := mic.Decode()
	if err != nil {
		return audioio.Chunk{}, err
	}
	rate, ch := mic.SampleRate, mic.Channels
	if rate == 0 {
		rate = 48000
	}
	if ch == 0 {
		ch = 1
	}

	switch mic.Format {
	case "pcm16", "":
		var c audioio.Chunk
		c.FromBytes(payload, rate, ch)
		return c, nil

	case "opus":
		if client == nil {
			return audioio.Chunk{}, fmt.Errorf("opus audio needs a client session")
		}
		client.mu.Lock()
		defer client.mu.Unlock()
		if client.decoder == nil {
			dec, err := audioio.NewOpusDecoder(rate, ch)
			if err != nil {
				return audioio.Chunk{}, err
			}
			client.decoder = dec
		}
		return client.decoder.Decode(payload)

	default:
		return audioio.Chunk{}, fmt.Errorf("unsupported mic format %q", mic.Format)
	}
}

// silence drops the sound level once no capture client is left.
func (s *Server) silence() {
	if s.cfg.Levels != nil {
		s.cfg.Levels.Reset()
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Stats contains ingest counters.
type Stats struct {
	Clients  int    `json:"clients"`
	Received uint64 `json:"received"`
	Rejected uint64 `json:"rejected"`
	Samples  uint64 `json:"samples"`
}

// Stats returns ingest counters.
func (s *Server) Stats() Stats {
	return Stats{
		Clients:  s.ClientCount(),
		Received: s.received.Load(),
		Rejected: s.rejected.Load(),
		Samples:  s.samples.Load(),
	}
}

// ClientInfo describes a connected client.
type ClientInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// Clients lists connected clients.
func (s *Server) Clients() []ClientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		c.mu.Lock()
		infos = append(infos, ClientInfo{ID: c.ID, Connected: c.Connected, LastSeen: c.LastSeen})
		c.mu.Unlock()
	}
	return infos
}
