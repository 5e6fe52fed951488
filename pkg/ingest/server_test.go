package ingest

import (
	"context"
	"encoding/binary"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-intent/pkg/audioio"
	"github.com/teslashibe/go-intent/pkg/perception"
	"github.com/teslashibe/go-intent/pkg/protocol"
)

var t0 = time.Unix(1700000000, 0)

type recordingLevels struct {
	mu     sync.Mutex
	levels []float64
	chunks []audioio.Chunk
	resets int
}

func (r *recordingLevels) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
}

func (r *recordingLevels) resetCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resets
}

func (r *recordingLevels) Set(level float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, level)
}

func (r *recordingLevels) Push(c audioio.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, c)
}

func (r *recordingLevels) count() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.levels), len(r.chunks)
}

func mustBytes(t *testing.T, msg *protocol.Message, err error) []byte {
	t.Helper()
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	data, err := msg.Bytes()
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	return data
}

func TestHandleFaceFeedsBuffer(t *testing.T) {
	buf := perception.NewBuffer(time.Second)
	s := NewServer(Config{Samples: buf})

	sample := &perception.Sample{
		TimestampMs: t0.UnixMilli(),
		Face: &perception.Face{
			Landmarks: perception.Landmarks{perception.NoseTip: {X: 0.5, Y: 0.4}},
		},
	}
	msg, err := protocol.NewFaceMessage(sample)
	if _, err := s.HandleMessage(nil, mustBytes(t, msg, err), t0); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	got, err := buf.Sample(context.Background(), t0)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if !got.HasFace() {
		t.Fatal("expected a face")
	}
	if p := got.Face.Landmarks[perception.NoseTip]; p.Y != 0.4 {
		t.Errorf("nose = %+v", p)
	}
	if got.TimestampMs != t0.UnixMilli() {
		t.Errorf("timestamp = %d, want %d", got.TimestampMs, t0.UnixMilli())
	}
	if s.Stats().Samples != 1 {
		t.Errorf("samples = %d, want 1", s.Stats().Samples)
	}
}

func TestHandleLevelAndMic(t *testing.T) {
	levels := &recordingLevels{}
	s := NewServer(Config{Levels: levels})

	msg, err := protocol.NewLevelMessage(0.6)
	if _, err := s.HandleMessage(nil, mustBytes(t, msg, err), t0); err != nil {
		t.Fatalf("level: %v", err)
	}

	pcm := make([]byte, 960*2)
	for i := 0; i < 960; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(8000))
	}
	msg, err = protocol.NewMicMessage("pcm16", pcm, 48000, 1)
	if _, err := s.HandleMessage(nil, mustBytes(t, msg, err), t0); err != nil {
		t.Fatalf("mic: %v", err)
	}

	nl, nc := levels.count()
	if nl != 1 || nc != 1 {
		t.Fatalf("levels=%d chunks=%d, want 1 and 1", nl, nc)
	}
	if got := len(levels.chunks[0].Samples); got != 960 {
		t.Errorf("chunk samples = %d, want 960", got)
	}
}

func TestHandleRejects(t *testing.T) {
	s := NewServer(Config{})

	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("nope")},
		{"no type", []byte(`{"ts":1}`)},
		{"unknown type", []byte(`{"type":"motor"}`)},
		{"bad mic format", []byte(`{"type":"mic","data":{"format":"flac","data":""}}`)},
		{"opus without session", []byte(`{"type":"mic","data":{"format":"opus","data":"AAAA"}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.HandleMessage(nil, tt.data, t0); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestHandleCamera(t *testing.T) {
	var got []bool
	s := NewServer(Config{OnCamera: func(active bool) { got = append(got, active) }})

	for _, active := range []bool{false, true} {
		msg, err := protocol.NewCameraMessage(active)
		if _, err := s.HandleMessage(nil, mustBytes(t, msg, err), t0); err != nil {
			t.Fatalf("camera: %v", err)
		}
	}
	if len(got) != 2 || got[0] || !got[1] {
		t.Errorf("camera callbacks = %v, want [false true]", got)
	}
}

func TestHandlePingReplies(t *testing.T) {
	s := NewServer(Config{})
	msg, err := protocol.NewPingMessage("p-1")
	reply, err := s.HandleMessage(nil, mustBytes(t, msg, err), t0)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if reply == nil || reply.Type != protocol.TypePong {
		t.Fatalf("reply = %+v, want pong", reply)
	}
	var pong protocol.PongData
	if err := reply.ParseData(&pong); err != nil {
		t.Fatal(err)
	}
	if pong.ID != "p-1" {
		t.Errorf("pong id = %q", pong.ID)
	}
}

func startApp(t *testing.T, s *Server, addr string) {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	s.RegisterRoutes(app)
	go app.Listen(addr)
	t.Cleanup(func() { app.Shutdown() })
	time.Sleep(100 * time.Millisecond)
}

func TestSocketIngest(t *testing.T) {
	buf := perception.NewBuffer(time.Second)
	levels := &recordingLevels{}
	s := NewServer(Config{Samples: buf, Levels: levels})
	startApp(t, s, ":18190")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	d, err := Dial(ctx, "ws://localhost:18190/ws/ingest/cam-1", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer d.Close()

	time.Sleep(50 * time.Millisecond)
	if s.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", s.ClientCount())
	}
	if infos := s.Clients(); len(infos) != 1 || infos[0].ID != "cam-1" {
		t.Errorf("Clients = %+v", infos)
	}

	sample := &perception.Sample{Face: &perception.Face{
		Expressions: map[string]float64{"mouthSmileLeft": 0.4, "mouthSmileRight": 0.4},
	}}
	if err := d.SendSample(sample); err != nil {
		t.Fatalf("SendSample: %v", err)
	}
	if err := d.SendLevel(0.3); err != nil {
		t.Fatalf("SendLevel: %v", err)
	}
	if err := d.Ping("x"); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	pong := make(chan *protocol.Message, 1)
	go d.Listen(ctx, func(m *protocol.Message) {
		if m.Type == protocol.TypePong {
			select {
			case pong <- m:
			default:
			}
		}
	})

	select {
	case <-pong:
	case <-ctx.Done():
		t.Fatal("no pong")
	}

	got, err := buf.Sample(context.Background(), time.Now())
	if err != nil || !got.HasFace() {
		t.Fatalf("buffer sample = %+v, %v", got, err)
	}
	if nl, _ := levels.count(); nl != 1 {
		t.Errorf("levels = %d, want 1", nl)
	}
	if levels.resetCount() != 0 {
		t.Errorf("level reset while a client is connected")
	}

	// The last client leaving drops the level to silence.
	d.Close()
	time.Sleep(100 * time.Millisecond)
	if levels.resetCount() != 1 {
		t.Errorf("resets after last disconnect = %d, want 1", levels.resetCount())
	}
}

func TestSocketGeneratesID(t *testing.T) {
	s := NewServer(Config{})
	startApp(t, s, ":18191")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18191/ws/ingest", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	infos := s.Clients()
	if len(infos) != 1 || len(infos[0].ID) != 36 {
		t.Errorf("expected one client with a uuid id, got %+v", infos)
	}

	// A rejected message gets an error reply and keeps the connection.
	ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"motor"}`))
	ws.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil || msg.Type != protocol.TypeError {
		t.Errorf("reply = %s, want error message", data)
	}

	ws.Close()
	time.Sleep(100 * time.Millisecond)
	if s.ClientCount() != 0 {
		t.Errorf("ClientCount = %d after close, want 0", s.ClientCount())
	}
	if s.Stats().Rejected != 1 {
		t.Errorf("rejected = %d, want 1", s.Stats().Rejected)
	}
}

func TestUpgradeRequired(t *testing.T) {
	s := NewServer(Config{})
	app := fiber.New()
	s.RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/ws/ingest", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}
