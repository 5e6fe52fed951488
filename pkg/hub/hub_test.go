package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-intent/pkg/protocol"
)

// fakeConn blocks reads until closed and records writes.
type fakeConn struct {
	mu      sync.Mutex
	writes  chan []byte
	kinds   []int
	closed  chan struct{}
	closeMu sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{writes: make(chan []byte, 64), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(kind int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("closed")
	default:
	}
	f.mu.Lock()
	f.kinds = append(f.kinds, kind)
	f.mu.Unlock()
	if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
		f.writes <- data
	}
	return nil
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) Close() error                      { f.closeMu.Do(func() { close(f.closed) }); return nil }

func recv(t *testing.T, f *fakeConn) []byte {
	t.Helper()
	select {
	case data := <-f.writes:
		return data
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for write")
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastReachesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test", nil)
	go h.Run(ctx)

	a, b := newFakeConn(), newFakeConn()
	go NewClient(h, a).Run()
	go NewClient(h, b).Run()
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	if err := h.Publish(protocol.TypeCommit, protocol.CommitData{Message: "Yes"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, c := range []*fakeConn{a, b} {
		msg, err := protocol.ParseMessage(recv(t, c))
		if err != nil {
			t.Fatalf("ParseMessage: %v", err)
		}
		var cd protocol.CommitData
		msg.ParseData(&cd)
		if msg.Type != protocol.TypeCommit || cd.Message != "Yes" {
			t.Errorf("got %s %+v", msg.Type, cd)
		}
	}
}

func TestWelcomeSentFirst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test", nil)
	h.OnConnect(func() []Message { return []Message{NewText([]byte(`{"type":"status"}`))} })
	go h.Run(ctx)

	c := newFakeConn()
	go NewClient(h, c).Run()

	if got := string(recv(t, c)); got != `{"type":"status"}` {
		t.Errorf("first message = %s", got)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test", nil)
	go h.Run(ctx)

	c := newFakeConn()
	go NewClient(h, c).Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	c.Close()
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestStopDisconnectsClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("test", nil)
	go h.Run(ctx)

	c := newFakeConn()
	go NewClient(h, c).Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	waitFor(t, func() bool { return !h.IsRunning() })
	select {
	case <-c.closed:
	case <-time.After(time.Second):
		t.Fatal("client connection should close when the hub stops")
	}

	late := NewClient(h, newFakeConn())
	if _, ok := <-late.send; ok {
		t.Error("client registered after stop should start closed")
	}
}

func TestBinaryKind(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test", nil)
	go h.Run(ctx)
	c := newFakeConn()
	go NewClient(h, c).Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	h.Broadcast(NewBinary([]byte{1, 2}))
	recv(t, c)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kinds[len(c.kinds)-1] != websocket.BinaryMessage {
		t.Errorf("kind = %d, want binary", c.kinds[len(c.kinds)-1])
	}
}
