package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-intent/pkg/convlog"
	"github.com/teslashibe/go-intent/pkg/engine"
	"github.com/teslashibe/go-intent/pkg/output"
	"github.com/teslashibe/go-intent/pkg/protocol"
)

var t0 = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type published struct {
	Type protocol.MessageType
	Data any
}

type silentSpeaker struct{}

func (silentSpeaker) Speak(string) {}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (r *recordingPublisher) Publish(t protocol.MessageType, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, published{t, data})
	return nil
}

func (r *recordingPublisher) count(t protocol.MessageType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.Type == t {
			n++
		}
	}
	return n
}

type fakeDocs struct {
	connected bool
	exported  []convlog.Export
	err       error
}

func (f *fakeDocs) Status() convlog.GoogleDocsStatus {
	if f.connected {
		return convlog.GoogleDocsStatus{Connected: true}
	}
	return convlog.GoogleDocsStatus{AuthURL: "https://accounts.example/auth"}
}

func (f *fakeDocs) HandleCallback(_ context.Context, state, code string) error {
	if state != "intent-export" || code == "" {
		return errors.New("bad callback")
	}
	f.connected = true
	return nil
}

func (f *fakeDocs) Export(_ context.Context, x convlog.Export) (string, error) {
	if !f.connected {
		return "", convlog.ErrNotAuthenticated
	}
	if f.err != nil {
		return "", f.err
	}
	f.exported = append(f.exported, x)
	return "doc-123", nil
}

func (f *fakeDocs) Disconnect() error {
	f.connected = false
	return nil
}

type fixture struct {
	srv   *Server
	log   *convlog.Log
	store *convlog.MemoryStore
	eng   *engine.Engine
	pub   *recordingPublisher
	docs  *fakeDocs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := convlog.NewMemoryStore()
	l, err := convlog.New(store, "p1")
	if err != nil {
		t.Fatal(err)
	}
	pub := &recordingPublisher{}
	pres := NewPresenter(pub, l, 0, nil)
	coord := output.NewCoordinator(output.Config{Display: pres, Speaker: silentSpeaker{}, Haptics: pres, Recorder: l})
	eng := engine.New(engine.DefaultConfig(), engine.Deps{Output: coord, Presenter: pres})
	docs := &fakeDocs{}

	srv := NewServer(Config{}, Deps{Engine: eng, Log: l, Presenter: pres, Docs: docs})
	srv.now = func() time.Time { return t0 }
	return &fixture{srv: srv, log: l, store: store, eng: eng, pub: pub, docs: docs}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.srv.App().Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, "GET", "/api/status", "")
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var st StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if st.Patient != "p1" || !st.Camera || !st.Mic {
		t.Errorf("status = %+v", st)
	}
	if st.GoogleDoc == nil || *st.GoogleDoc {
		t.Errorf("google docs should be reported disconnected")
	}
}

func TestPostMessageLogsAndBroadcasts(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "POST", "/api/messages", `{"message":"I need water","category":"need"}`)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var mr MessageResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		t.Fatal(err)
	}
	if mr.Entry.Message != "I need water" || mr.Entry.Category != "need" || !mr.Spoken {
		t.Errorf("response = %+v", mr)
	}

	if f.log.Len() != 1 {
		t.Fatalf("log len = %d, want 1", f.log.Len())
	}
	if f.pub.count(protocol.TypeCommit) != 1 || f.pub.count(protocol.TypeHaptic) != 1 {
		t.Errorf("expected one commit and one haptic broadcast, got %+v", f.pub.msgs)
	}
	if f.pub.count(protocol.TypeLog) == 0 {
		t.Error("log update not broadcast")
	}
	if f.eng.State().Locked {
		t.Error("manual message must not lock the commit machine")
	}
}

func TestPostMessageValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body string
	}{
		{"empty", `{"message":"  "}`},
		{"bad category", `{"message":"hi","category":"urgent"}`},
		{"not json", `nope`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := f.do(t, "POST", "/api/messages", tt.body)
			if resp.StatusCode != 400 {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
	if f.log.Len() != 0 {
		t.Errorf("rejected messages were logged")
	}
}

func TestPostMessagePersistenceWarning(t *testing.T) {
	f := newFixture(t)
	f.store.SaveErr = errors.New("disk full")

	resp, body := f.do(t, "POST", "/api/messages", `{"message":"Thank you","category":"mood"}`)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var mr MessageResponse
	json.Unmarshal(body, &mr)
	if !strings.Contains(mr.Warning, "disk full") {
		t.Errorf("warning = %q", mr.Warning)
	}
	if f.log.Len() != 1 {
		t.Error("in-memory log should keep the entry")
	}
}

func TestLogGetClearExport(t *testing.T) {
	f := newFixture(t)
	f.log.Append("Yes", "signal", t0)
	f.log.Append("Feeling happy", "signal", t0.Add(time.Second))

	_, body := f.do(t, "GET", "/api/log", "")
	var lr LogResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		t.Fatal(err)
	}
	if len(lr.Entries) != 2 || lr.Entries[0].Message != "Feeling happy" {
		t.Errorf("log should be newest first: %+v", lr.Entries)
	}

	resp, body := f.do(t, "GET", "/api/log/export", "")
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "conversation-p1-20260301-093000.json") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	var x convlog.Export
	if err := json.Unmarshal(body, &x); err != nil {
		t.Fatal(err)
	}
	if x.Patient != "p1" || len(x.Entries) != 2 || x.ExportedAt != "2026-03-01T09:30:00.000Z" {
		t.Errorf("export = %+v", x)
	}

	resp, body = f.do(t, "GET", "/api/log/export?format=text", "")
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		t.Errorf("content type = %q", resp.Header.Get("Content-Type"))
	}
	if strings.Index(string(body), "Yes") > strings.Index(string(body), "Feeling happy") {
		t.Errorf("text export should list oldest first:\n%s", body)
	}

	_, body = f.do(t, "DELETE", "/api/log", "")
	json.Unmarshal(body, &lr)
	if len(lr.Entries) != 0 || f.log.Len() != 0 {
		t.Errorf("log not cleared: %+v", lr)
	}
}

func TestSwitchPatient(t *testing.T) {
	f := newFixture(t)
	f.log.Append("Yes", "signal", t0)

	_, body := f.do(t, "POST", "/api/patient", `{"id":"p2"}`)
	var lr LogResponse
	json.Unmarshal(body, &lr)
	if lr.Patient != "p2" || len(lr.Entries) != 0 {
		t.Errorf("after switch = %+v", lr)
	}

	_, body = f.do(t, "POST", "/api/patient", `{"id":"p1"}`)
	json.Unmarshal(body, &lr)
	if len(lr.Entries) != 1 {
		t.Errorf("p1 log should be restored, got %+v", lr)
	}

	resp, _ := f.do(t, "POST", "/api/patient", `{"id":""}`)
	if resp.StatusCode != 400 {
		t.Errorf("empty id status = %d", resp.StatusCode)
	}
}

func TestInputControls(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		path   string
		camera bool
		mic    bool
	}{
		{"/api/camera/stop", false, true},
		{"/api/mic/stop", false, false},
		{"/api/camera/start", true, false},
		{"/api/mic/start", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := f.do(t, "POST", tt.path, "")
			if resp.StatusCode != 200 {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			var snap engine.Snapshot
			json.Unmarshal(body, &snap)
			if snap.Camera != tt.camera || snap.Mic != tt.mic {
				t.Errorf("snapshot camera=%v mic=%v", snap.Camera, snap.Mic)
			}
			camera, mic := f.eng.Inputs()
			if camera != tt.camera || mic != tt.mic {
				t.Errorf("engine camera=%v mic=%v", camera, mic)
			}
		})
	}

	if f.pub.count(protocol.TypeStatus) < 4 {
		t.Errorf("status changes not broadcast: %d", f.pub.count(protocol.TypeStatus))
	}

	resp, _ := f.do(t, "POST", "/api/camera/toggle", "")
	if resp.StatusCode != 404 {
		t.Errorf("unknown action status = %d", resp.StatusCode)
	}
}

func TestGoogleDocsFlow(t *testing.T) {
	f := newFixture(t)
	f.log.Append("Yes", "signal", t0)

	resp, _ := f.do(t, "POST", "/api/gdocs/export", "")
	if resp.StatusCode != 401 {
		t.Errorf("export before auth status = %d, want 401", resp.StatusCode)
	}

	resp, _ = f.do(t, "GET", "/api/gdocs/auth", "")
	if resp.StatusCode != 307 || resp.Header.Get("Location") != "https://accounts.example/auth" {
		t.Errorf("auth redirect = %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, _ = f.do(t, "GET", "/api/gdocs/callback?state=wrong&code=abc", "")
	if resp.StatusCode != 400 {
		t.Errorf("bad callback status = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, "GET", "/api/gdocs/callback?state=intent-export&code=abc", "")
	if resp.StatusCode != 302 {
		t.Errorf("callback status = %d, want redirect", resp.StatusCode)
	}

	resp, body := f.do(t, "POST", "/api/gdocs/export", "")
	if resp.StatusCode != 200 || !strings.Contains(string(body), "doc-123") {
		t.Fatalf("export = %d %s", resp.StatusCode, body)
	}
	if len(f.docs.exported) != 1 || len(f.docs.exported[0].Entries) != 1 {
		t.Errorf("exported = %+v", f.docs.exported)
	}

	f.do(t, "DELETE", "/api/gdocs", "")
	_, body = f.do(t, "GET", "/api/gdocs/status", "")
	if !strings.Contains(string(body), `"connected":false`) {
		t.Errorf("status after disconnect = %s", body)
	}
}

func TestDocsNotConfigured(t *testing.T) {
	f := newFixture(t)
	f.srv = NewServer(Config{}, Deps{Engine: f.eng, Log: f.log})

	resp, _ := f.do(t, "POST", "/api/gdocs/export", "")
	if resp.StatusCode != 503 {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	_, body := f.do(t, "GET", "/api/gdocs/status", "")
	if !strings.Contains(string(body), `"configured":false`) {
		t.Errorf("status = %s", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, "POST", "/api/messages", `{"message":"Hello"}`)

	resp, body := f.do(t, "GET", "/metrics", "")
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "intent_commits_total") {
		t.Errorf("metrics output missing commits counter")
	}
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, "GET", "/ws/status", "")
	if resp.StatusCode != 426 {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}
