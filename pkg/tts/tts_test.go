package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want error
	}{
		{"missing key", nil, ErrNoAPIKey},
		{"speed too low", []Option{WithAPIKey("k"), WithSpeed(0.1)}, ErrInvalidSpeed},
		{"speed too high", []Option{WithAPIKey("k"), WithSpeed(5)}, ErrInvalidSpeed},
		{"ok", []Option{WithAPIKey("k")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Apply(tt.opts...)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOpenAISynthesize(t *testing.T) {
	var got speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte("ID3-audio"))
	}))
	defer srv.Close()

	p, err := NewOpenAI(WithAPIKey("test-key"), WithBaseURL(srv.URL), WithVoice(VoiceNova))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	defer p.Close()

	res, err := p.Synthesize(context.Background(), "  Feeling happy ")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(res.Audio) != "ID3-audio" || res.Format != EncodingMP3 {
		t.Errorf("result = %+v", res)
	}
	if got.Input != "Feeling happy" || got.Voice != VoiceNova || got.Model != ModelTTS1 || got.ResponseFormat != "mp3" {
		t.Errorf("request = %+v", got)
	}
}

func TestOpenAIRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p, _ := NewOpenAI(WithAPIKey("k"), WithBaseURL(srv.URL), WithRetry(2, time.Millisecond))
	if _, err := p.Synthesize(context.Background(), "Yes"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestOpenAIUnauthorizedNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	p, _ := NewOpenAI(WithAPIKey("k"), WithBaseURL(srv.URL), WithRetry(3, time.Millisecond))
	_, err := p.Synthesize(context.Background(), "Yes")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if !apiErr.IsUnauthorized() || apiErr.Code != "invalid_api_key" || apiErr.Message != "bad key" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestOpenAIEmptyText(t *testing.T) {
	p, _ := NewOpenAI(WithAPIKey("k"))
	if _, err := p.Synthesize(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("err = %v, want ErrEmptyText", err)
	}
}

func TestMockRecordsCalls(t *testing.T) {
	m := NewMock()
	m.Synthesize(context.Background(), "Yes")
	m.Synthesize(context.Background(), "No")
	m.Close()

	if got := m.Spoken(); len(got) != 2 || got[0] != "Yes" || got[1] != "No" {
		t.Errorf("spoken = %v, want [Yes No]", got)
	}
	if !m.Closed() {
		t.Error("mock should be closed")
	}
}

func TestMockWithLatencyCancels(t *testing.T) {
	m := WithLatency(NewMock(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Synthesize(ctx, "Yes"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWrapError(t *testing.T) {
	if WrapError("x", nil) != nil {
		t.Error("nil should stay nil")
	}
	err := WrapError("openai", ErrEmptyText)
	if !errors.Is(err, ErrEmptyText) {
		t.Error("wrapped error should unwrap")
	}
}

func TestEncodingMIMEType(t *testing.T) {
	if EncodingMP3.MIMEType() != "audio/mpeg" || EncodingOpus.MIMEType() != "audio/ogg" {
		t.Error("unexpected MIME types")
	}
}
