// Package speech implements the speech sink: Speak returns immediately,
// cancels whatever utterance is still pending and hands the text to the
// dashboard, optionally with server-synthesized audio.
package speech

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-intent/pkg/protocol"
	"github.com/teslashibe/go-intent/pkg/tts"
)

// Publisher delivers presentation messages. *hub.Hub satisfies it.
type Publisher interface {
	Publish(t protocol.MessageType, data any) error
}

// Speaker is the speech sink. Safe for concurrent use.
type Speaker struct {
	pub      Publisher
	provider tts.Provider
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Speaker.
type Option func(*Speaker)

// WithProvider synthesizes audio server-side. Without one the browser's
// own voice speaks the text.
func WithProvider(p tts.Provider) Option {
	return func(s *Speaker) { s.provider = p }
}

// WithTimeout bounds one synthesis.
func WithTimeout(d time.Duration) Option {
	return func(s *Speaker) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Speaker) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a speaker publishing to pub.
func New(pub Publisher, opts ...Option) *Speaker {
	s := &Speaker{
		pub:     pub,
		timeout: 10 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "speech")
	return s
}

// Speak cancels any pending utterance and starts text. It never blocks on
// synthesis.
func (s *Speaker) Speak(text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
	seq := s.seq

	if s.provider == nil {
		s.mu.Unlock()
		s.publish(protocol.SpeakData{Text: text})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()
		s.synthesize(ctx, seq, text)
	}()
}

func (s *Speaker) synthesize(ctx context.Context, seq uint64, text string) {
	res, err := s.provider.Synthesize(ctx, text)

	s.mu.Lock()
	current := seq == s.seq && !s.closed
	s.mu.Unlock()
	if !current || ctx.Err() == context.Canceled {
		s.logger.Debug("utterance superseded", "text", text)
		return
	}

	data := protocol.SpeakData{Text: text, Provider: s.provider.Name()}
	if err != nil {
		s.logger.Warn("synthesis failed, falling back to browser voice", "error", err)
	} else {
		data.MIME = res.Format.MIMEType()
		data.Audio = base64.StdEncoding.EncodeToString(res.Audio)
	}
	s.publish(data)
}

func (s *Speaker) publish(data protocol.SpeakData) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(protocol.TypeSpeak, data); err != nil {
		s.logger.Warn("publish speak failed", "error", err)
	}
}

// Close cancels pending synthesis and waits for it to finish.
func (s *Speaker) Close() error {
	s.mu.Lock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
	if s.provider != nil {
		return s.provider.Close()
	}
	return nil
}
