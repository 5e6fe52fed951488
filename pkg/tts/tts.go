// Package tts synthesizes speech for committed messages.
//
// The dashboard speaks text with the browser's own voice by default; a
// Provider is only needed for a consistent server-side voice. The result
// is sent to the browser as encoded audio.
//
//	p, _ := tts.NewOpenAI(tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	defer p.Close()
//	res, _ := p.Synthesize(ctx, "Yes")
package tts

import (
	"context"
	"time"
)

// Provider synthesizes text.
type Provider interface {
	// Synthesize converts text to a complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Name identifies the provider in logs and events.
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult is one synthesized utterance.
type AudioResult struct {
	Audio     []byte
	Format    Encoding
	CharCount int
	LatencyMs int64
}

// Encoding is the container of AudioResult.Audio.
type Encoding string

const (
	EncodingMP3  Encoding = "mp3"
	EncodingOpus Encoding = "opus"
	EncodingWAV  Encoding = "wav"
	EncodingPCM  Encoding = "pcm" // 24kHz mono PCM16
)

// MIMEType returns the browser media type for e.
func (e Encoding) MIMEType() string {
	switch e {
	case EncodingOpus:
		return "audio/ogg"
	case EncodingWAV:
		return "audio/wav"
	case EncodingPCM:
		return "audio/L16;rate=24000"
	default:
		return "audio/mpeg"
	}
}

// estimateDuration guesses playback length from text at roughly 14
// characters per second.
func estimateDuration(text string) time.Duration {
	return time.Duration(len(text)) * time.Second / 14
}
