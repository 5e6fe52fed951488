package audioio

import (
	"context"
	"io"
)

// Chunk is a run of interleaved PCM16 samples.
type Chunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// FromBytes populates the chunk from little-endian PCM16 bytes.
func (c *Chunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = make([]int16, len(data)/2)
	for i := range c.Samples {
		c.Samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
}

// Bytes returns the chunk as little-endian PCM16.
func (c *Chunk) Bytes() []byte {
	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// Duration returns the chunk length in seconds.
func (c *Chunk) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// Source produces audio chunks.
type Source interface {
	// Start begins capture. Starting a running source is a no-op.
	Start(ctx context.Context) error

	// Stop halts capture. Safe to call more than once.
	Stop() error

	// Read blocks for the next chunk. Returns io.EOF once stopped.
	Read(ctx context.Context) (Chunk, error)

	// Name identifies the backend.
	Name() string

	io.Closer
}
