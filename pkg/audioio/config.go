// Package audioio turns microphone audio into a sound level in [0,1].
//
// Audio arrives as PCM16 chunks from a Source (a synthetic MockSource in
// development, or Opus packets decoded from the ingest socket) and is fed
// into a Meter, which the engine polls.
package audioio

import (
	"fmt"
	"time"
)

// Config holds the chunk format.
type Config struct {
	// SampleRate in Hz. Default: 48000 (Opus native rate)
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels. Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the length of one chunk. Default: 20ms
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`
}

// DefaultConfig returns 48kHz mono in 20ms chunks.
func DefaultConfig() Config {
	return Config{
		SampleRate:     48000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of frames per chunk.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}
