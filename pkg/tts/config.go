package tts

import (
	"log/slog"
	"time"
)

// Config holds provider configuration. Use functional options to set it.
type Config struct {
	APIKey  string
	BaseURL string

	Voice  string
	Model  string
	Format Encoding
	Speed  float64

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

// Option configures a provider.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithVoice sets the voice.
func WithVoice(voice string) Option {
	return func(c *Config) { c.Voice = voice }
}

// WithModel sets the model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithFormat sets the output encoding.
func WithFormat(format Encoding) Option {
	return func(c *Config) { c.Format = format }
}

// WithSpeed sets the speaking rate, 0.25 to 4.0.
func WithSpeed(speed float64) Option {
	return func(c *Config) { c.Speed = speed }
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

// WithRetry configures retries for 429 and 5xx responses.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns a short-utterance tuning: fast model, MP3, two
// retries.
func DefaultConfig() *Config {
	return &Config{
		Voice:      VoiceShimmer,
		Model:      ModelTTS1,
		Format:     EncodingMP3,
		Speed:      1.0,
		Timeout:    15 * time.Second,
		MaxRetries: 2,
		RetryDelay: 100 * time.Millisecond,
		Logger:     slog.Default(),
	}
}

// Apply applies options.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if c.Speed < 0.25 || c.Speed > 4 {
		return ErrInvalidSpeed
	}
	return nil
}
