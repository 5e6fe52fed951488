// Package config loads go-intent configuration from YAML, .env files and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Perception source names.
const (
	PerceptionRemote = "remote"
	PerceptionYuNet  = "yunet"
	PerceptionNone   = "none"
)

// Audio source names.
const (
	AudioRemote = "remote"
	AudioMock   = "mock"
	AudioNone   = "none"
)

// Log backends.
const (
	LogBackendJSON   = "json"
	LogBackendSQLite = "sqlite"
)

// Speech providers.
const (
	SpeechBrowser = "browser"
	SpeechOpenAI  = "openai"
)

// Config is the full process configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Server     ServerConfig     `yaml:"server"`
	Patient    PatientConfig    `yaml:"patient"`
	Timing     TimingConfig     `yaml:"timing"`
	Gesture    GestureConfig    `yaml:"gesture"`
	Rules      RulesConfig      `yaml:"rules"`
	Perception PerceptionConfig `yaml:"perception"`
	Audio      AudioConfig      `yaml:"audio"`
	Log        LogConfig        `yaml:"log"`
	Speech     SpeechConfig     `yaml:"speech"`
	Export     ExportConfig     `yaml:"export"`
}

// ServerConfig configures the dashboard and ingest HTTP server.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	StaticDir       string        `yaml:"static_dir"`
	PublishInterval time.Duration `yaml:"publish_interval"`
}

// PatientConfig identifies whose conversation log is active.
type PatientConfig struct {
	ID string `yaml:"id"`
}

// TimingConfig holds the commit and speech timing windows.
type TimingConfig struct {
	StabilityDelay time.Duration `yaml:"stability_delay"`
	LockDuration   time.Duration `yaml:"lock_duration"`
	TTSCooldown    time.Duration `yaml:"tts_cooldown"`
	RepeatCooldown time.Duration `yaml:"repeat_cooldown"`
	FrameInterval  time.Duration `yaml:"frame_interval"`
	AudioInterval  time.Duration `yaml:"audio_interval"`
}

// GestureConfig tunes head gesture classification.
type GestureConfig struct {
	Window         time.Duration `yaml:"window"`
	MinSamples     int           `yaml:"min_samples"`
	ShakeThreshold float64       `yaml:"shake_threshold"`
	NodThreshold   float64       `yaml:"nod_threshold"`
}

// RulesConfig holds the suggestion rule thresholds.
type RulesConfig struct {
	SoundSpike float64 `yaml:"sound_spike"`
	MouthOpen  float64 `yaml:"mouth_open"`
	Movement   float64 `yaml:"movement"`
	Smile      float64 `yaml:"smile"`
	Sad        float64 `yaml:"sad"`
	Surprised  float64 `yaml:"surprised"`
}

// PerceptionConfig selects and configures the face perception source.
type PerceptionConfig struct {
	Source       string        `yaml:"source"`
	ModelPath    string        `yaml:"model_path"`
	CameraDevice int           `yaml:"camera_device"`
	Confidence   float64       `yaml:"confidence"`
	Staleness    time.Duration `yaml:"staleness"`
}

// AudioConfig selects the sound level source.
type AudioConfig struct {
	Source        string  `yaml:"source"`
	MockAmplitude float64 `yaml:"mock_amplitude"`
	MockFrequency float64 `yaml:"mock_frequency"`
}

// LogConfig configures conversation log persistence.
type LogConfig struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	MaxEntries int    `yaml:"max_entries"`
}

// SpeechConfig configures the speech sink.
type SpeechConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Voice    string `yaml:"voice"`
}

// ExportConfig configures scheduled and Google Docs exports.
type ExportConfig struct {
	Schedule             string `yaml:"schedule"`
	Dir                  string `yaml:"dir"`
	GoogleClientID       string `yaml:"google_client_id"`
	GoogleClientSecret   string `yaml:"google_client_secret"`
	GoogleRedirectURL    string `yaml:"google_redirect_url"`
	GoogleTokenPath      string `yaml:"google_token_path"`
	GoogleDocsOnSchedule bool   `yaml:"google_docs_on_schedule"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:            "8080",
			StaticDir:       "./web",
			PublishInterval: 100 * time.Millisecond,
		},
		Patient: PatientConfig{ID: "default"},
		Timing: TimingConfig{
			StabilityDelay: 800 * time.Millisecond,
			LockDuration:   4 * time.Second,
			TTSCooldown:    4 * time.Second,
			RepeatCooldown: 10 * time.Second,
			FrameInterval:  33 * time.Millisecond,
			AudioInterval:  50 * time.Millisecond,
		},
		Gesture: GestureConfig{
			Window:         500 * time.Millisecond,
			MinSamples:     10,
			ShakeThreshold: 0.02,
			NodThreshold:   0.015,
		},
		Rules: RulesConfig{
			SoundSpike: 0.4,
			MouthOpen:  0.15,
			Movement:   0.5,
			Smile:      0.08,
			Sad:        0.15,
			Surprised:  0.2,
		},
		Perception: PerceptionConfig{
			Source:     PerceptionRemote,
			ModelPath:  "models/face_detection_yunet.onnx",
			Confidence: 0.5,
			Staleness:  500 * time.Millisecond,
		},
		Audio: AudioConfig{
			Source:        AudioRemote,
			MockAmplitude: 0.1,
			MockFrequency: 440,
		},
		Log: LogConfig{
			Backend:    LogBackendJSON,
			Path:       "data/logs",
			MaxEntries: 50,
		},
		Speech: SpeechConfig{
			Provider: SpeechBrowser,
			Voice:    "shimmer",
		},
		Export: ExportConfig{
			Dir:               "data/exports",
			GoogleRedirectURL: "http://localhost:8080/api/gdocs/callback",
		},
	}
}

// Validate checks that cfg is coherent. All failures are joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Patient.ID == "" {
		errs = append(errs, errors.New("patient.id is required"))
	}
	if c.Timing.StabilityDelay <= 0 {
		errs = append(errs, fmt.Errorf("timing.stability_delay must be positive, got %v", c.Timing.StabilityDelay))
	}
	if c.Timing.LockDuration <= 0 {
		errs = append(errs, fmt.Errorf("timing.lock_duration must be positive, got %v", c.Timing.LockDuration))
	}
	if c.Timing.FrameInterval <= 0 || c.Timing.AudioInterval <= 0 {
		errs = append(errs, errors.New("timing.frame_interval and timing.audio_interval must be positive"))
	}
	if c.Timing.TTSCooldown < 0 || c.Timing.RepeatCooldown < 0 {
		errs = append(errs, errors.New("speech cooldowns must not be negative"))
	}
	if c.Gesture.MinSamples < 2 {
		errs = append(errs, fmt.Errorf("gesture.min_samples must be at least 2, got %d", c.Gesture.MinSamples))
	}
	if c.Gesture.Window <= 0 {
		errs = append(errs, errors.New("gesture.window must be positive"))
	}
	if c.Log.MaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("log.max_entries must be positive, got %d", c.Log.MaxEntries))
	}

	switch c.Perception.Source {
	case PerceptionRemote, PerceptionYuNet, PerceptionNone:
	default:
		errs = append(errs, fmt.Errorf("perception.source %q is not one of remote, yunet, none", c.Perception.Source))
	}
	switch c.Audio.Source {
	case AudioRemote, AudioMock, AudioNone:
	default:
		errs = append(errs, fmt.Errorf("audio.source %q is not one of remote, mock, none", c.Audio.Source))
	}
	switch c.Log.Backend {
	case LogBackendJSON, LogBackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("log.backend %q is not one of json, sqlite", c.Log.Backend))
	}
	switch c.Speech.Provider {
	case SpeechBrowser:
	case SpeechOpenAI:
		if c.Speech.APIKey == "" {
			errs = append(errs, errors.New("speech.api_key is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("speech.provider %q is not one of browser, openai", c.Speech.Provider))
	}

	return errors.Join(errs...)
}

// GoogleDocsEnabled reports whether OAuth credentials are configured.
func (c *Config) GoogleDocsEnabled() bool {
	return c.Export.GoogleClientID != "" && c.Export.GoogleClientSecret != ""
}
