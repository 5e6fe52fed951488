package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then .env and process environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	ApplyEnv(cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the
// result. Environment variables are not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg fields from environment variables read via getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}

	set(&cfg.LogLevel, "INTENT_LOG_LEVEL", "LOG_LEVEL")
	set(&cfg.Server.Port, "INTENT_PORT", "PORT")
	set(&cfg.Server.StaticDir, "INTENT_STATIC_DIR")
	set(&cfg.Patient.ID, "INTENT_PATIENT_ID")
	set(&cfg.Perception.Source, "INTENT_PERCEPTION_SOURCE")
	set(&cfg.Perception.ModelPath, "INTENT_YUNET_MODEL")
	set(&cfg.Audio.Source, "INTENT_AUDIO_SOURCE")
	set(&cfg.Log.Backend, "INTENT_LOG_BACKEND")
	set(&cfg.Log.Path, "INTENT_LOG_PATH")
	set(&cfg.Speech.Provider, "INTENT_SPEECH_PROVIDER")
	set(&cfg.Speech.APIKey, "INTENT_SPEECH_API_KEY", "OPENAI_API_KEY")
	set(&cfg.Speech.Voice, "INTENT_SPEECH_VOICE")
	set(&cfg.Export.Schedule, "INTENT_EXPORT_SCHEDULE")
	set(&cfg.Export.Dir, "INTENT_EXPORT_DIR")
	set(&cfg.Export.GoogleClientID, "GOOGLE_CLIENT_ID")
	set(&cfg.Export.GoogleClientSecret, "GOOGLE_CLIENT_SECRET")
	set(&cfg.Export.GoogleRedirectURL, "GOOGLE_REDIRECT_URL")
	set(&cfg.Export.GoogleTokenPath, "GOOGLE_TOKEN_PATH")
}
