package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/teslashibe/go-intent/internal/config"
	"github.com/teslashibe/go-intent/pkg/commit"
	"github.com/teslashibe/go-intent/pkg/convlog"
	"github.com/teslashibe/go-intent/pkg/engine"
	"github.com/teslashibe/go-intent/pkg/gesture"
	"github.com/teslashibe/go-intent/pkg/output"
	"github.com/teslashibe/go-intent/pkg/rules"
	"github.com/teslashibe/go-intent/pkg/signals"
)

func engineConfig(cfg *config.Config) engine.Config {
	sc := signals.DefaultConfig()
	sc.Gesture = gesture.Config{
		Window:         cfg.Gesture.Window,
		MinSamples:     cfg.Gesture.MinSamples,
		ShakeThreshold: cfg.Gesture.ShakeThreshold,
		NodThreshold:   cfg.Gesture.NodThreshold,
		MinFlips:       gesture.DefaultConfig().MinFlips,
	}

	return engine.Config{
		Signals: sc,
		Rules: rules.Config{
			SoundSpike: cfg.Rules.SoundSpike,
			MouthOpen:  cfg.Rules.MouthOpen,
			Movement:   cfg.Rules.Movement,
			Smile:      cfg.Rules.Smile,
			Sad:        cfg.Rules.Sad,
			Surprised:  cfg.Rules.Surprised,
		},
		Commit: commit.Config{
			StabilityDelay: cfg.Timing.StabilityDelay,
			LockDuration:   cfg.Timing.LockDuration,
		},
		FrameInterval:  cfg.Timing.FrameInterval,
		AudioInterval:  cfg.Timing.AudioInterval,
		CommitCategory: engine.DefaultConfig().CommitCategory,
	}
}

func speechPolicy(cfg *config.Config) output.SpeechPolicy {
	return output.SpeechPolicy{
		Cooldown:       cfg.Timing.TTSCooldown,
		RepeatCooldown: cfg.Timing.RepeatCooldown,
	}
}

// openStore returns the configured log store and a closer.
func openStore(cfg *config.Config) (convlog.Store, func() error, error) {
	switch cfg.Log.Backend {
	case config.LogBackendSQLite:
		path := cfg.Log.Path
		if filepath.Ext(path) == "" {
			if err := os.MkdirAll(path, 0755); err != nil {
				return nil, nil, err
			}
			path = filepath.Join(path, "intent.db")
		}
		s, err := convlog.NewSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.LogBackendJSON:
		s, err := convlog.NewJSONStore(cfg.Log.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", cfg.Log.Backend)
	}
}

// openLog opens patient's log. A load failure is logged and the log starts
// empty.
func openLog(cfg *config.Config, store convlog.Store, patient string, logger *slog.Logger) *convlog.Log {
	l, err := convlog.New(store, patient,
		convlog.WithMaxEntries(cfg.Log.MaxEntries),
		convlog.WithLogger(logger),
	)
	if err != nil {
		logger.Warn("conversation log not loaded, starting empty", "patient", patient, "error", err)
	}
	return l
}
