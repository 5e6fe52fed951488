package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-intent/internal/config"
	"github.com/teslashibe/go-intent/pkg/convlog"
)

func TestEngineConfigFromDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Timing.StabilityDelay = time.Second
	cfg.Rules.Smile = 0.2

	ec := engineConfig(cfg)
	if ec.Commit.StabilityDelay != time.Second || ec.Commit.LockDuration != 4*time.Second {
		t.Errorf("commit config = %+v", ec.Commit)
	}
	if ec.Rules.Smile != 0.2 || ec.Rules.SoundSpike != 0.4 {
		t.Errorf("rules config = %+v", ec.Rules)
	}
	if ec.Signals.Gesture.MinSamples != 10 || ec.Signals.Gesture.MinFlips != 2 {
		t.Errorf("gesture config = %+v", ec.Signals.Gesture)
	}
	if ec.CommitCategory != "signal" {
		t.Errorf("commit category = %q", ec.CommitCategory)
	}

	p := speechPolicy(cfg)
	if p.Cooldown != 4*time.Second || p.RepeatCooldown != 10*time.Second {
		t.Errorf("speech policy = %+v", p)
	}
}

func TestOpenStoreBackends(t *testing.T) {
	tests := []struct {
		backend string
		path    string
	}{
		{config.LogBackendJSON, "logs"},
		{config.LogBackendSQLite, "db"},
		{config.LogBackendSQLite, "intent.sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.backend+"/"+tt.path, func(t *testing.T) {
			cfg := config.Default()
			cfg.Log.Backend = tt.backend
			cfg.Log.Path = filepath.Join(t.TempDir(), tt.path)

			store, closeStore, err := openStore(cfg)
			if err != nil {
				t.Fatalf("openStore: %v", err)
			}
			defer closeStore()

			entries := []convlog.Entry{{ID: 1, Message: "Yes", Category: "signal", Timestamp: "2026-03-01T09:30:00.000Z", PatientID: "p1"}}
			if err := store.Save("p1", entries); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := store.Load("p1")
			if err != nil || len(got) != 1 || got[0].Message != "Yes" {
				t.Errorf("Load = %+v, %v", got, err)
			}
		})
	}

	cfg := config.Default()
	cfg.Log.Backend = "redis"
	if _, _, err := openStore(cfg); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("INTENT_LOG_PATH", dir)
	t.Setenv("INTENT_PATIENT_ID", "p9")

	cfg := config.Default()
	cfg.Log.Path = dir
	store, closeStore, err := openStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	store.Save("p9", []convlog.Entry{{ID: 1, Message: "Needs attention", Category: "signal", Timestamp: "2026-03-01T09:30:00.000Z", PatientID: "p9"}})
	closeStore()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"export"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out.String(), `"patient": "p9"`) || !strings.Contains(out.String(), "Needs attention") {
		t.Errorf("export output:\n%s", out.String())
	}
}

func TestReplayCommand(t *testing.T) {
	trace := filepath.Join(t.TempDir(), "trace.jsonl")
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString(`{"ts":` + strconv.FormatInt(1700000000000+int64(i)*33, 10) + `,"sample":{"present":true,"expressions":{"mouthSmileLeft":0.6,"mouthSmileRight":0.6}}}` + "\n")
	}
	if err := os.WriteFile(trace, []byte(b.String()), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"replay", trace})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !strings.Contains(out.String(), "COMMIT  Feeling happy") || !strings.Contains(out.String(), "40 records, 1 commits") {
		t.Errorf("replay output:\n%s", out.String())
	}
}
