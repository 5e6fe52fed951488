package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-intent/internal/config"
	"github.com/teslashibe/go-intent/internal/log"
	"github.com/teslashibe/go-intent/pkg/commit"
	"github.com/teslashibe/go-intent/pkg/convlog"
	"github.com/teslashibe/go-intent/pkg/engine"
	"github.com/teslashibe/go-intent/pkg/output"
)

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.InitWriter(cmd.ErrOrStderr(), cfg.LogLevel)

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	// The replay log is in memory only; a trace never touches patient data.
	convLog, _ := convlog.New(convlog.NewMemoryStore(), "replay", convlog.WithMaxEntries(cfg.Log.MaxEntries))
	out := output.NewCoordinator(output.Config{
		Recorder: convLog,
		Policy:   speechPolicy(cfg),
		Logger:   log.L(),
	})

	w := cmd.OutOrStdout()
	var (
		last    commit.Phase
		commits int
	)
	n, err := engine.Replay(cmd.Context(), f, engineConfig(cfg), out, func(s engine.Snapshot) {
		switch {
		case s.Committed != nil:
			commits++
			fmt.Fprintf(w, "%s  COMMIT  %-16s (%s)\n", s.At.UTC().Format("15:04:05.000"), s.Committed.Label, s.Committed.Category)
		case replayVerbose && s.Phase != last:
			fmt.Fprintf(w, "%s  %-7s %s\n", s.At.UTC().Format("15:04:05.000"), s.Phase, s.Candidate.String())
		}
		last = s.Phase
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d records, %d commits\n", n, commits)
	return nil
}
