// intentd runs the non-verbal patient assistant: it turns facial and
// audio signals into committed messages for caregivers.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "intentd",
	Short:         "intentd - signal-to-message assistant for non-verbal patients",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine, dashboard and ingest socket",
	RunE:  runServe,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a patient's conversation log as JSON",
	RunE:  runExport,
}

var replayCmd = &cobra.Command{
	Use:   "replay <trace.jsonl>",
	Short: "Run a recorded signal trace through a fresh engine and print commits",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

var (
	exportPatient string
	exportDir     string
	exportText    bool
	replayVerbose bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")

	exportCmd.Flags().StringVarP(&exportPatient, "patient", "p", "", "Patient ID (default: configured patient)")
	exportCmd.Flags().StringVarP(&exportDir, "dir", "d", "", "Write the export file into this directory instead of stdout")
	exportCmd.Flags().BoolVar(&exportText, "text", false, "Print plain text instead of JSON")

	replayCmd.Flags().BoolVarP(&replayVerbose, "verbose", "v", false, "Print every phase change, not just commits")

	rootCmd.AddCommand(serveCmd, exportCmd, replayCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
