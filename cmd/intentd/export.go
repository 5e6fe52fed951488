package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-intent/internal/config"
	"github.com/teslashibe/go-intent/internal/log"
	"github.com/teslashibe/go-intent/pkg/convlog"
)

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.InitWriter(cmd.ErrOrStderr(), cfg.LogLevel)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open log store: %w", err)
	}
	defer closeStore()

	patient := exportPatient
	if patient == "" {
		patient = cfg.Patient.ID
	}
	entries, err := store.Load(patient)
	if err != nil {
		return fmt.Errorf("load %s: %w", patient, err)
	}
	x := convlog.NewExport(patient, entries, time.Now())

	if exportDir != "" {
		path, err := convlog.WriteExport(exportDir, x)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	}

	if exportText {
		fmt.Fprint(cmd.OutOrStdout(), x.Text())
		return nil
	}
	data, err := x.JSON()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
