package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fileshare/internal/config"
	"fileshare/internal/store"
)

func newMigrateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var plan bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or preview metadata schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
			if !plan {
				if err := applyMigrations(cfg.DBPath()); err != nil {
					return err
				}
			}

			status, err := store.PlanFile(cfg.DBPath())
			if err != nil {
				return fmt.Errorf("inspect migrations: %w", err)
			}
			if *jsonOutput {
				return writeStructured(status)
			}
			return writeMigrationStatus(status, !plan)
		},
	}

	cmd.Flags().BoolVar(&plan, "plan", false, "show pending migrations without applying them")
	cmd.Flags().BoolVar(&plan, "dry-run", false, "alias for --plan")
	return cmd
}

// applyMigrations opens the registry once; Open migrates as a side effect.
func applyMigrations(path string) error {
	st, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return st.Close()
}

func writeMigrationStatus(status *store.MigrationStatus, applied bool) error {
	if applied {
		return writePlain("schema is at version %d\n", status.CurrentVersion)
	}
	if err := writePlain("current version: %d\navailable version: %d\n", status.CurrentVersion, status.AvailableVersion); err != nil {
		return err
	}
	if len(status.Pending) == 0 {
		return writePlain("no pending migrations\n")
	}
	for _, m := range status.Pending {
		if err := writePlain("pending %d: %s\n", m.Version, m.Description); err != nil {
			return err
		}
	}
	return nil
}
