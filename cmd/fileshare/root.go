package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fileshare/internal/config"
	"fileshare/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput   bool
		outputFormat string
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:           "fileshare",
		Short:         "Fileshare stores small files behind a local HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			if cmd.Flags().Changed("output") {
				formatter, err := format.ForName(outputFormat)
				if err != nil {
					return err
				}
				outputFormatter = formatter
				jsonOutput = true
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "O", "json", "structured output format (json|yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newUploadCmd(cfg, &jsonOutput),
		newDownloadCmd(cfg, &jsonOutput),
		newInfoCmd(cfg, &jsonOutput),
		newListCmd(cfg, &jsonOutput),
		newShowCmd(cfg, &jsonOutput),
		newRemoveCmd(cfg, &jsonOutput),
		newClearCmd(cfg, &jsonOutput),
		newGCCmd(cfg, &jsonOutput),
		newConfigCmd(cfg, &jsonOutput),
		newMigrateCmd(cfg, &jsonOutput),
	)

	return cmd
}
