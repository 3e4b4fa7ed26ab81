package main

import (
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"fileshare/internal/api"
	"fileshare/internal/config"
)

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		verbose     bool
		showMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show storage usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				if showMetrics {
					snapshot, err := client.Metrics(cmd.Context())
					if err != nil {
						return err
					}
					if *jsonOutput {
						return writeStructured(snapshot)
					}
					return writeMetrics(snapshot)
				}

				if !verbose {
					resp, err := client.Info(cmd.Context())
					if err != nil {
						return err
					}
					if *jsonOutput {
						return writeStructured(resp)
					}
					_ = writePlain("total_files: %d\n", resp.TotalFiles)
					return writePlain("total_bytes: %d (%s)\n", resp.TotalBytes, humanize.IBytes(uint64(resp.TotalBytes)))
				}

				resp, err := client.InfoDetail(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeStructured(resp)
				}
				_ = writePlain("data_dir: %s\n", cfg.DataDir)
				_ = writePlain("schema_version: %d\n", resp.SchemaVersion)
				_ = writePlain("total_files: %d\n", resp.TotalFiles)
				_ = writePlain("total_bytes: %d (%s)\n", resp.TotalBytes, humanize.IBytes(uint64(resp.TotalBytes)))
				_ = writePlain("blob_backend: %s\n", resp.BlobBackend)
				_ = writePlain("blob_count: %d\n", resp.BlobCount)
				_ = writePlain("blob_bytes: %d\n", resp.BlobBytes)
				_ = writePlain("max_file_bytes: %d\n", resp.MaxFileBytes)
				_ = writePlain("max_storage_bytes: %d\n", resp.MaxStorageBytes)
				return writePlain("allowed_media_types: %s\n", strings.Join(resp.AllowedMediaTypes, ","))
			})
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include schema, blob and policy details")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "show server counters instead of usage")
	return cmd
}

func writeMetrics(snapshot map[string]any) error {
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writePlain("%s: %v\n", name, snapshot[name]); err != nil {
			return err
		}
	}
	return nil
}
