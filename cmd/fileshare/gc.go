package main

import (
	"github.com/spf13/cobra"

	"fileshare/internal/api"
	"fileshare/internal/config"
)

func newGCCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		apply     bool
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Find or delete blobs no file references",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.BlobGCRequest{BatchSize: batchSize, DryRun: !apply}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GCBlobs(cmd.Context(), req, apply)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeStructured(resp)
				}
				if resp.DryRun {
					return writePlain("candidates: %d (dry run; use --apply to delete)\n", resp.CandidateCount)
				}
				return writePlain("deleted: %d failed: %d reclaimed_bytes: %d\n",
					resp.DeletedCount, resp.FailedCount, resp.ReclaimedBytes)
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete unreferenced blobs")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "blobs examined per batch (server default when 0)")
	return cmd
}
