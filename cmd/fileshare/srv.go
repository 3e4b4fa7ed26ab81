package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fileshare/internal/blobstore"
	"fileshare/internal/config"
	"fileshare/internal/server"
	"fileshare/internal/store"
	"fileshare/internal/validate"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the fileshare API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			svc, closeFn, err := buildFileService(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(addr, svc, logger)
			srv.ConfigureUploads(cfg.Uploads.MultipartMaxMemory)
			return srv.Serve(ctx)
		},
	}
}

// buildFileService opens the registry and blob backend named by cfg and
// wires them into a FileService. The returned func closes the registry.
func buildFileService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server.FileService, func(), error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}

	logger.Info("opening database", "path", cfg.DBPath())
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, nil, err
	}

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	logger.Info("blob store ready", "backend", blobs.Backend(), "digest", cfg.Blobs.Digest)

	policy, err := validate.NewPolicy(
		cfg.Uploads.MaxFileBytes,
		cfg.Uploads.MaxStorageBytes,
		cfg.Uploads.AllowedMediaTypes,
		cfg.Uploads.RejectMediaTypeMismatch,
	)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	svc := server.NewFileService(st, blobs, policy)
	svc.ConfigureGC(cfg.Blobs.GCBatchSize)
	svc.SetLogger(logger)
	return svc, func() { _ = st.Close() }, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	switch cfg.Blobs.Backend {
	case "s3":
		if ctx == nil {
			ctx = context.Background()
		}
		return blobstore.NewS3Store(ctx, blobstore.S3Config{
			Endpoint:  cfg.Blobs.S3.Endpoint,
			Bucket:    cfg.Blobs.S3.Bucket,
			Prefix:    cfg.Blobs.S3.Prefix,
			AccessKey: cfg.Blobs.S3.AccessKey,
			SecretKey: cfg.Blobs.S3.SecretKey,
			Region:    cfg.Blobs.S3.Region,
			UseSSL:    cfg.Blobs.S3.UseSSL,
			Digest:    cfg.Blobs.Digest,
		})
	case "", "local":
		return blobstore.NewLocalCAS(cfg.BlobDir(), blobstore.LocalCASOptions{
			Digest:   cfg.Blobs.Digest,
			Compress: cfg.Blobs.Compress,
		})
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", cfg.Blobs.Backend)
	}
}
