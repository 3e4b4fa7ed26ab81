package server

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"fileshare/internal/blobstore"
	"fileshare/internal/store"
	"fileshare/internal/validate"
)

const perfMaxStorageBytes = 1 << 30

func newPerfFileService(tb testing.TB, seedCount int) *FileService {
	tb.Helper()

	dir := tb.TempDir()
	st, err := store.Open(filepath.Join(dir, "perf.db"))
	if err != nil {
		tb.Fatalf("open perf store: %v", err)
	}
	tb.Cleanup(func() {
		_ = st.Close()
	})

	blobs, err := blobstore.NewLocalCAS(filepath.Join(dir, "blobs"), blobstore.LocalCASOptions{})
	if err != nil {
		tb.Fatalf("open perf blobs: %v", err)
	}

	policy, err := validate.NewPolicy(validate.DefaultMaxFileBytes, perfMaxStorageBytes, validate.DefaultAllowedMediaTypes, true)
	if err != nil {
		tb.Fatalf("perf policy: %v", err)
	}
	svc := NewFileService(st, blobs, policy)

	if err := seedPerfFiles(context.Background(), svc, 0, seedCount); err != nil {
		tb.Fatalf("seed perf files: %v", err)
	}
	return svc
}

func seedPerfFiles(ctx context.Context, svc *FileService, start, count int) error {
	for i := start; i < start+count; i++ {
		if _, err := svc.Upload(ctx, perfUpload(perfFileName(i), i)); err != nil {
			return fmt.Errorf("seed %d: %w", i, err)
		}
	}
	return nil
}

func perfUpload(name string, n int) UploadInput {
	body := fmt.Sprintf("perf payload %d\n%s", n, strings.Repeat("x", n%512))
	return UploadInput{
		Filename:          name,
		DeclaredMediaType: "text/plain",
		Content:           strings.NewReader(body),
	}
}

// perfFileName spreads names over a few prefixes so prefix filters select a slice.
func perfFileName(n int) string {
	prefixes := []string{"report", "invoice", "notes", "draft"}
	return fmt.Sprintf("%s-%05d.txt", prefixes[n%len(prefixes)], n)
}
