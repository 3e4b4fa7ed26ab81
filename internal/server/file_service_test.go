package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"fileshare/internal/blobstore"
)

func TestFileServiceConcurrentUploadsGetDistinctNames(t *testing.T) {
	env := newTestEnv(t, t.TempDir(), nil)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	names := make(chan string, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stored, err := env.svc.Upload(ctx, UploadInput{
				Filename:          "same.txt",
				DeclaredMediaType: "text/plain",
				Content:           strings.NewReader(fmt.Sprintf("payload %d", i)),
			})
			if err != nil {
				errs <- err
				return
			}
			names <- stored.PublicName
		}(i)
	}
	wg.Wait()
	close(names)
	close(errs)

	for err := range errs {
		t.Fatalf("upload: %v", err)
	}
	seen := map[string]struct{}{}
	for name := range names {
		if _, dup := seen[name]; dup {
			t.Fatalf("duplicate public name %q", name)
		}
		seen[name] = struct{}{}
	}
	if len(seen) != workers {
		t.Fatalf("expected %d names, got %d", workers, len(seen))
	}

	stats, err := env.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalFiles != workers || stats.TotalBytes != int64(workers*len("payload 0")) {
		t.Fatalf("unexpected stats after concurrent uploads: %#v", stats)
	}
}

func TestFileServiceStatsMatchLiveEntries(t *testing.T) {
	env := newTestEnv(t, t.TempDir(), nil)
	ctx := context.Background()

	sizes := []int{1, 10, 100, 1000}
	var total int64
	for i, n := range sizes {
		if _, err := env.svc.Upload(ctx, UploadInput{
			Filename:          fmt.Sprintf("f%d.txt", i),
			DeclaredMediaType: "text/plain",
			Content:           bytes.NewReader(bytes.Repeat([]byte("x"), n)),
		}); err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
		total += int64(n)
	}

	if err := env.svc.Delete(ctx, "f1.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	total -= 10

	files, err := env.svc.List(ctx, storeFilterAll())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var sum int64
	for _, f := range files {
		sum += f.SizeBytes
	}
	stats, err := env.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalBytes != total || stats.TotalBytes != sum || stats.TotalFiles != int64(len(files)) {
		t.Fatalf("stats %#v disagree with live entries (sum=%d, count=%d, want=%d)", stats, sum, len(files), total)
	}
}

func TestFileServiceGCBlobs(t *testing.T) {
	env := newTestEnv(t, t.TempDir(), nil)
	ctx := context.Background()

	upload := func(name, body string) {
		t.Helper()
		if _, err := env.svc.Upload(ctx, UploadInput{Filename: name, DeclaredMediaType: "text/plain", Content: strings.NewReader(body)}); err != nil {
			t.Fatalf("upload %s: %v", name, err)
		}
	}
	upload("keep.txt", "shared")
	upload("copy.txt", "shared")
	upload("gone.txt", "unique bytes")

	if err := env.svc.Delete(ctx, "gone.txt"); err != nil {
		t.Fatalf("delete gone: %v", err)
	}
	if err := env.svc.Delete(ctx, "copy.txt"); err != nil {
		t.Fatalf("delete copy: %v", err)
	}

	dry, err := env.svc.GCBlobs(ctx, 0, false)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !dry.DryRun || dry.CandidateCount != 1 || dry.ReclaimedBytes != int64(len("unique bytes")) {
		t.Fatalf("unexpected dry run result: %#v", dry)
	}

	applied, err := env.svc.GCBlobs(ctx, 1, true)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied.DeletedCount != 1 || applied.FailedCount != 0 {
		t.Fatalf("unexpected apply result: %#v", applied)
	}

	blobStats, err := env.blobs.Stats(ctx)
	if err != nil {
		t.Fatalf("blob stats: %v", err)
	}
	if blobStats.Count != 1 {
		t.Fatalf("expected shared blob to survive GC, got %#v", blobStats)
	}

	content, err := env.svc.Download(ctx, "keep.txt")
	if err != nil {
		t.Fatalf("download keep: %v", err)
	}
	defer content.Reader.Close()
	data, _ := io.ReadAll(content.Reader)
	if string(data) != "shared" {
		t.Fatalf("unexpected kept content %q", data)
	}
}

func TestAdminGCRequiresConfirmToApply(t *testing.T) {
	env := newTestEnv(t, t.TempDir(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/gc", strings.NewReader(`{"dry_run": false}`))
	w := env.do(req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without confirm, got %d", w.Code)
	}

	w = env.do(httptest.NewRequest(http.MethodPost, "/api/v1/admin/gc", strings.NewReader(`{"batch_size": -1}`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative batch size, got %d", w.Code)
	}

	w = env.do(httptest.NewRequest(http.MethodPost, "/api/v1/admin/gc", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected empty body to default to dry run, got %d (%s)", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/gc", strings.NewReader(`{"dry_run": false}`))
	req.Header.Set("X-Confirm", "true")
	w = env.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with confirm, got %d (%s)", w.Code, w.Body.String())
	}
}

type failingBlobStore struct {
	blobstore.BlobStore
}

func (failingBlobStore) Put(context.Context, io.Reader) (blobstore.BlobPutResult, error) {
	return blobstore.BlobPutResult{}, errors.New("disk full")
}

func TestUploadBlobFailureIsInternalAndLeavesNoEntry(t *testing.T) {
	env := newTestEnv(t, t.TempDir(), nil)
	env.svc.blobs = failingBlobStore{BlobStore: env.blobs}

	w := env.upload(t, "a.txt", "text/plain", []byte("alpha"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	got := decodeErrorBody(t, w)
	if got.Error != "internal error" || got.ErrorCode != ErrCodeBlobFailure {
		t.Fatalf("expected hidden internal error with blob code, got %#v", got)
	}
	if info := env.info(t); info.TotalFiles != 0 {
		t.Fatalf("expected no registry entry, got %#v", info)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, t.TempDir(), nil)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/info", nil))
	if id := w.Header().Get(requestIDHeader); len(id) != 36 {
		t.Fatalf("expected generated uuid request id, got %q", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/info", nil)
	req.Header.Set(requestIDHeader, "caller-id")
	w = env.do(req)
	if id := w.Header().Get(requestIDHeader); id != "caller-id" {
		t.Fatalf("expected caller request id echoed, got %q", id)
	}
}

func TestAdminMetricsCountsActivity(t *testing.T) {
	env := newTestEnv(t, t.TempDir(), nil)
	env.upload(t, "a.txt", "text/plain", []byte("alpha"))
	env.upload(t, "b.pdf", "application/pdf", []byte("%PDF"))
	env.do(httptest.NewRequest(http.MethodGet, "/api/v1/download/a.txt", nil))

	if got := env.svc.metrics.uploads.Count(); got != 1 {
		t.Fatalf("expected 1 accepted upload, got %d", got)
	}
	if got := env.svc.metrics.rejectedType.Count(); got != 1 {
		t.Fatalf("expected 1 media type rejection, got %d", got)
	}
	if got := env.svc.metrics.downloadBytes.Count(); got != 5 {
		t.Fatalf("expected 5 downloaded bytes, got %d", got)
	}

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "uploads.accepted") {
		t.Fatalf("unexpected metrics response %d: %s", w.Code, w.Body.String())
	}
}
