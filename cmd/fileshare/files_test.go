package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"fileshare/internal/api"
)

func TestDownloadToFileKeepsExistingTargetOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"file not found","code":"not_found","error_code":"FILE_NOT_FOUND"}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "report.txt")
	if err := os.WriteFile(target, []byte("keep me"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := downloadToFile(context.Background(), api.NewClient(srv.URL), "report.txt", target); err == nil {
		t.Fatal("expected download error")
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(data) != "keep me" {
		t.Fatalf("target overwritten: %q", data)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp file cleanup, found %d entries", len(entries))
	}
}

func TestDownloadToFileReplacesTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("ETag", `"abc"`)
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	target := filepath.Join(t.TempDir(), "report.txt")
	if err := os.WriteFile(target, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	result, err := downloadToFile(context.Background(), api.NewClient(srv.URL), "report.txt", target)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if result.SizeBytes != 5 || result.ETag != `"abc"` {
		t.Fatalf("unexpected result %+v", result)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(data) != "fresh" {
		t.Fatalf("expected replaced content, got %q", data)
	}
}
