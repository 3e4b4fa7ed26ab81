package blobstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// fakeObjectServer serves a single object over the S3 path-style API
// until removed is set.
func fakeObjectServer(t *testing.T, objectPath, body string, removed *atomic.Bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if removed.Load() || r.URL.Path != objectPath {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method != http.MethodHead {
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("ETag", `"0123456789abcdef"`)
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newFakeS3Store(t *testing.T, endpoint string) *S3Store {
	t.Helper()
	client, err := minio.New(strings.TrimPrefix(endpoint, "http://"), &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Region: "us-east-1",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return &S3Store{client: client, bucket: "fileshare", digest: "sha256"}
}

func TestS3OpenReadsObjectBeforeReturning(t *testing.T) {
	key := casKeyFromDigest("sha256", strings.Repeat("ab", 32), false)
	var removed atomic.Bool
	srv := fakeObjectServer(t, "/fileshare/"+key, "stored bytes", &removed)
	store := newFakeS3Store(t, srv.URL)

	rc, err := store.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()

	// A concurrent delete after Open must not affect the reader.
	removed.Store(true)

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read after delete: %v", err)
	}
	if string(data) != "stored bytes" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestS3OpenMissingObject(t *testing.T) {
	var removed atomic.Bool
	removed.Store(true)
	srv := fakeObjectServer(t, "/fileshare/unused", "", &removed)
	store := newFakeS3Store(t, srv.URL)

	key := casKeyFromDigest("sha256", strings.Repeat("cd", 32), false)
	if _, err := store.Open(context.Background(), key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
