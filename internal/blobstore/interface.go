package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned (wrapped) when a blob key has no stored content.
var ErrNotFound = errors.New("blob not found")

// BlobPutResult describes one persisted blob payload.
type BlobPutResult struct {
	Digest    string
	SizeBytes int64
	BlobKey   string
}

// Stats reports the blobs currently reachable in a store.
type Stats struct {
	Count int64 `json:"count"`
	Bytes int64 `json:"bytes"`
}

// BlobStore is the byte-storage abstraction used by FileService.
//
// Implementations must be safe for concurrent use.
type BlobStore interface {
	Put(ctx context.Context, r io.Reader) (BlobPutResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
	Backend() string
}

var (
	_ BlobStore = (*LocalCAS)(nil)
	_ BlobStore = (*S3Store)(nil)
)
