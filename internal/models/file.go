package models

import "time"

// StoredFile is one committed upload, addressed by its public name.
type StoredFile struct {
	PublicName   string    `json:"public_name"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	BlobID       string    `json:"blob_id"`
	Digest       string    `json:"digest,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Blob is the stored content behind one or more files. Identical bytes
// share a row, keyed by (StorageBackend, BlobKey).
type Blob struct {
	ID             string    `json:"id"`
	Digest         string    `json:"digest"`
	SizeBytes      int64     `json:"size_bytes"`
	StorageBackend string    `json:"storage_backend"`
	BlobKey        string    `json:"blob_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// FileStats aggregates the live file set.
type FileStats struct {
	TotalFiles int64 `json:"total_files"`
	TotalBytes int64 `json:"total_bytes"`
}
