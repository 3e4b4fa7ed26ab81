package api

import "fileshare/internal/models"

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// InfoResponse is the response from GET /api/v1/info.
type InfoResponse struct {
	TotalFiles int64 `json:"total_files"`
	TotalBytes int64 `json:"total_bytes"`
}

// InfoDetailResponse is the response from GET /api/v1/info?verbose=true.
type InfoDetailResponse struct {
	TotalFiles        int64    `json:"total_files"`
	TotalBytes        int64    `json:"total_bytes"`
	SchemaVersion     int      `json:"schema_version"`
	BlobCount         int64    `json:"blob_count"`
	BlobBytes         int64    `json:"blob_bytes"`
	BlobBackend       string   `json:"blob_backend"`
	MaxFileBytes      int64    `json:"max_file_bytes"`
	MaxStorageBytes   int64    `json:"max_storage_bytes"`
	AllowedMediaTypes []string `json:"allowed_media_types"`
}

// FileResponse describes one stored file and where to fetch it.
type FileResponse struct {
	models.StoredFile
	Location string `json:"location"`
}

// ClearResponse is the response from DELETE /api/v1/files.
type ClearResponse struct {
	Cleared bool `json:"cleared"`
}

// DeleteResponse is the response from DELETE /api/v1/files/{name}.
type DeleteResponse struct {
	PublicName string `json:"public_name"`
	Deleted    bool   `json:"deleted"`
}

// BlobGCRequest configures one blob garbage-collection run.
type BlobGCRequest struct {
	BatchSize int  `json:"batch_size,omitempty"`
	DryRun    bool `json:"dry_run"`
}

// BlobGCResponse reports one blob garbage-collection run.
type BlobGCResponse struct {
	CandidateCount int   `json:"candidate_count"`
	DeletedCount   int   `json:"deleted_count"`
	FailedCount    int   `json:"failed_count"`
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
	DryRun         bool  `json:"dry_run"`
}
