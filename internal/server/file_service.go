package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"fileshare/internal/blobstore"
	"fileshare/internal/filename"
	"fileshare/internal/models"
	"fileshare/internal/store"
	"fileshare/internal/validate"
)

const (
	defaultBlobGCBatchSize = 500
	downloadPathPrefix     = "/api/v1/download/"
)

// FileService owns the upload, download and bookkeeping workflows.
// Mutations hold mu for writing; lookups and stats hold it for reading.
type FileService struct {
	mu sync.RWMutex

	files  store.FileStore
	blobs  blobstore.BlobStore
	policy *validate.Policy

	gcBatchSize int
	metrics     *serviceMetrics
	logger      *slog.Logger
}

// UploadInput describes one incoming file.
type UploadInput struct {
	Filename          string
	DeclaredMediaType string
	Content           io.Reader
}

// FileContent is an open download stream with its metadata.
type FileContent struct {
	Reader       io.ReadCloser
	SizeBytes    int64
	ContentType  string
	OriginalName string
	Digest       string
	CreatedAt    time.Time
}

// BlobGCResult reports one GC run result.
type BlobGCResult struct {
	CandidateCount int   `json:"candidate_count"`
	DeletedCount   int   `json:"deleted_count"`
	FailedCount    int   `json:"failed_count"`
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
	DryRun         bool  `json:"dry_run"`
}

// ServiceInfo combines registry, blob and policy state.
type ServiceInfo struct {
	Store             store.StoreInfo
	BlobBackend       string
	MaxFileBytes      int64
	MaxStorageBytes   int64
	AllowedMediaTypes []string
}

// NewFileService constructs a FileService. A nil policy uses the defaults.
func NewFileService(files store.FileStore, blobs blobstore.BlobStore, policy *validate.Policy) *FileService {
	if policy == nil {
		policy = validate.DefaultPolicy()
	}
	return &FileService{
		files:       files,
		blobs:       blobs,
		policy:      policy,
		gcBatchSize: defaultBlobGCBatchSize,
		metrics:     newServiceMetrics(nil),
	}
}

// ConfigureGC overrides the blob GC batch size.
func (s *FileService) ConfigureGC(batchSize int) {
	if batchSize <= 0 {
		batchSize = defaultBlobGCBatchSize
	}
	s.gcBatchSize = batchSize
}

// SetLogger sets the service logger.
func (s *FileService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Policy returns the active upload policy.
func (s *FileService) Policy() *validate.Policy {
	return s.policy
}

// Upload validates and stores one file, returning its committed metadata.
func (s *FileService) Upload(ctx context.Context, in UploadInput) (models.StoredFile, error) {
	var zero models.StoredFile
	if err := s.ready(); err != nil {
		return zero, err
	}
	if in.Content == nil {
		return zero, badRequestCode(fmt.Errorf("file content is required"), ErrCodeMissingRequired)
	}

	originalName, err := filename.Clean(in.Filename)
	if err != nil {
		return zero, badRequestCode(fmt.Errorf("invalid file name %q", in.Filename), ErrCodeInvalidFilename)
	}

	readLimit := s.policy.MaxFileBytes
	if readLimit < math.MaxInt64 {
		// One extra byte tells "exactly at the limit" from "over it".
		readLimit++
	}
	data, err := io.ReadAll(io.LimitReader(in.Content, readLimit))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.metrics.rejected(rejectTooLarge)
			return zero, payloadTooLarge(fmt.Errorf("%w: request body too large", validate.ErrPayloadTooLarge))
		}
		return zero, badRequestCode(fmt.Errorf("read upload: %w", err), ErrCodeInvalidMultipart)
	}
	size := int64(len(data))

	contentType, err := s.policy.Validate(validate.Input{
		DeclaredMediaType: in.DeclaredMediaType,
		SizeBytes:         size,
		Content:           data,
	})
	if err != nil {
		return zero, s.validationError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stats, err := s.files.FileStats(ctx)
	if err != nil {
		return zero, storeFailure(err)
	}
	if err := s.policy.CheckSize(size, stats.TotalBytes); err != nil {
		return zero, s.validationError(err)
	}

	put, err := s.blobs.Put(ctx, bytes.NewReader(data))
	if err != nil {
		return zero, blobFailure(fmt.Errorf("store blob: %w", err))
	}

	existing, err := s.files.PublicNames(ctx)
	if err != nil {
		return zero, storeFailure(err)
	}

	now := time.Now().UTC()
	file := &models.StoredFile{
		PublicName:   filename.Disambiguate(existing, originalName),
		OriginalName: originalName,
		ContentType:  contentType,
		SizeBytes:    size,
		CreatedAt:    now,
	}
	blob := &models.Blob{
		Digest:         put.Digest,
		SizeBytes:      put.SizeBytes,
		StorageBackend: s.blobs.Backend(),
		BlobKey:        put.BlobKey,
		CreatedAt:      now,
	}
	if _, err := s.files.CreateFileWithBlob(ctx, blob, file); err != nil {
		if errors.Is(err, store.ErrPublicNameTaken) {
			return zero, conflict(err)
		}
		return zero, storeFailure(err)
	}

	s.metrics.uploaded(size)
	s.log().Debug("file stored", "public_name", file.PublicName, "size_bytes", size, "content_type", contentType, "blob_id", file.BlobID)
	return *file, nil
}

// Download resolves a public name and opens its bytes.
func (s *FileService) Download(ctx context.Context, publicName string) (*FileContent, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.files.GetFile(ctx, publicName)
	if err != nil {
		return nil, storeFailure(err)
	}
	if file == nil {
		return nil, notFound(fmt.Errorf("file not found"))
	}
	blob, err := s.files.GetBlob(ctx, file.BlobID)
	if err != nil {
		return nil, storeFailure(err)
	}
	if blob == nil {
		return nil, internalError(fmt.Errorf("file %q references missing blob %s", publicName, file.BlobID))
	}

	rc, err := s.blobs.Open(ctx, blob.BlobKey)
	if err != nil {
		return nil, blobFailure(fmt.Errorf("open blob %s: %w", blob.ID, err))
	}

	s.metrics.downloaded(file.SizeBytes)
	return &FileContent{
		Reader:       rc,
		SizeBytes:    file.SizeBytes,
		ContentType:  file.ContentType,
		OriginalName: file.OriginalName,
		Digest:       blob.Digest,
		CreatedAt:    file.CreatedAt,
	}, nil
}

// Get returns metadata for one file.
func (s *FileService) Get(ctx context.Context, publicName string) (models.StoredFile, error) {
	var zero models.StoredFile
	if err := s.ready(); err != nil {
		return zero, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.files.GetFile(ctx, publicName)
	if err != nil {
		return zero, storeFailure(err)
	}
	if file == nil {
		return zero, notFound(fmt.Errorf("file not found"))
	}
	return *file, nil
}

// List returns a snapshot of stored files.
func (s *FileService) List(ctx context.Context, filter store.FileFilter) ([]models.StoredFile, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := s.files.ListFiles(ctx, filter)
	if err != nil {
		return nil, storeFailure(err)
	}
	return files, nil
}

// Stats returns the live file count and byte total.
func (s *FileService) Stats(ctx context.Context) (models.FileStats, error) {
	if err := s.ready(); err != nil {
		return models.FileStats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, err := s.files.FileStats(ctx)
	if err != nil {
		return models.FileStats{}, storeFailure(err)
	}
	return stats, nil
}

// Info returns registry counts plus blob backend and policy details.
func (s *FileService) Info(ctx context.Context) (ServiceInfo, error) {
	if err := s.ready(); err != nil {
		return ServiceInfo{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := s.files.StoreInfo(ctx)
	if err != nil {
		return ServiceInfo{}, storeFailure(err)
	}
	allowed := make([]string, 0, len(s.policy.AllowedMediaTypes))
	for mt := range s.policy.AllowedMediaTypes {
		allowed = append(allowed, mt)
	}
	sort.Strings(allowed)

	return ServiceInfo{
		Store:             *info,
		BlobBackend:       s.blobs.Backend(),
		MaxFileBytes:      s.policy.MaxFileBytes,
		MaxStorageBytes:   s.policy.MaxStorageBytes,
		AllowedMediaTypes: allowed,
	}, nil
}

// Delete removes one file. Its blob is reclaimed by GCBlobs once unreferenced.
func (s *FileService) Delete(ctx context.Context, publicName string) error {
	if err := s.ready(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, err := s.files.DeleteFile(ctx, publicName)
	if err != nil {
		return storeFailure(err)
	}
	if !deleted {
		return notFound(fmt.Errorf("file not found"))
	}
	s.log().Debug("file deleted", "public_name", publicName)
	return nil
}

// ClearAll removes every file and blob.
func (s *FileService) ClearAll(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.files.ClearFiles(ctx); err != nil {
		return storeFailure(err)
	}
	if err := s.blobs.Clear(ctx); err != nil {
		return blobFailure(fmt.Errorf("clear blobs: %w", err))
	}
	s.log().Info("storage cleared")
	return nil
}

// GCBlobs deletes blobs no file references. With apply false it only reports.
func (s *FileService) GCBlobs(ctx context.Context, batchSize int, apply bool) (BlobGCResult, error) {
	result := BlobGCResult{DryRun: !apply}
	if err := s.ready(); err != nil {
		return result, err
	}
	if batchSize <= 0 {
		batchSize = s.gcBatchSize
		if batchSize <= 0 {
			batchSize = defaultBlobGCBatchSize
		}
	}

	if !apply {
		s.mu.RLock()
		defer s.mu.RUnlock()

		blobs, err := s.files.ListUnreferencedBlobs(ctx, 0)
		if err != nil {
			return result, storeFailure(err)
		}
		result.CandidateCount = len(blobs)
		for _, blob := range blobs {
			result.ReclaimedBytes += blob.SizeBytes
		}
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	failed := map[string]struct{}{}
	for {
		blobs, err := s.files.ListUnreferencedBlobs(ctx, batchSize+len(failed))
		if err != nil {
			return result, storeFailure(err)
		}

		progressed := false
		for _, blob := range blobs {
			if _, seen := failed[blob.ID]; seen {
				continue
			}
			progressed = true
			result.CandidateCount++
			if err := s.blobs.Delete(ctx, blob.BlobKey); err != nil {
				s.log().Warn("gc delete blob", "blob_id", blob.ID, "error", err)
				failed[blob.ID] = struct{}{}
				result.FailedCount++
				continue
			}
			if err := s.files.DeleteBlob(ctx, blob.ID); err != nil {
				s.log().Warn("gc delete blob row", "blob_id", blob.ID, "error", err)
				failed[blob.ID] = struct{}{}
				result.FailedCount++
				continue
			}
			result.DeletedCount++
			result.ReclaimedBytes += blob.SizeBytes
		}
		if !progressed {
			return result, nil
		}
	}
}

func (s *FileService) validationError(err error) error {
	switch {
	case errors.Is(err, validate.ErrPayloadTooLarge):
		s.metrics.rejected(rejectTooLarge)
		return payloadTooLarge(err)
	case errors.Is(err, validate.ErrUnsupportedMediaType):
		s.metrics.rejected(rejectMediaType)
		return unsupportedMediaType(err)
	default:
		return badRequest(err)
	}
}

func (s *FileService) ready() error {
	if s == nil || s.files == nil || s.blobs == nil || s.policy == nil {
		return internalError(fmt.Errorf("file service is not configured"))
	}
	return nil
}

func (s *FileService) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// DownloadLocation returns the download path for a public name.
func DownloadLocation(publicName string) string {
	return downloadPathPrefix + url.PathEscape(publicName)
}
