package store

import (
	"context"

	"fileshare/internal/models"
)

// FileStore abstracts the metadata registry backing the file service.
type FileStore interface {
	CreateFileWithBlob(ctx context.Context, blob *models.Blob, file *models.StoredFile) (*models.Blob, error)
	GetFile(ctx context.Context, publicName string) (*models.StoredFile, error)
	ListFiles(ctx context.Context, filter FileFilter) ([]models.StoredFile, error)
	PublicNames(ctx context.Context) (map[string]struct{}, error)
	FileStats(ctx context.Context) (models.FileStats, error)
	DeleteFile(ctx context.Context, publicName string) (bool, error)
	ClearFiles(ctx context.Context) error
	GetBlob(ctx context.Context, id string) (*models.Blob, error)
	ListUnreferencedBlobs(ctx context.Context, limit int) ([]models.Blob, error)
	DeleteBlob(ctx context.Context, id string) error
	StoreInfo(ctx context.Context) (*StoreInfo, error)
}

var _ FileStore = (*Store)(nil)
