package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"fileshare/internal/models"
)

// ErrPublicNameTaken is returned when a file row collides with an existing public name.
var ErrPublicNameTaken = errors.New("public name already taken")

const blobColumns = "id, digest, size_bytes, storage_backend, blob_key, created_at"

var fileSelectColumns = []string{
	"f.public_name",
	"f.original_name",
	"f.content_type",
	"f.size_bytes",
	"f.blob_id",
	"COALESCE(b.digest, '')",
	"f.created_at",
}

// FileFilter narrows ListFiles results.
type FileFilter struct {
	ContentType string
	NamePrefix  string
	Limit       int
	Offset      int
}

// CreateFileWithBlob upserts blob metadata and inserts the file row in one transaction.
// The returned blob is the canonical row for the blob key.
func (s *Store) CreateFileWithBlob(ctx context.Context, blob *models.Blob, file *models.StoredFile) (_ *models.Blob, err error) {
	if blob == nil {
		return nil, fmt.Errorf("blob is required")
	}
	if file == nil {
		return nil, fmt.Errorf("file is required")
	}

	blob.Digest = strings.ToLower(strings.TrimSpace(blob.Digest))
	blob.BlobKey = strings.TrimSpace(blob.BlobKey)
	if blob.Digest == "" {
		return nil, fmt.Errorf("digest is required")
	}
	if blob.BlobKey == "" {
		return nil, fmt.Errorf("blob_key is required")
	}
	if blob.SizeBytes < 0 {
		return nil, fmt.Errorf("size_bytes must be >= 0")
	}
	if strings.TrimSpace(blob.StorageBackend) == "" {
		blob.StorageBackend = "local_cas"
	}
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}

	if strings.TrimSpace(file.PublicName) == "" {
		return nil, fmt.Errorf("public_name is required")
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if strings.TrimSpace(blob.ID) == "" {
		generated, genErr := GenerateBlobID(func(id string) (bool, error) {
			return blobIDExistsTx(ctx, tx, id)
		})
		if genErr != nil {
			err = genErr
			return nil, err
		}
		blob.ID = generated
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO blobs (id, digest, size_bytes, storage_backend, blob_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, blob.ID, blob.Digest, blob.SizeBytes, blob.StorageBackend, blob.BlobKey, dbFormatTime(blob.CreatedAt)); err != nil {
		return nil, err
	}

	canonical, err := scanBlob(tx.QueryRowContext(ctx,
		`SELECT `+blobColumns+` FROM blobs WHERE storage_backend = ? AND blob_key = ?`,
		blob.StorageBackend, blob.BlobKey))
	if err != nil {
		return nil, err
	}
	if canonical == nil {
		err = fmt.Errorf("blob not found after upsert")
		return nil, err
	}

	file.BlobID = canonical.ID
	file.Digest = canonical.Digest
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO files (public_name, original_name, content_type, size_bytes, blob_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, file.PublicName, file.OriginalName, file.ContentType, file.SizeBytes, file.BlobID, dbFormatTime(file.CreatedAt)); err != nil {
		if isUniqueViolation(err, "files.public_name") {
			err = fmt.Errorf("%w: %s", ErrPublicNameTaken, file.PublicName)
		}
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return canonical, nil
}

// GetFile returns one file by public name, or nil when absent.
func (s *Store) GetFile(ctx context.Context, publicName string) (*models.StoredFile, error) {
	query, args, err := sq.Select(fileSelectColumns...).
		From("files f").
		LeftJoin("blobs b ON b.id = f.blob_id").
		Where(sq.Eq{"f.public_name": publicName}).
		ToSql()
	if err != nil {
		return nil, err
	}
	return scanFile(s.db.QueryRowContext(ctx, query, args...))
}

// ListFiles lists files in upload order.
func (s *Store) ListFiles(ctx context.Context, filter FileFilter) ([]models.StoredFile, error) {
	query, args, err := buildFileListQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []models.StoredFile{}
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		if file != nil {
			files = append(files, *file)
		}
	}
	return files, rows.Err()
}

func buildFileListQuery(filter FileFilter) (string, []any, error) {
	builder := sq.Select(fileSelectColumns...).
		From("files f").
		LeftJoin("blobs b ON b.id = f.blob_id")

	if ct := strings.TrimSpace(filter.ContentType); ct != "" {
		builder = builder.Where(sq.Eq{"f.content_type": ct})
	}
	if filter.NamePrefix != "" {
		builder = builder.Where(sq.Expr(`f.public_name LIKE ? ESCAPE '\'`, escapeLike(filter.NamePrefix)+"%"))
	}

	builder = builder.OrderBy("f.created_at ASC", "f.public_name ASC")

	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			builder = builder.Limit(math.MaxInt64)
		}
		builder = builder.Offset(uint64(filter.Offset))
	}
	return builder.ToSql()
}

// PublicNames returns the set of all committed public names.
func (s *Store) PublicNames(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT public_name FROM files")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := map[string]struct{}{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = struct{}{}
	}
	return names, rows.Err()
}

// FileStats returns the live file count and byte total.
func (s *Store) FileStats(ctx context.Context) (models.FileStats, error) {
	stats := models.FileStats{}
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM files").Scan(&stats.TotalFiles, &stats.TotalBytes)
	return stats, err
}

// DeleteFile removes one file row. It reports whether a row existed.
func (s *Store) DeleteFile(ctx context.Context, publicName string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE public_name = ?", publicName)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClearFiles removes every file and blob row.
func (s *Store) ClearFiles(ctx context.Context) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM files"); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM blobs"); err != nil {
		return err
	}
	return tx.Commit()
}

// GetBlob returns one blob by id.
func (s *Store) GetBlob(ctx context.Context, id string) (*models.Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = ?`, id)
	return scanBlob(row)
}

// ListUnreferencedBlobs returns blobs that no file points at.
func (s *Store) ListUnreferencedBlobs(ctx context.Context, limit int) ([]models.Blob, error) {
	query := `
		SELECT b.id, b.digest, b.size_bytes, b.storage_backend, b.blob_key, b.created_at
		FROM blobs b
		LEFT JOIN files f ON f.blob_id = b.id
		WHERE f.public_name IS NULL
		ORDER BY b.created_at ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := []models.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			blobs = append(blobs, *blob)
		}
	}
	return blobs, rows.Err()
}

// DeleteBlob deletes one blob row by id.
func (s *Store) DeleteBlob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE id = ?", id)
	return err
}

func blobIDExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var exists int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM blobs WHERE id = ? LIMIT 1", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanFile(scanner interface {
	Scan(dest ...any) error
}) (*models.StoredFile, error) {
	file := models.StoredFile{}
	var createdAt string

	err := scanner.Scan(
		&file.PublicName,
		&file.OriginalName,
		&file.ContentType,
		&file.SizeBytes,
		&file.BlobID,
		&file.Digest,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	parsed, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	file.CreatedAt = parsed
	return &file, nil
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.Blob, error) {
	blob := models.Blob{}
	var createdAt string

	err := scanner.Scan(&blob.ID, &blob.Digest, &blob.SizeBytes, &blob.StorageBackend, &blob.BlobKey, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	parsed, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	blob.CreatedAt = parsed
	return &blob, nil
}

func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
