package blobstore

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const s3Backend = "s3"

// S3Config configures an S3-compatible blob backend.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Digest    string
}

// S3Store keeps blobs in an S3-compatible bucket using the same
// content-addressed key layout as LocalCAS.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
	digest string
}

// NewS3Store connects to the endpoint and ensures the bucket exists.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	digest, err := ParseDigest(cfg.Digest)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
		digest: digest,
	}, nil
}

// Backend names the storage backend recorded on blob rows.
func (s *S3Store) Backend() string {
	return s3Backend
}

// Put spools content to a temp file to learn its digest, then uploads it
// unless an object with the same key already exists.
func (s *S3Store) Put(ctx context.Context, r io.Reader) (BlobPutResult, error) {
	var zero BlobPutResult
	if s == nil || s.client == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	h, err := newHasher(s.digest)
	if err != nil {
		return zero, err
	}
	tmp, err := os.CreateTemp("", "fileshare-s3-*")
	if err != nil {
		return zero, err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		return zero, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return zero, err
	}

	digest := hex.EncodeToString(h.Sum(nil))
	key := casKeyFromDigest(s.digest, digest, false)
	result := BlobPutResult{Digest: digest, SizeBytes: n, BlobKey: key}

	if _, err := s.client.StatObject(ctx, s.bucket, s.objectName(key), minio.StatObjectOptions{}); err == nil {
		return result, nil
	} else if !isNoSuchKey(err) {
		return zero, fmt.Errorf("stat object %q: %w", key, err)
	}

	if _, err := s.client.PutObject(ctx, s.bucket, s.objectName(key), tmp, n, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	}); err != nil {
		return zero, fmt.Errorf("put object %q: %w", key, err)
	}
	return result, nil
}

// Open reads the whole object before returning. Blobs are bounded by the
// upload size limit, and the returned reader must not depend on the object
// still existing once callers release their locks.
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	clean, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(clean), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("blob %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("stat object %q: %w", key, err)
	}
	data, err := io.ReadAll(obj)
	_ = obj.Close()
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("blob %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes a blob object. Missing objects are ignored.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("blob store is not configured")
	}
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, s.objectName(clean), minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

// Clear removes every object under the configured prefix.
func (s *S3Store) Clear(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("blob store is not configured")
	}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.listPrefix(), Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("list objects: %w", obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove object %q: %w", obj.Key, err)
		}
	}
	return nil
}

// Stats lists objects under the prefix and sums their sizes.
func (s *S3Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if s == nil || s.client == nil {
		return stats, fmt.Errorf("blob store is not configured")
	}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.listPrefix(), Recursive: true}) {
		if obj.Err != nil {
			return Stats{}, fmt.Errorf("list objects: %w", obj.Err)
		}
		stats.Count++
		stats.Bytes += obj.Size
	}
	return stats, nil
}

func (s *S3Store) objectName(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *S3Store) listPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
