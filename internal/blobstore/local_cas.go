package blobstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	localTmpDirName = "tmp"
	localBackend    = "local_cas"
)

// LocalCASOptions tunes a LocalCAS.
type LocalCASOptions struct {
	// Digest selects the content hash (sha256 or blake2b).
	Digest string
	// Compress stores new blobs zstd-compressed.
	Compress bool
}

// LocalCAS stores blob bytes in a local content-addressed tree.
type LocalCAS struct {
	root     string
	digest   string
	compress bool
}

// NewLocalCAS creates a local CAS rooted at root.
func NewLocalCAS(root string, opts LocalCASOptions) (*LocalCAS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local cas root is required")
	}
	digest, err := ParseDigest(opts.Digest)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, localTmpDirName), 0o755); err != nil {
		return nil, err
	}
	return &LocalCAS{root: abs, digest: digest, compress: opts.Compress}, nil
}

// Backend names the storage backend recorded on blob rows.
func (c *LocalCAS) Backend() string {
	return localBackend
}

// Root returns the absolute root directory.
func (c *LocalCAS) Root() string {
	if c == nil {
		return ""
	}
	return c.root
}

// Put streams bytes, computes the digest, and stores content by digest.
func (c *LocalCAS) Put(ctx context.Context, r io.Reader) (BlobPutResult, error) {
	var zero BlobPutResult
	if c == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	h, err := newHasher(c.digest)
	if err != nil {
		return zero, err
	}

	tmp, err := os.CreateTemp(filepath.Join(c.root, localTmpDirName), "put-*")
	if err != nil {
		return zero, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	var sink io.Writer = tmp
	var enc *zstd.Encoder
	if c.compress {
		enc, err = zstd.NewWriter(tmp)
		if err != nil {
			cleanup()
			return zero, err
		}
		sink = enc
	}

	n, err := io.Copy(io.MultiWriter(sink, h), r)
	if err != nil {
		if enc != nil {
			_ = enc.Close()
		}
		cleanup()
		return zero, err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			cleanup()
			return zero, err
		}
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return zero, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, err
	}

	digest := hex.EncodeToString(h.Sum(nil))
	key := casKeyFromDigest(c.digest, digest, c.compress)
	result := BlobPutResult{Digest: digest, SizeBytes: n, BlobKey: key}
	dst := filepath.Join(c.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		cleanup()
		return zero, err
	}

	if _, err := os.Stat(dst); err == nil {
		_ = os.Remove(tmpPath)
		return result, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		cleanup()
		return zero, err
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		if _, statErr := os.Stat(dst); statErr == nil {
			_ = os.Remove(tmpPath)
			return result, nil
		}
		cleanup()
		return zero, err
	}

	return result, nil
}

// Open returns a reader for blob key content.
func (c *LocalCAS) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := c.pathFromKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blob %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("open blob %q: %w", key, err)
	}
	if !isCompressedKey(key) {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open compressed blob %q: %w", key, err)
	}
	return &zstdReadCloser{dec: dec, file: f}, nil
}

// Delete removes a blob object. Missing files are ignored.
func (c *LocalCAS) Delete(ctx context.Context, key string) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := c.pathFromKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Clear removes every stored blob. In-flight temp files are left alone.
func (c *LocalCAS) Clear(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == localTmpDirName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.root, entry.Name())); err != nil {
			return fmt.Errorf("clear blobs: %w", err)
		}
	}
	return nil
}

// Stats walks the tree and reports blob count and on-disk bytes.
func (c *LocalCAS) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if c == nil {
		return stats, fmt.Errorf("blob store is not configured")
	}
	tmpDir := filepath.Join(c.root, localTmpDirName)
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path == tmpDir {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		stats.Count++
		stats.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (c *LocalCAS) pathFromKey(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.root, filepath.FromSlash(clean)), nil
}

type zstdReadCloser struct {
	dec  *zstd.Decoder
	file *os.File
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.file.Close()
}
