package blobstore

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"path"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	DigestSHA256  = "sha256"
	DigestBLAKE2b = "blake2b"

	compressedKeySuffix = ".zst"
)

// ParseDigest normalizes a digest algorithm name. Empty selects sha256.
func ParseDigest(raw string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "", DigestSHA256:
		return DigestSHA256, nil
	case DigestBLAKE2b, "blake2b-256":
		return DigestBLAKE2b, nil
	default:
		return "", fmt.Errorf("unsupported digest algorithm: %s", raw)
	}
}

func newHasher(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case DigestSHA256:
		return sha256.New(), nil
	case DigestBLAKE2b:
		return blake2b.New256(nil)
	default:
		return nil, fmt.Errorf("unsupported digest algorithm: %s", algorithm)
	}
}

func casKeyFromDigest(algorithm, digest string, compressed bool) string {
	key := path.Join(algorithm, digest[0:2], digest[2:4], digest)
	if compressed {
		key += compressedKeySuffix
	}
	return key
}

func isCompressedKey(key string) bool {
	return strings.HasSuffix(key, compressedKeySuffix)
}

// cleanKey validates a relative slash-separated blob key.
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("blob key is required")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("blob key must be relative")
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid blob key")
	}
	return clean, nil
}
