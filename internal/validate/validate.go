// Package validate decides whether an upload may be stored.
package validate

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

const (
	DefaultMaxFileBytes    int64 = 50 * 1024
	DefaultMaxStorageBytes int64 = 200 * 1024

	// MaxFileBytesLimit caps the per-file limit so read bounds derived
	// from it stay well inside int64.
	MaxFileBytesLimit int64 = 1 << 40
)

var (
	ErrPayloadTooLarge      = errors.New("payload too large")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

// DefaultAllowedMediaTypes is the allowlist used when none is configured.
var DefaultAllowedMediaTypes = []string{"text/plain", "image/jpeg", "image/png"}

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Policy holds upload limits and the media-type allowlist.
// A zero MaxStorageBytes disables the quota check.
type Policy struct {
	MaxFileBytes      int64
	MaxStorageBytes   int64
	AllowedMediaTypes map[string]struct{}
	RejectMismatch    bool
}

// Input describes one candidate upload.
type Input struct {
	DeclaredMediaType string
	SizeBytes         int64
	UsedBytes         int64
	Content           []byte
}

// DefaultPolicy returns the stock limits.
func DefaultPolicy() *Policy {
	p, _ := NewPolicy(DefaultMaxFileBytes, DefaultMaxStorageBytes, DefaultAllowedMediaTypes, true)
	return p
}

// NewPolicy builds a policy, normalizing the allowlist entries.
func NewPolicy(maxFileBytes, maxStorageBytes int64, allowed []string, rejectMismatch bool) (*Policy, error) {
	if maxFileBytes <= 0 {
		return nil, fmt.Errorf("max file bytes must be > 0")
	}
	if maxFileBytes > MaxFileBytesLimit {
		return nil, fmt.Errorf("max file bytes must be <= %d", MaxFileBytesLimit)
	}
	if maxStorageBytes < 0 {
		return nil, fmt.Errorf("max storage bytes must be >= 0")
	}
	set := make(map[string]struct{}, len(allowed))
	for _, raw := range allowed {
		mt, err := NormalizeMediaType(raw)
		if err != nil {
			return nil, fmt.Errorf("allowed media type %q: %w", raw, err)
		}
		if mt == "" {
			continue
		}
		set[mt] = struct{}{}
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("at least one allowed media type is required")
	}
	return &Policy{
		MaxFileBytes:      maxFileBytes,
		MaxStorageBytes:   maxStorageBytes,
		AllowedMediaTypes: set,
		RejectMismatch:    rejectMismatch,
	}, nil
}

// NormalizeMediaType strips parameters and lower-cases a media type.
// An empty input yields an empty result.
func NormalizeMediaType(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", fmt.Errorf("invalid media type: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(parsed)), nil
}

// CheckSize applies the per-file and quota limits only.
func (p *Policy) CheckSize(size, used int64) error {
	if size > p.MaxFileBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPayloadTooLarge, size, p.MaxFileBytes)
	}
	if p.MaxStorageBytes > 0 && used+size > p.MaxStorageBytes {
		return fmt.Errorf("%w: storage quota of %d bytes exceeded", ErrPayloadTooLarge, p.MaxStorageBytes)
	}
	return nil
}

// Validate returns the normalized media type, or an error wrapping
// ErrPayloadTooLarge or ErrUnsupportedMediaType.
func (p *Policy) Validate(in Input) (string, error) {
	if err := p.CheckSize(in.SizeBytes, in.UsedBytes); err != nil {
		return "", err
	}

	mediaType, err := NormalizeMediaType(in.DeclaredMediaType)
	if err != nil || mediaType == "" {
		return "", fmt.Errorf("%w: missing or malformed content type", ErrUnsupportedMediaType)
	}
	if _, ok := p.AllowedMediaTypes[mediaType]; !ok {
		return "", fmt.Errorf("%w: %s is not allowed", ErrUnsupportedMediaType, mediaType)
	}

	if p.RejectMismatch && !contentMatches(mediaType, in.Content) {
		return "", fmt.Errorf("%w: content does not match %s", ErrUnsupportedMediaType, mediaType)
	}
	return mediaType, nil
}

func contentMatches(mediaType string, content []byte) bool {
	switch mediaType {
	case "image/png":
		return bytes.HasPrefix(content, pngSignature)
	case "image/jpeg":
		return len(content) >= 4 &&
			content[0] == 0xFF && content[1] == 0xD8 &&
			content[len(content)-2] == 0xFF && content[len(content)-1] == 0xD9
	case "text/plain":
		return utf8.Valid(content)
	}

	for detected := mimetype.Detect(content); detected != nil; detected = detected.Parent() {
		if detected.Is(mediaType) {
			return true
		}
	}
	return false
}
