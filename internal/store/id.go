package store

import (
	"crypto/rand"
	"fmt"
)

const (
	base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	blobIDPrefix   = "bl"
	blobIDLength   = 8
	idMaxAttempts  = 20
)

// GenerateID returns prefix-<length random base36 chars>, drawing again
// while exists reports a collision. A nil exists accepts the first draw.
func GenerateID(prefix string, length int, exists func(string) (bool, error)) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("id prefix is required")
	}
	if length <= 0 {
		return "", fmt.Errorf("id length must be > 0")
	}

	for range idMaxAttempts {
		suffix, err := randomBase36(length)
		if err != nil {
			return "", err
		}
		id := prefix + "-" + suffix
		if exists == nil {
			return id, nil
		}
		taken, err := exists(id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}

	return "", fmt.Errorf("no free %s- id after %d attempts", prefix, idMaxAttempts)
}

// GenerateBlobID returns a fresh id for a blobs row.
func GenerateBlobID(exists func(string) (bool, error)) (string, error) {
	return GenerateID(blobIDPrefix, blobIDLength, exists)
}

func randomBase36(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = base36Alphabet[int(b[i])%len(base36Alphabet)]
	}
	return string(b), nil
}
