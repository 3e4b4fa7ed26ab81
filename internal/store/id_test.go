package store

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		length  int
		taken   int
		wantErr bool
	}{
		{name: "first draw", prefix: "bl", length: 8},
		{name: "retries collisions", prefix: "bl", length: 8, taken: 2},
		{name: "gives up", prefix: "bl", length: 8, taken: idMaxAttempts, wantErr: true},
		{name: "empty prefix", prefix: "", length: 8, wantErr: true},
		{name: "zero length", prefix: "bl", length: 0, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			exists := func(string) (bool, error) {
				calls++
				return calls <= tc.taken, nil
			}
			id, err := GenerateID(tc.prefix, tc.length, exists)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got id %q", id)
				}
				return
			}
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if calls != tc.taken+1 {
				t.Fatalf("expected %d exists checks, got %d", tc.taken+1, calls)
			}
			suffix, ok := strings.CutPrefix(id, tc.prefix+"-")
			if !ok || len(suffix) != tc.length {
				t.Fatalf("unexpected id shape %q", id)
			}
			if strings.Trim(suffix, base36Alphabet) != "" {
				t.Fatalf("id %q has characters outside base36", id)
			}
		})
	}
}

func TestGenerateIDPropagatesLookupError(t *testing.T) {
	boom := errors.New("db locked")
	_, err := GenerateID("bl", 4, func(string) (bool, error) { return false, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestGenerateBlobID(t *testing.T) {
	id, err := GenerateBlobID(nil)
	if err != nil {
		t.Fatalf("generate blob id: %v", err)
	}
	if !strings.HasPrefix(id, "bl-") || len(id) != len("bl-")+blobIDLength {
		t.Fatalf("unexpected blob id %q", id)
	}
}
