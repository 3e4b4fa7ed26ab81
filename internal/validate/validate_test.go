package validate

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func jpegBytes(size int) []byte {
	if size < 4 {
		size = 4
	}
	b := bytes.Repeat([]byte{0x00}, size)
	b[0], b[1] = 0xFF, 0xD8
	b[size-2], b[size-1] = 0xFF, 0xD9
	return b
}

func pngBytes() []byte {
	return append(append([]byte{}, pngSignature...), []byte("IHDR....")...)
}

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy(10, 0, []string{" Text/Plain; charset=utf-8 ", "", "image/png"}, true)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	if _, ok := p.AllowedMediaTypes["text/plain"]; !ok {
		t.Fatalf("expected normalized text/plain, got %v", p.AllowedMediaTypes)
	}
	if len(p.AllowedMediaTypes) != 2 {
		t.Fatalf("expected 2 allowed types, got %v", p.AllowedMediaTypes)
	}

	if _, err := NewPolicy(0, 0, []string{"text/plain"}, true); err == nil {
		t.Fatal("expected error for zero max file bytes")
	}
	if _, err := NewPolicy(math.MaxInt64, 0, []string{"text/plain"}, true); err == nil {
		t.Fatal("expected error for max file bytes above the limit")
	}
	if _, err := NewPolicy(MaxFileBytesLimit, 0, []string{"text/plain"}, true); err != nil {
		t.Fatalf("expected limit itself to be accepted: %v", err)
	}
	if _, err := NewPolicy(10, -1, []string{"text/plain"}, true); err == nil {
		t.Fatal("expected error for negative quota")
	}
	if _, err := NewPolicy(10, 0, nil, true); err == nil {
		t.Fatal("expected error for empty allowlist")
	}
	if _, err := NewPolicy(10, 0, []string{"not a type"}, true); err == nil {
		t.Fatal("expected error for malformed allowlist entry")
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.MaxFileBytes != 50*1024 || p.MaxStorageBytes != 200*1024 {
		t.Fatalf("unexpected default limits: %#v", p)
	}
	for _, mt := range []string{"text/plain", "image/jpeg", "image/png"} {
		if _, ok := p.AllowedMediaTypes[mt]; !ok {
			t.Fatalf("expected %s in default allowlist", mt)
		}
	}
	if !p.RejectMismatch {
		t.Fatal("expected mismatch rejection on by default")
	}
}

func TestValidate(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name    string
		in      Input
		want    string
		wantErr error
	}{
		{name: "jpeg ok", in: Input{DeclaredMediaType: "image/jpeg", SizeBytes: 16496, Content: jpegBytes(16496)}, want: "image/jpeg"},
		{name: "png ok", in: Input{DeclaredMediaType: "image/png", SizeBytes: 16, Content: pngBytes()}, want: "image/png"},
		{name: "text ok with params", in: Input{DeclaredMediaType: "Text/Plain; charset=utf-8", SizeBytes: 5, Content: []byte("héllo")}, want: "text/plain"},
		{name: "empty text ok", in: Input{DeclaredMediaType: "text/plain"}, want: "text/plain"},
		{name: "exactly at file limit", in: Input{DeclaredMediaType: "text/plain", SizeBytes: 50 * 1024, Content: bytes.Repeat([]byte("a"), 50*1024)}, want: "text/plain"},
		{name: "over file limit", in: Input{DeclaredMediaType: "text/plain", SizeBytes: 50*1024 + 1}, wantErr: ErrPayloadTooLarge},
		{name: "over quota", in: Input{DeclaredMediaType: "text/plain", SizeBytes: 10, UsedBytes: 200*1024 - 5}, wantErr: ErrPayloadTooLarge},
		{name: "size checked before type", in: Input{DeclaredMediaType: "application/zip", SizeBytes: 1 << 20}, wantErr: ErrPayloadTooLarge},
		{name: "missing type", in: Input{SizeBytes: 1, Content: []byte("a")}, wantErr: ErrUnsupportedMediaType},
		{name: "malformed type", in: Input{DeclaredMediaType: "///", SizeBytes: 1, Content: []byte("a")}, wantErr: ErrUnsupportedMediaType},
		{name: "disallowed type", in: Input{DeclaredMediaType: "application/pdf", SizeBytes: 4, Content: []byte("%PDF")}, wantErr: ErrUnsupportedMediaType},
		{name: "png declared jpeg content", in: Input{DeclaredMediaType: "image/png", SizeBytes: 8, Content: jpegBytes(8)}, wantErr: ErrUnsupportedMediaType},
		{name: "jpeg missing end marker", in: Input{DeclaredMediaType: "image/jpeg", SizeBytes: 4, Content: []byte{0xFF, 0xD8, 0x00, 0x00}}, wantErr: ErrUnsupportedMediaType},
		{name: "text with invalid utf8", in: Input{DeclaredMediaType: "text/plain", SizeBytes: 2, Content: []byte{0xC3, 0x28}}, wantErr: ErrUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Validate(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestValidateMismatchToggle(t *testing.T) {
	p, err := NewPolicy(1024, 0, []string{"image/png"}, false)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	if _, err := p.Validate(Input{DeclaredMediaType: "image/png", SizeBytes: 3, Content: []byte("abc")}); err != nil {
		t.Fatalf("expected mismatch to pass when rejection disabled, got %v", err)
	}
}

func TestValidateDetectsOtherAllowedTypes(t *testing.T) {
	p, err := NewPolicy(1024, 0, []string{"application/pdf", "application/json"}, true)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}

	pdf := []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n")
	if _, err := p.Validate(Input{DeclaredMediaType: "application/pdf", SizeBytes: int64(len(pdf)), Content: pdf}); err != nil {
		t.Fatalf("expected pdf to validate, got %v", err)
	}

	notPDF := []byte("just text")
	if _, err := p.Validate(Input{DeclaredMediaType: "application/pdf", SizeBytes: int64(len(notPDF)), Content: notPDF}); !errors.Is(err, ErrUnsupportedMediaType) {
		t.Fatalf("expected mismatch for fake pdf, got %v", err)
	}

	js := []byte(`{"a": 1}`)
	if _, err := p.Validate(Input{DeclaredMediaType: "application/json", SizeBytes: int64(len(js)), Content: js}); err != nil {
		t.Fatalf("expected json to validate, got %v", err)
	}
}

func TestCheckSizeQuotaDisabled(t *testing.T) {
	p, err := NewPolicy(100, 0, []string{"text/plain"}, true)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	if err := p.CheckSize(100, 1<<40); err != nil {
		t.Fatalf("expected unlimited quota, got %v", err)
	}
}
