package images

import "testing"

func TestIdentify(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
		ext  string
	}{
		{"png", []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a}, ".png"},
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0}, ".jpg"},
		{"gif", []byte{0x47, 0x49, 0x46, 0x38, 0x39, 0x61}, ".gif"},
		{"bmp", []byte{0x42, 0x4d, 0x00}, ".bmp"},
		{"tiff big endian", []byte{0x4d, 0x4d, 0x00, 0x2a}, ".tif"},
		{"tiff little endian", []byte{0x49, 0x49, 0x2a, 0x00}, ".tif"},
		{"ico", []byte{0x00, 0x00, 0x01, 0x00}, ".ico"},
		{"cur", []byte{0x00, 0x00, 0x02, 0x00}, ".cur"},
		{"webp", []byte{0x52, 0x49, 0x46, 0x46, 0x00}, ".webp"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			it := Identify(tc.buf)
			if it == nil {
				t.Fatal("expected a match")
			}
			if it.Ext != tc.ext {
				t.Fatalf("ext = %q, want %q", it.Ext, tc.ext)
			}
		})
	}
}

func TestIdentifyUnknown(t *testing.T) {
	if it := Identify([]byte("GET / HTTP/1.1")); it != nil {
		t.Fatalf("expected no match, got %v", it.Format)
	}
	if it := Identify(nil); it != nil {
		t.Fatal("expected nil for empty buffer")
	}
	// Prefix shorter than any magic sequence.
	if it := Identify([]byte{0x89}); it != nil {
		t.Fatal("expected nil for truncated buffer")
	}
}

func TestContentType(t *testing.T) {
	it := Identify([]byte{0x89, 0x50, 0x4e, 0x47})
	if it == nil {
		t.Fatal("expected png match")
	}
	if got := it.ContentType(); got != "image/png" {
		t.Fatalf("content type = %q, want image/png", got)
	}
}
