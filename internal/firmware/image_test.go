package firmware

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestParse(t *testing.T) {
	raw := []byte{0xA0, 0xA1, 0xA2, 0xA3, 1, 2, 3, 4, 5}
	img, err := Parse(raw, 4)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(img.Header, raw[:4]) {
		t.Errorf("header = % X, want % X", img.Header, raw[:4])
	}
	if !bytes.Equal(img.Payload, raw[4:]) {
		t.Errorf("payload = % X, want % X", img.Payload, raw[4:])
	}
	if img.Size() != 5 {
		t.Errorf("size = %d, want 5", img.Size())
	}
}

func TestParse_NoHeader(t *testing.T) {
	img, err := Parse([]byte{1, 2, 3}, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(img.Header) != 0 {
		t.Errorf("header = % X, want empty", img.Header)
	}
	if img.Size() != 3 {
		t.Errorf("size = %d, want 3", img.Size())
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		raw        []byte
		headerSize int
	}{
		{"negative header size", []byte{1, 2, 3}, -1},
		{"file equals header", []byte{1, 2, 3}, 3},
		{"file smaller than header", []byte{1}, 8},
		{"empty file", nil, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.raw, tc.headerSize); err == nil {
				t.Error("Parse succeeded")
			}
		})
	}
}

func TestParse_CopiesInput(t *testing.T) {
	raw := []byte{9, 9, 1, 2}
	img, err := Parse(raw, 2)
	if err != nil {
		t.Fatal(err)
	}
	raw[2] = 0xFF
	if img.Payload[0] != 1 {
		t.Error("payload aliases the caller's buffer")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.bin")
	raw := append([]byte{0xDE, 0xAD}, bytes.Repeat([]byte{0x55}, 100)...)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	img, err := Load(path, 2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Size() != 100 {
		t.Errorf("size = %d, want 100", img.Size())
	}
	if !bytes.Equal(img.Header, raw[:2]) {
		t.Errorf("header = % X, want % X", img.Header, raw[:2])
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.bin"), 0); err == nil {
		t.Error("Load succeeded on a missing file")
	}
}
