package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsPDFFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"pdf", write("resume.pdf", "%PDF-1.4\n..."), true},
		{"upper case extension", write("RESUME.PDF", "%PDF-1.7"), true},
		{"wrong signature", write("fake.pdf", "hello world"), false},
		{"too short", write("short.pdf", "%P"), false},
		{"text file", write("notes.txt", "%PDF-1.4"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPDFFile(tt.path); got != tt.want {
				t.Errorf("IsPDFFile(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestValidateInputFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.pdf")
	if err := os.WriteFile(file, []byte("%PDF-"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := ValidateInputFile(file); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateInputFile(""); err == nil {
		t.Error("expected error for empty name")
	}
	if err := ValidateInputFile(dir); err == nil {
		t.Error("expected error for directory")
	}
	if err := ValidateInputFile(filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := map[int64]string{
		512:             "512 B",
		2048:            "2.0 KB",
		5 * 1024 * 1024: "5.0 MB",
	}
	for size, want := range tests {
		if got := FormatFileSize(size); got != want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", size, got, want)
		}
	}
}
