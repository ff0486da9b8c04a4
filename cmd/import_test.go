package cmd

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestIsImageFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a.jpg", true},
		{"a.JPEG", true},
		{"dir/b.png", true},
		{"c.webp", true},
		{"notes.txt", false},
		{"archive.jpg.zip", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := isImageFile(tt.name); got != tt.want {
			t.Errorf("isImageFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCollectImages(t *testing.T) {
	dir := t.TempDir()
	for _, rel := range []string{"a.jpg", "sub/b.png", "sub/deep/c.jpeg", "sub/readme.txt"} {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := collectImages([]string{
		filepath.Join(dir, "**", "*"),
		filepath.Join(dir, "*.jpg"),
	})
	if err != nil {
		t.Fatalf("collectImages() error = %v", err)
	}

	want := []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "sub", "b.png"),
		filepath.Join(dir, "sub", "deep", "c.jpeg"),
	}
	slices.Sort(want)
	if !slices.Equal(files, want) {
		t.Errorf("collectImages() = %v, want %v", files, want)
	}
}

func TestCollectImages_BadPattern(t *testing.T) {
	if _, err := collectImages([]string{"[unclosed"}); err == nil {
		t.Error("collectImages() error = nil, want invalid pattern")
	}
}
