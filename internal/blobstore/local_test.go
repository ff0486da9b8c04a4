package blobstore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"regexp"
	"testing"

	"github.com/kozaktomas/facewatch/internal/config"
)

func TestLocalStore_Put(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}

	ref, err := s.Put(context.Background(), "sightings/a.jpg", "image/jpeg", []byte("jpeg bytes"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if ref != "sightings/a.jpg" {
		t.Errorf("Put() ref = %q, want sightings/a.jpg", ref)
	}

	p, err := s.Path(ref)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read stored blob: %v", err)
	}
	if !bytes.Equal(got, []byte("jpeg bytes")) {
		t.Errorf("stored = %q", got)
	}
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "../outside.jpg", "sightings/../../x", "a/./b"} {
		if _, err := s.Put(context.Background(), key, "image/jpeg", nil); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestLocalStore_CanceledContext(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Put(ctx, "sightings/a.jpg", "image/jpeg", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Put() error = %v, want context.Canceled", err)
	}
}

func TestNewKey(t *testing.T) {
	tests := []struct {
		contentType string
		pattern     string
	}{
		{"image/jpeg", `^sightings/[0-9a-f-]{36}\.jpg$`},
		{"image/png", `^sightings/[0-9a-f-]{36}\.png$`},
		{"application/x-unknown-thing", `^sightings/[0-9a-f-]{36}\.bin$`},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			key := NewKey(tt.contentType)
			if !regexp.MustCompile(tt.pattern).MatchString(key) {
				t.Errorf("NewKey() = %q, want match %s", key, tt.pattern)
			}
		})
	}
	if NewKey("image/jpeg") == NewKey("image/jpeg") {
		t.Error("NewKey() returned the same key twice")
	}
}

func TestNew(t *testing.T) {
	s, err := New(context.Background(), config.BlobConfig{Backend: config.BlobLocal, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := s.(*LocalStore); !ok {
		t.Errorf("New() = %T, want *LocalStore", s)
	}
	if _, err := New(context.Background(), config.BlobConfig{Backend: "ftp"}); err == nil {
		t.Error("New() with unknown backend should fail")
	}
}
