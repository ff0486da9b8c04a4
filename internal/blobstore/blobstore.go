// Package blobstore keeps uploaded sighting images outside the repository.
// Observations store only the reference returned by Put.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/facewatch/internal/config"
)

// ErrInvalidKey is returned for keys that escape the store root.
var ErrInvalidKey = errors.New("invalid blob key")

// Store persists image bytes under a key.
type Store interface {
	// Put writes data under key and returns the reference to record on the observation.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// New returns the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Backend {
	case config.BlobLocal, "":
		return NewLocalStore(cfg.Dir)
	case config.BlobMinio:
		return NewMinioStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// NewKey returns a fresh key of the form sightings/<uuid><ext>.
func NewKey(contentType string) string {
	ext, ok := extensions[contentType]
	if !ok {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		} else {
			ext = ".bin"
		}
	}
	return "sightings/" + uuid.NewString() + ext
}

func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	cleaned := path.Clean("/" + key)[1:]
	if key == "" || cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}
