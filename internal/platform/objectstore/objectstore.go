// Package objectstore hands out short-lived URLs for prescription documents.
// Clients transfer the bytes directly with the storage backend; the API only
// signs URLs and checks for existence.
package objectstore

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/rollcare/rollcare/internal/platform/apperr"
)

var ErrObjectNotFound = errors.New("object not found")

// AllowedContentTypes maps accepted document MIME types to their extension.
var AllowedContentTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

// Store is the object-storage collaborator.
type Store interface {
	PresignUpload(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error)
	PresignDownload(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, bucket, key string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// ExtensionFor validates contentType and returns the key extension for it.
func ExtensionFor(contentType string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	ext, ok := AllowedContentTypes[ct]
	if !ok {
		return "", apperr.Invalid(apperr.Detail{
			Field:   "contentType",
			Message: "contentType must be one of: application/pdf, image/jpeg, image/png",
		})
	}
	return ext, nil
}

// Key joins parts into an object key, dropping empty segments.
func Key(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			kept = append(kept, p)
		}
	}
	return path.Join(kept...)
}
