package uploads

import (
	"context"
	"errors"
	"io"
	"strings"
)

// BlobStore persists an uploaded binary and returns the reference stored on
// resume versions.
type BlobStore interface {
	Save(ctx context.Context, name string, contentType string, r io.Reader) (string, error)
}

var errInvalidObjectName = errors.New("uploads: invalid object name")

// sanitizeObjectName removes path separators and rejects traversal patterns.
func sanitizeObjectName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errInvalidObjectName
	}
	sanitized := strings.TrimSpace(name)
	sanitized = strings.ReplaceAll(sanitized, "/", "_")
	sanitized = strings.ReplaceAll(sanitized, "\\", "_")
	if sanitized == "" {
		return "", errInvalidObjectName
	}
	return sanitized, nil
}

func joinReference(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + name
}
