package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const defaultPublicPrefix = "/resumes/files"

// LocalStore writes uploads into a directory served by the HTTP router.
type LocalStore struct {
	baseDir      string
	publicPrefix string
}

// NewLocalStore creates the directory if needed and returns a store rooted at it.
func NewLocalStore(baseDir, publicPrefix string) (*LocalStore, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return nil, errors.New("uploads: local directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("uploads: mkdir: %w", err)
	}
	publicPrefix = strings.TrimSpace(publicPrefix)
	if publicPrefix == "" {
		publicPrefix = defaultPublicPrefix
	}
	return &LocalStore{baseDir: baseDir, publicPrefix: publicPrefix}, nil
}

// Dir returns the directory uploads are written to.
func (s *LocalStore) Dir() string {
	return s.baseDir
}

// PublicPrefix returns the URL path prefix under which stored files are served.
func (s *LocalStore) PublicPrefix() string {
	return s.publicPrefix
}

// Save writes the reader to <dir>/<name> and returns its public path.
func (s *LocalStore) Save(ctx context.Context, name string, _ string, r io.Reader) (string, error) {
	finalName, err := sanitizeObjectName(name)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fullPath := filepath.Join(s.baseDir, finalName)
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(fullPath)
		return "", fmt.Errorf("write body: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("close file: %w", err)
	}

	return joinReference(s.publicPrefix, finalName), nil
}
