package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	pdfContentType  = "application/pdf"
	defaultMaxBytes = 10 << 20
)

var (
	ErrMissingFile     = errors.New("uploads: no file uploaded")
	ErrUnsupportedType = errors.New("uploads: only PDF files are allowed")
	ErrTooLarge        = errors.New("uploads: file exceeds size limit")
	ErrStorage         = errors.New("uploads: storage failure")
)

// File is an uploaded file as received from a multipart form.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// ServiceConfig describes the dependencies of the upload service.
type ServiceConfig struct {
	Store    BlobStore
	MaxBytes int64
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service validates resume PDFs and hands them to a BlobStore.
type Service struct {
	store    BlobStore
	maxBytes int64
	clock    func() time.Time
	logger   *zap.Logger
}

// NewService constructs the upload service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("uploads: blob store required")
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    cfg.Store,
		maxBytes: maxBytes,
		clock:    clock,
		logger:   logger,
	}, nil
}

// MaxBytes returns the largest accepted upload.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload checks that file is a PDF within the size limit, stores it under a
// generated name, and returns the stored reference.
func (s *Service) Upload(ctx context.Context, file File) (string, error) {
	if file.Content == nil {
		return "", ErrMissingFile
	}
	if !isDeclaredPDF(file.ContentType) {
		return "", fmt.Errorf("%w: declared %q", ErrUnsupportedType, file.ContentType)
	}
	if file.Size > s.maxBytes {
		return "", ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(file.Content, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: read upload: %v", ErrMissingFile, err)
	}
	if len(data) == 0 {
		return "", ErrMissingFile
	}
	if int64(len(data)) > s.maxBytes {
		return "", ErrTooLarge
	}

	detected := mimetype.Detect(data)
	if !detected.Is(pdfContentType) {
		return "", fmt.Errorf("%w: detected %s", ErrUnsupportedType, detected.String())
	}

	name := s.objectName()
	reference, err := s.store.Save(ctx, name, pdfContentType, bytes.NewReader(data))
	if err != nil {
		s.logger.Error("upload failed",
			zap.String("operation", "uploads.save"),
			zap.String("object", name),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.logger.Info("resume uploaded",
		zap.String("object", name),
		zap.String("original_name", file.Name),
		zap.Int("bytes", len(data)),
	)
	return reference, nil
}

func (s *Service) objectName() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("resume-%d-%s.pdf", s.clock().UnixMilli(), suffix)
}

func isDeclaredPDF(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(contentType))
	if err != nil {
		return false
	}
	return strings.EqualFold(mediaType, pdfContentType)
}
