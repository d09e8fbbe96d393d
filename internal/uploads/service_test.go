package uploads

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type recordingStore struct {
	names        []string
	contentTypes []string
	bodies       [][]byte
	err          error
}

func (s *recordingStore) Save(_ context.Context, name string, contentType string, r io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.names = append(s.names, name)
	s.contentTypes = append(s.contentTypes, contentType)
	s.bodies = append(s.bodies, body)
	return "/stored/" + name, nil
}

func newTestUploadService(t *testing.T, store BlobStore, maxBytes int64, logger *zap.Logger) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Store:    store,
		MaxBytes: maxBytes,
		Clock: func() time.Time {
			return time.UnixMilli(1700000000123)
		},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("failed to build upload service: %v", err)
	}
	return service
}

func TestUploadStoresPDF(t *testing.T) {
	store := &recordingStore{}
	core, logs := observer.New(zapcore.InfoLevel)
	service := newTestUploadService(t, store, 1024, zap.New(core))

	reference, err := service.Upload(context.Background(), File{
		Name:        "cv.pdf",
		ContentType: "application/pdf",
		Size:        int64(len(samplePDF)),
		Content:     bytes.NewReader(samplePDF),
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if len(store.names) != 1 {
		t.Fatalf("expected a single stored object, got %d", len(store.names))
	}
	pattern := regexp.MustCompile(`^resume-1700000000123-[0-9a-f]{8}\.pdf$`)
	if !pattern.MatchString(store.names[0]) {
		t.Fatalf("unexpected object name %q", store.names[0])
	}
	if reference != "/stored/"+store.names[0] {
		t.Fatalf("unexpected reference %q", reference)
	}
	if store.contentTypes[0] != "application/pdf" {
		t.Fatalf("unexpected content type %q", store.contentTypes[0])
	}
	if !bytes.Equal(store.bodies[0], samplePDF) {
		t.Fatalf("stored body differs from upload")
	}
	if logs.FilterMessage("resume uploaded").Len() != 1 {
		t.Fatalf("expected upload to be logged")
	}
}

func TestUploadGeneratesDistinctNames(t *testing.T) {
	store := &recordingStore{}
	service := newTestUploadService(t, store, 1024, nil)

	for i := 0; i < 2; i++ {
		if _, err := service.Upload(context.Background(), File{
			ContentType: "application/pdf",
			Content:     bytes.NewReader(samplePDF),
		}); err != nil {
			t.Fatalf("upload %d failed: %v", i, err)
		}
	}
	if store.names[0] == store.names[1] {
		t.Fatalf("expected distinct names within the same millisecond, got %q twice", store.names[0])
	}
}

func TestUploadRejectsInvalidFiles(t *testing.T) {
	oversized := append(append([]byte{}, samplePDF...), bytes.Repeat([]byte("x"), 256)...)

	testCases := []struct {
		name    string
		file    File
		wantErr error
	}{
		{
			name:    "missing-content",
			file:    File{ContentType: "application/pdf"},
			wantErr: ErrMissingFile,
		},
		{
			name:    "empty-content",
			file:    File{ContentType: "application/pdf", Content: bytes.NewReader(nil)},
			wantErr: ErrMissingFile,
		},
		{
			name:    "declared-image",
			file:    File{ContentType: "image/png", Content: bytes.NewReader(samplePDF)},
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "declared-missing",
			file:    File{Content: bytes.NewReader(samplePDF)},
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "content-not-pdf",
			file:    File{ContentType: "application/pdf", Content: strings.NewReader("just some text pretending")},
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "declared-size-too-large",
			file:    File{ContentType: "application/pdf", Size: 4096, Content: bytes.NewReader(samplePDF)},
			wantErr: ErrTooLarge,
		},
		{
			name:    "streamed-size-too-large",
			file:    File{ContentType: "application/pdf", Content: bytes.NewReader(oversized)},
			wantErr: ErrTooLarge,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			store := &recordingStore{}
			service := newTestUploadService(t, store, 200, nil)
			_, err := service.Upload(context.Background(), testCase.file)
			if !errors.Is(err, testCase.wantErr) {
				t.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
			if len(store.names) != 0 {
				t.Fatalf("expected nothing stored, got %v", store.names)
			}
		})
	}
}

func TestUploadAcceptsContentTypeParameters(t *testing.T) {
	store := &recordingStore{}
	service := newTestUploadService(t, store, 1024, nil)

	if _, err := service.Upload(context.Background(), File{
		ContentType: "Application/PDF; name=cv.pdf",
		Content:     bytes.NewReader(samplePDF),
	}); err != nil {
		t.Fatalf("expected parameterised content type to be accepted: %v", err)
	}
}

func TestUploadWrapsStoreFailures(t *testing.T) {
	store := &recordingStore{err: errors.New("disk full")}
	core, logs := observer.New(zapcore.ErrorLevel)
	service := newTestUploadService(t, store, 1024, zap.New(core))

	_, err := service.Upload(context.Background(), File{
		ContentType: "application/pdf",
		Content:     bytes.NewReader(samplePDF),
	})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if logs.FilterMessage("upload failed").Len() != 1 {
		t.Fatalf("expected storage failure to be logged")
	}
}

func TestNewServiceRequiresStore(t *testing.T) {
	if _, err := NewService(ServiceConfig{}); err == nil {
		t.Fatalf("expected error without a store")
	}
	service, err := NewService(ServiceConfig{Store: &recordingStore{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if service.MaxBytes() != defaultMaxBytes {
		t.Fatalf("expected default size limit, got %d", service.MaxBytes())
	}
}

func TestLocalStoreWritesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "resumes")
	store, err := NewLocalStore(dir, "")
	if err != nil {
		t.Fatalf("failed to create local store: %v", err)
	}
	if store.PublicPrefix() != defaultPublicPrefix {
		t.Fatalf("unexpected default prefix %q", store.PublicPrefix())
	}

	reference, err := store.Save(context.Background(), "resume-1.pdf", "application/pdf", bytes.NewReader(samplePDF))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if reference != "/resumes/files/resume-1.pdf" {
		t.Fatalf("unexpected reference %q", reference)
	}
	written, err := os.ReadFile(filepath.Join(dir, "resume-1.pdf"))
	if err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}
	if !bytes.Equal(written, samplePDF) {
		t.Fatalf("file contents differ")
	}

	if _, err := store.Save(context.Background(), "resume-1.pdf", "application/pdf", bytes.NewReader(samplePDF)); err == nil {
		t.Fatalf("expected existing files not to be overwritten")
	}
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/files/")
	if err != nil {
		t.Fatalf("failed to create local store: %v", err)
	}
	if _, err := store.Save(context.Background(), "../escape.pdf", "", bytes.NewReader(samplePDF)); !errors.Is(err, errInvalidObjectName) {
		t.Fatalf("expected invalid name error, got %v", err)
	}

	reference, err := store.Save(context.Background(), "nested/name.pdf", "", bytes.NewReader(samplePDF))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if reference != "/files/nested_name.pdf" {
		t.Fatalf("unexpected reference %q", reference)
	}
}

func TestLocalStoreHonoursCancelledContext(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("failed to create local store: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Save(ctx, "resume.pdf", "", bytes.NewReader(samplePDF)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
}
