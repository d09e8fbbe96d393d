package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/portfolio/internal/auth"
	"github.com/MarcoPoloResearchLab/portfolio/internal/resumes"
	"github.com/MarcoPoloResearchLab/portfolio/internal/uploads"
	"github.com/MarcoPoloResearchLab/portfolio/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	testSigningSecret = "test-signing-secret"
	testCookieName    = "portfolio_session"
)

var testPDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type testStack struct {
	handler    http.Handler
	db         *gorm.DB
	accounts   *users.Service
	issuer     *auth.TokenIssuer
	realtime   *RealtimeDispatcher
	filesDir   string
	filePrefix string
}

type testStackOptions struct {
	ledger ResumeLedger
	logger *zap.Logger
}

func newTestStack(t *testing.T, opts testStackOptions) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&resumes.Version{}, &users.Account{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	accounts, err := users.NewService(users.ServiceConfig{Database: db, BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("failed to build account service: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to build session validator: %v", err)
	}

	ledger := opts.ledger
	if ledger == nil {
		service, err := resumes.NewService(resumes.ServiceConfig{
			Database:   db,
			IDProvider: resumes.NewUUIDProvider(),
			Authorizer: auth.NewAdminAuthorizer(),
		})
		if err != nil {
			t.Fatalf("failed to build resume service: %v", err)
		}
		ledger = service
	}

	filesDir := t.TempDir()
	store, err := uploads.NewLocalStore(filesDir, "/resumes/files")
	if err != nil {
		t.Fatalf("failed to build local store: %v", err)
	}
	uploadService, err := uploads.NewService(uploads.ServiceConfig{Store: store, MaxBytes: 4096})
	if err != nil {
		t.Fatalf("failed to build upload service: %v", err)
	}

	realtime := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		SessionValidator: validator,
		TokenIssuer:      issuer,
		Accounts:         accounts,
		Resumes:          ledger,
		Uploads:          uploadService,
		FilesDir:         filesDir,
		FilesPrefix:      "/resumes/files",
		Realtime:         realtime,
		Logger:           opts.logger,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	return &testStack{
		handler:    handler,
		db:         db,
		accounts:   accounts,
		issuer:     issuer,
		realtime:   realtime,
		filesDir:   filesDir,
		filePrefix: "/resumes/files",
	}
}

func (s *testStack) sessionCookie(t *testing.T, roles ...string) *http.Cookie {
	t.Helper()
	token, _, err := s.issuer.IssueSessionToken(auth.SessionSubject{
		UserID:      "admin@example.com",
		Email:       "admin@example.com",
		DisplayName: "Site Admin",
		Roles:       roles,
	})
	if err != nil {
		t.Fatalf("failed to issue session token: %v", err)
	}
	return &http.Cookie{Name: testCookieName, Value: token}
}

func (s *testStack) adminCookie(t *testing.T) *http.Cookie {
	return s.sessionCookie(t, auth.RoleAdmin)
}

func (s *testStack) request(t *testing.T, method, path string, body io.Reader, contentType string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = http.NoBody
	}
	request := httptest.NewRequest(method, path, body)
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if cookie != nil {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s *testStack) requestJSON(t *testing.T, method, path string, payload interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}
	return s.request(t, method, path, bytes.NewReader(encoded), "application/json", cookie)
}

func (s *testStack) createResume(t *testing.T, cookie *http.Cookie, date string, isCurrent bool) resumePayload {
	t.Helper()
	recorder := s.requestJSON(t, http.MethodPost, "/resumes", map[string]interface{}{
		"date":      date,
		"filename":  "/resumes/files/" + date + ".pdf",
		"changelog": "release " + date,
		"isCurrent": isCurrent,
	}, cookie)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating %s, got %d: %s", date, recorder.Code, recorder.Body.String())
	}
	var created resumePayload
	decodeBody(t, recorder, &created)
	return created
}

func (s *testStack) listResumes(t *testing.T) []resumePayload {
	t.Helper()
	recorder := s.request(t, http.MethodGet, "/resumes", nil, "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 listing resumes, got %d", recorder.Code)
	}
	var records []resumePayload
	decodeBody(t, recorder, &records)
	return records
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func multipartUpload(t *testing.T, fieldName, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, fieldName, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed to write multipart content: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}
