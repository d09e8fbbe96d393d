package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/portfolio/internal/auth"
	"github.com/MarcoPoloResearchLab/portfolio/internal/logging"
	"github.com/MarcoPoloResearchLab/portfolio/internal/resumes"
	"github.com/MarcoPoloResearchLab/portfolio/internal/uploads"
	"github.com/MarcoPoloResearchLab/portfolio/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sessionClaimsContextKey  = "portfolio_session_claims"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingTokenIssuer      = errors.New("token issuer dependency required")
	errMissingAccounts         = errors.New("accounts dependency required")
	errMissingResumeLedger     = errors.New("resume ledger dependency required")
	errMissingUploads          = errors.New("uploads dependency required")
)

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

type SessionIssuer interface {
	IssueSessionToken(subject auth.SessionSubject) (string, int64, error)
}

type AccountAuthenticator interface {
	Authenticate(ctx context.Context, email, password string) (users.Account, error)
}

// ResumeLedger is the set of ledger operations exposed over HTTP.
type ResumeLedger interface {
	List(ctx context.Context) ([]resumes.Version, error)
	Current(ctx context.Context) (resumes.Version, error)
	Create(ctx context.Context, input resumes.Input) (resumes.Version, error)
	Update(ctx context.Context, id string, input resumes.Input) (resumes.Version, error)
	Delete(ctx context.Context, id string) error
}

type FileUploader interface {
	Upload(ctx context.Context, file uploads.File) (string, error)
	MaxBytes() int64
}

type Dependencies struct {
	SessionValidator SessionValidator
	TokenIssuer      SessionIssuer
	Accounts         AccountAuthenticator
	Resumes          ResumeLedger
	Uploads          FileUploader
	// FilesDir is served under FilesPrefix when uploads are stored locally.
	FilesDir       string
	FilesPrefix    string
	Realtime       *RealtimeDispatcher
	AllowedOrigins []string
	CookieSecure   bool
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.TokenIssuer == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.Accounts == nil {
		return nil, errMissingAccounts
	}
	if deps.Resumes == nil {
		return nil, errMissingResumeLedger
	}
	if deps.Uploads == nil {
		return nil, errMissingUploads
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestID())
	router.Use(logging.RequestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:          deps.SessionValidator,
		tokens:            deps.TokenIssuer,
		accounts:          deps.Accounts,
		ledger:            deps.Resumes,
		uploads:           deps.Uploads,
		realtime:          realtime,
		cookieSecure:      deps.CookieSecure,
		heartbeatInterval: defaultHeartbeatInterval,
		logger:            logger,
	}
	router.Use(handler.loadSession)

	router.GET("/healthz", handler.handleHealth)

	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/logout", handler.handleLogout)
	router.GET("/auth/session", handler.handleSession)

	router.GET("/resumes", handler.handleListResumes)
	router.GET("/resumes/current", handler.handleCurrentResume)
	router.GET("/resumes/events", handler.handleResumeEvents)

	admin := router.Group("/")
	admin.Use(handler.requireAdmin)
	admin.POST("/resumes", handler.handleCreateResume)
	admin.PUT("/resumes/:id", handler.handleUpdateResume)
	admin.DELETE("/resumes/:id", handler.handleDeleteResume)
	admin.POST("/upload", handler.handleUpload)

	if dir := strings.TrimSpace(deps.FilesDir); dir != "" {
		prefix := strings.TrimSpace(deps.FilesPrefix)
		if prefix == "" {
			prefix = "/resumes/files"
		}
		router.Static(prefix, dir)
	}

	return router, nil
}

type httpHandler struct {
	sessions          SessionValidator
	tokens            SessionIssuer
	accounts          AccountAuthenticator
	ledger            ResumeLedger
	uploads           FileUploader
	realtime          *RealtimeDispatcher
	cookieSecure      bool
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	if len(allowedOrigins) == 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// loadSession binds the session claims to the request context when a valid
// cookie is present. Requests without one continue anonymously.
func (h *httpHandler) loadSession(c *gin.Context) {
	if _, err := c.Request.Cookie(h.sessions.CookieName()); err != nil {
		c.Next()
		return
	}
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.Next()
		return
	}
	c.Set(sessionClaimsContextKey, claims)
	c.Request = c.Request.WithContext(auth.ContextWithClaims(c.Request.Context(), claims))
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	claims, ok := sessionClaims(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorPayload{Error: "unauthorized", Code: "unauthorized"})
		return
	}
	if err := claims.RequireRole(auth.RoleAdmin); err != nil {
		h.logger.Info("admin route denied", zap.String("user_id", claims.UserID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorPayload{Error: "unauthorized", Code: "unauthorized"})
		return
	}
	c.Next()
}

func sessionClaims(c *gin.Context) (auth.SessionClaims, bool) {
	value, ok := c.Get(sessionClaimsContextKey)
	if !ok {
		return auth.SessionClaims{}, false
	}
	claims, ok := value.(auth.SessionClaims)
	return claims, ok
}

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
