package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/portfolio/internal/auth"
	"github.com/MarcoPoloResearchLab/portfolio/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profilePayload struct {
	Email       string   `json:"email"`
	DisplayName string   `json:"displayName"`
	Roles       []string `json:"roles"`
	IsAdmin     bool     `json:"isAdmin"`
	ExpiresIn   int64    `json:"expiresIn,omitempty"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request", Code: "auth.login.invalid_request"})
		return
	}

	account, err := h.accounts.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			h.logger.Info("login rejected", zap.String("email", strings.ToLower(strings.TrimSpace(request.Email))))
			c.JSON(http.StatusUnauthorized, errorPayload{Error: "invalid credentials", Code: "auth.login.invalid_credentials"})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload{Error: "login failed", Code: "auth.login.failed"})
		return
	}

	subject := account.SessionSubject()
	token, expiresIn, err := h.tokens.IssueSessionToken(subject)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload{Error: "token issue failed", Code: "auth.login.token_issue_failed"})
		return
	}

	h.setSessionCookie(c, token, int(expiresIn))
	profile := profileFromSubject(subject)
	profile.ExpiresIn = expiresIn
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleSession(c *gin.Context) {
	claims, ok := sessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorPayload{Error: "unauthorized", Code: "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, profileFromSubject(auth.SessionSubject{
		UserID:      claims.UserID,
		Email:       claims.UserEmail,
		DisplayName: claims.UserDisplayName,
		Roles:       claims.UserRoles,
	}))
}

func (h *httpHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.sessions.CookieName(),
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func profileFromSubject(subject auth.SessionSubject) profilePayload {
	roles := subject.Roles
	if roles == nil {
		roles = []string{}
	}
	isAdmin := auth.SessionClaims{UserRoles: roles}.HasRole(auth.RoleAdmin)
	return profilePayload{
		Email:       subject.Email,
		DisplayName: subject.DisplayName,
		Roles:       roles,
		IsAdmin:     isAdmin,
	}
}
