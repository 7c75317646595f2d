package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"auth-session-service/internal/domain"
	"auth-session-service/internal/http/response"
	"auth-session-service/internal/observability"
	"auth-session-service/internal/repository"
	"auth-session-service/internal/security"
	"auth-session-service/internal/service"
)

type AuthService interface {
	Register(ctx context.Context, username, password string) (*domain.Account, error)
	Login(ctx context.Context, username, password string) (*domain.Account, error)
	Rotate(ctx context.Context, oldSecret string) (*domain.Account, error)
	Logout(ctx context.Context, secret string) error
}

type CookieSettings struct {
	Name   string
	Path   string
	Secure bool
}

type AuthHandler struct {
	auth    AuthService
	tokens  *security.AccessTokenManager
	cookies CookieSettings
}

func NewAuthHandler(auth AuthService, tokens *security.AccessTokenManager, cookies CookieSettings) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens, cookies: cookies}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string              `json:"access_token"`
	TokenType   string              `json:"token_type"`
	ExpiresIn   int64               `json:"expires_in"`
	Account     service.AccountView `json:"account"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}
	account, err := h.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			response.Error(w, r, http.StatusConflict, "USERNAME_TAKEN", "username already taken", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "request failed", nil)
		return
	}
	observability.Audit(r, "auth.register", "username", account.Username)
	response.JSON(w, r, http.StatusCreated, service.NewAccountView(account))
}

// Login returns the refresh secret in an http-only cookie and the signed
// access credential in the body.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}
	account, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	h.writeSession(w, r, account)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	secret := security.GetCookie(r, h.cookies.Name)
	if secret == "" {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil)
		return
	}
	account, err := h.auth.Rotate(r.Context(), secret)
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	observability.Audit(r, "auth.refresh", "username", account.Username)
	h.writeSession(w, r, account)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	secret := security.GetCookie(r, h.cookies.Name)
	if secret == "" {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil)
		return
	}
	if err := h.auth.Logout(r.Context(), secret); err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	observability.Audit(r, "auth.logout")
	h.clearRefreshCookie(w)
	response.NoContent(w)
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, r *http.Request, account *domain.Account) {
	token := account.NewestToken()
	if token == nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "request failed", nil)
		return
	}
	access, err := h.tokens.Issue(account.Username)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "request failed", nil)
		return
	}
	h.setRefreshCookie(w, token)
	response.JSON(w, r, http.StatusOK, tokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.tokens.TTL().Seconds()),
		Account:     service.NewAccountView(account),
	})
}

func (h *AuthHandler) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return req, false
	}
	if req.Username == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "username and password are required", nil)
		return req, false
	}
	return req, true
}

// writeAuthError maps every authentication failure to one generic
// unauthorized outcome; only store failures become a 500.
func (h *AuthHandler) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials", nil)
	case errors.Is(err, domain.ErrInvalidToken):
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "request failed", nil)
	}
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token *domain.SessionToken) {
	maxAge := int(time.Until(token.ExpiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.Name,
		Value:    token.Secret,
		Path:     h.cookies.Path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.Name,
		Value:    "",
		Path:     h.cookies.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}
