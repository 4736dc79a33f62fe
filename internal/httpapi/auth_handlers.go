package httpapi

import (
	"errors"
	"net/http"
	"time"

	"rexcards.org/internal/audit"
	"rexcards.org/internal/identity"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	UserID           string    `json:"user_id"`
	DisplayName      string    `json:"display_name,omitempty"`
}

func tokenResponseFrom(login identity.Login) tokenResponse {
	return tokenResponse{
		AccessToken:      login.AccessToken,
		RefreshToken:     login.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  login.AccessExpiresAt,
		RefreshExpiresAt: login.RefreshExpiresAt,
		UserID:           login.UserID,
		DisplayName:      login.DisplayName,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "email and password are required")
		return
	}

	login, err := a.deps.Auth.PasswordLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			audit.Log(r.Context(), "auth.login", "denied", nil)
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid credentials")
			return
		}
		audit.Log(r.Context(), "auth.login", "error", nil)
		writeError(w, r, http.StatusInternalServerError, "internal", "login failed")
		return
	}

	audit.Log(r.Context(), "auth.login", "ok", map[string]any{"user_id": login.UserID})
	writeJSON(w, http.StatusOK, tokenResponseFrom(login))
}

type refreshRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}
	if req.AccessToken == "" || req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "both tokens are required")
		return
	}

	login, err := a.deps.Auth.Refresh(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			audit.Log(r.Context(), "auth.refresh", "denied", nil)
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		audit.Log(r.Context(), "auth.refresh", "error", nil)
		writeError(w, r, http.StatusInternalServerError, "internal", "refresh failed")
		return
	}

	audit.Log(r.Context(), "auth.refresh", "ok", map[string]any{"user_id": login.UserID})
	writeJSON(w, http.StatusOK, tokenResponseFrom(login))
}

type meResponse struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := identity.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	resp := meResponse{
		UserID:      claims.Subject,
		Email:       claims.Email,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	if resp.Roles == nil {
		resp.Roles = []string{}
	}
	if resp.Permissions == nil {
		resp.Permissions = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}
