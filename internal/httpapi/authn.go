package httpapi

import (
	"net/http"
	"strings"

	"rexcards.org/internal/identity"
)

// Paths reachable without a bearer token.
func isPublicPath(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/v1/info",
		"/v1/auth/login", "/v1/auth/refresh":
		return true
	}
	return false
}

// withAuth validates the bearer token on protected paths and attaches the
// verified claims to the request context. The failure reason is logged by the
// service layer; clients always see the same generic denial.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := extractBearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="rexcards"`)
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing or malformed credentials")
			return
		}
		claims, err := a.deps.Auth.Validate(r.Context(), token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="rexcards", error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		ctx := identity.ContextWithClaims(r.Context(), claims)
		ctx = identity.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// ensurePermissions authorizes against the token's embedded snapshot. Returns
// false after writing the response when the caller lacks every listed code.
func (a *API) ensurePermissions(w http.ResponseWriter, r *http.Request, codes ...string) bool {
	claims, ok := identity.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return false
	}
	allowed, err := identity.NewClaimsEvaluator(claims).
		IsUserInPermission(r.Context(), claims.Subject, codes)
	if err != nil || !allowed {
		writeError(w, r, http.StatusForbidden, "forbidden", "insufficient permissions")
		return false
	}
	return true
}

// ensurePermissionsLive re-checks against storage. Used on administrative
// endpoints where a revocation must take effect before the token expires.
func (a *API) ensurePermissionsLive(w http.ResponseWriter, r *http.Request, codes ...string) bool {
	claims, ok := identity.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return false
	}
	allowed, err := a.deps.Auth.AuthorizePermissions(r.Context(), claims.Subject, codes)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", "authorization check failed")
		return false
	}
	if !allowed {
		writeError(w, r, http.StatusForbidden, "forbidden", "insufficient permissions")
		return false
	}
	return true
}
