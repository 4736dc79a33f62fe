// Package httpapi exposes the identity service over HTTP/JSON.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"rexcards.org/internal/identity"
	"rexcards.org/internal/obs"
)

// AuthService is the authentication surface the handlers need. Implemented
// by *identity.Service.
type AuthService interface {
	PasswordLogin(ctx context.Context, email, password string) (identity.Login, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (identity.Login, error)
	Validate(ctx context.Context, accessToken string) (*identity.Claims, error)
	AuthorizePermissions(ctx context.Context, userID string, permissionCodes []string) (bool, error)
}

// Provisioner creates users. Implemented by *identity.Coordinator.
type Provisioner interface {
	CreateUser(ctx context.Context, draft identity.UserDraft, password string) (identity.User, error)
}

// Deps bundles the collaborators the API needs.
type Deps struct {
	Auth        AuthService
	Provisioner Provisioner
	Roles       identity.RoleStore
	UserRoles   identity.UserRoleStore
	Permissions identity.PermissionStore
}

// ReadinessChecker reports whether the service can take traffic.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// PGReadyProbe checks database connectivity.
type PGReadyProbe struct {
	DB *sql.DB
}

func (p PGReadyProbe) Check(ctx context.Context) error {
	if p.DB == nil {
		return errors.New("database not configured")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.DB.PingContext(pingCtx)
}

// API is the HTTP surface.
type API struct {
	mux     *http.ServeMux
	ready   ReadinessChecker
	version string
	deps    Deps

	rateBurst  int
	ratePerSec float64
}

func New(ready ReadinessChecker, version string, deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		ready:      ready,
		version:    version,
		deps:       deps,
		rateBurst:  20,
		ratePerSec: 10,
	}
	a.routes()
	return a
}

// SetRateLimit overrides the default per-client limiter settings.
func (a *API) SetRateLimit(burst int, perSecond float64) {
	a.rateBurst = burst
	a.ratePerSec = perSecond
}

func (a *API) routes() {
	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)

	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/permissions", a.handlePermissions)

	a.mux.HandleFunc("/", a.handleNotFound)
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = obs.Instrument(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = Logging(h)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = RequestID(h)
	return h
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeError(w, r, http.StatusServiceUnavailable, "not_ready", "dependencies unavailable")
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "rexcards-api",
		"version": a.version,
	})
}

func (a *API) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "not_found", "no such resource")
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorBody{
		Error:     code,
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

// decodeJSON rejects unknown fields and trailing garbage so malformed
// payloads fail loudly instead of half-applying.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return errors.New("unexpected trailing data")
	}
	return nil
}
