package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"rexcards.org/internal/audit"
	"rexcards.org/internal/identity"
)

type createUserRequest struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Status      string `json:"status"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermissionsLive(w, r, identity.PermUserManage) {
		return
	}
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	actorID, _ := identity.UserIDFromContext(r.Context())
	user, err := a.deps.Provisioner.CreateUser(r.Context(), identity.UserDraft{
		Email:       req.Email,
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Status:      req.Status,
		CreatedBy:   actorID,
	}, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, "bad_request", "invalid user attributes")
		case errors.Is(err, identity.ErrConflict):
			writeError(w, r, http.StatusConflict, "conflict", "email already registered")
		default:
			audit.Log(r.Context(), "identity.user.create", "error", nil)
			writeError(w, r, http.StatusInternalServerError, "internal", "could not create user")
		}
		return
	}

	audit.Log(r.Context(), "identity.user.create", "ok", map[string]any{"user_id": user.ID})
	w.Header().Set("Location", "/v1/users/"+user.ID)
	writeJSON(w, http.StatusCreated, userResponse{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		DisplayName: user.DisplayName,
		Status:      user.Status,
		CreatedAt:   user.CreatedAt,
	})
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

// handleUserResource serves /v1/users/{id}/assignments.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	userID, tail, _ := strings.Cut(rest, "/")
	if userID == "" || tail != "assignments" {
		writeError(w, r, http.StatusNotFound, "not_found", "no such resource")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermissionsLive(w, r, identity.PermUserManage) {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(r, &req); err != nil || req.RoleID == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "role_id is required")
		return
	}

	role, err := a.deps.Roles.GetRoleByID(r.Context(), req.RoleID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "role does not exist")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal", "could not resolve role")
		return
	}

	actorID, _ := identity.UserIDFromContext(r.Context())
	err = a.deps.UserRoles.AssignRole(r.Context(), nil, identity.UserRole{
		UserID:    userID,
		RoleID:    role.ID,
		CreatedBy: actorID,
	})
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrConflict):
			writeError(w, r, http.StatusConflict, "conflict", "role already assigned")
		case errors.Is(err, identity.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "not_found", "user does not exist")
		default:
			audit.Log(r.Context(), "identity.role.assign", "error", nil)
			writeError(w, r, http.StatusInternalServerError, "internal", "could not assign role")
		}
		return
	}

	audit.Log(r.Context(), "identity.role.assign", "ok", map[string]any{
		"user_id": userID, "role_id": role.ID,
	})
	writeJSON(w, http.StatusCreated, map[string]string{
		"user_id": userID,
		"role_id": role.ID,
	})
}

type setRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// handleRoleResource serves /v1/roles/{id}/permissions.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	roleID, tail, _ := strings.Cut(rest, "/")
	if roleID == "" || tail != "permissions" {
		writeError(w, r, http.StatusNotFound, "not_found", "no such resource")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensurePermissionsLive(w, r, identity.PermPermissionManage) {
		return
	}
	var req setRolePermissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	if _, err := a.deps.Roles.GetRoleByID(r.Context(), roleID); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "role does not exist")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal", "could not resolve role")
		return
	}
	if err := a.deps.Permissions.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeError(w, r, http.StatusBadRequest, "bad_request", "unknown permission code")
			return
		}
		audit.Log(r.Context(), "identity.role.permissions", "error", nil)
		writeError(w, r, http.StatusInternalServerError, "internal", "could not update role")
		return
	}

	audit.Log(r.Context(), "identity.role.permissions", "ok", map[string]any{
		"role_id": roleID, "count": len(req.Permissions),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, identity.PermPermissionManage, identity.PermRoleManage) {
		return
	}
	perms, err := a.deps.Permissions.ListPermissions(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", "could not list permissions")
		return
	}
	if perms == nil {
		perms = []identity.Permission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}
