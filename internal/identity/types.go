package identity

import "time"

// User lifecycle statuses. Users are never hard-deleted by this package; the
// terminal state is a status transition.
const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// User is an account holder. SecurityStamp is the per-user rotatable salt;
// rotating it invalidates the stored password hash.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	DisplayName   string    `json:"display_name,omitempty"`
	PasswordHash  string    `json:"-"`
	SecurityStamp string    `json:"-"`
	Status        string    `json:"status"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedBy     string    `json:"updated_by,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UserDraft carries the caller-supplied fields for provisioning a user.
// Credential material is derived by the coordinator, never supplied directly.
type UserDraft struct {
	Email       string
	Name        string
	DisplayName string
	Status      string
	CreatedBy   string
}

// Role groups permissions. Static reference data managed by administrative
// flows.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is a fine-grained capability identified by a unique code and
// grouped by product module.
type Permission struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Module    string    `json:"module"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserRole links a user to a role. The (UserID, RoleID) pair is unique.
type UserRole struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RolePermission links a role to a permission. Unique per pair.
type RolePermission struct {
	RoleID       string    `json:"role_id"`
	PermissionID string    `json:"permission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserPermission grants a permission directly to a user, bypassing roles.
// The effective permission set is the union of role-derived and direct grants.
type UserPermission struct {
	UserID       string    `json:"user_id"`
	PermissionID string    `json:"permission_id"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
