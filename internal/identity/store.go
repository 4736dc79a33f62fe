package identity

import "context"

// Tx is an opaque handle to an in-flight storage transaction. It is owned
// exclusively by the call chain that began it and must be finished by exactly
// one of TransactionManager.Commit or Rollback.
type Tx interface{}

// TransactionManager supplies the transactional boundary for coordinated
// writes. Implementations are storage specific; this package treats the
// handle opaquely.
type TransactionManager interface {
	Begin(ctx context.Context) (Tx, error)
	Commit(ctx context.Context, tx Tx) error
	Rollback(ctx context.Context, tx Tx) error
}

// UserStore persists users. A nil Tx targets the base connection.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	InsertUser(ctx context.Context, tx Tx, user User) (string, error)
	UpdateUser(ctx context.Context, user User) error
}

// RoleStore reads role reference data.
type RoleStore interface {
	GetRoleByID(ctx context.Context, id string) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
}

// PermissionStore manages the permission catalog.
type PermissionStore interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsurePermissions(ctx context.Context, perms []Permission) error
	SetRolePermissions(ctx context.Context, roleID string, codes []string) error
}

// UserRoleStore manages user-role assignments.
type UserRoleStore interface {
	AssignRole(ctx context.Context, tx Tx, ur UserRole) error
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
	UserInAnyRole(ctx context.Context, userID string, names []string) (bool, error)
}

// UserPermissionStore answers effective-permission queries. Effective means
// the union of permissions reachable through the user's roles and permissions
// granted directly to the user.
type UserPermissionStore interface {
	GrantPermission(ctx context.Context, up UserPermission) error
	PermissionsForUser(ctx context.Context, userID string) ([]Permission, error)
	UserInAnyPermission(ctx context.Context, userID string, codes []string) (bool, error)
}

// RolePermissionStore answers role-permission queries.
type RolePermissionStore interface {
	PermissionsForRoles(ctx context.Context, roleIDs []string) ([]Permission, error)
	RolesInAnyPermission(ctx context.Context, roleIDs []string, codes []string) (bool, error)
}
