package identity

import (
	"context"
	"fmt"
)

// Evaluator answers role and permission membership questions for a user.
// The storage-backed Engine and the claims-backed ClaimsEvaluator implement
// identical semantics; callers pick per call site whether staleness within an
// access token's lifetime is acceptable.
type Evaluator interface {
	IsUserInRole(ctx context.Context, userID string, roleNames []string) (bool, error)
	IsUserInPermission(ctx context.Context, userID string, permissionCodes []string) (bool, error)
}

// Engine evaluates authorization against live storage.
type Engine struct {
	userRoles UserRoleStore
	userPerms UserPermissionStore
	rolePerms RolePermissionStore
}

func NewEngine(userRoles UserRoleStore, userPerms UserPermissionStore, rolePerms RolePermissionStore) *Engine {
	return &Engine{userRoles: userRoles, userPerms: userPerms, rolePerms: rolePerms}
}

// IsUserInRole reports whether the user holds at least one of the named
// roles. Empty inputs answer false without touching storage.
func (e *Engine) IsUserInRole(ctx context.Context, userID string, roleNames []string) (bool, error) {
	roleNames = dedupe(roleNames)
	if userID == "" || len(roleNames) == 0 {
		return false, nil
	}
	ok, err := e.userRoles.UserInAnyRole(ctx, userID, roleNames)
	if err != nil {
		return false, fmt.Errorf("check user roles: %w", err)
	}
	return ok, nil
}

// IsUserInPermission reports whether the user's effective permission set,
// role-derived grants united with direct grants, intersects the given codes.
func (e *Engine) IsUserInPermission(ctx context.Context, userID string, permissionCodes []string) (bool, error) {
	permissionCodes = dedupe(permissionCodes)
	if userID == "" || len(permissionCodes) == 0 {
		return false, nil
	}
	ok, err := e.userPerms.UserInAnyPermission(ctx, userID, permissionCodes)
	if err != nil {
		return false, fmt.Errorf("check user permissions: %w", err)
	}
	return ok, nil
}

// AreRolesInPermission reports whether any of the roles carries any of the
// permission codes. An empty role set or code set answers false immediately.
func (e *Engine) AreRolesInPermission(ctx context.Context, roleIDs []string, permissionCodes []string) (bool, error) {
	roleIDs = dedupe(roleIDs)
	permissionCodes = dedupe(permissionCodes)
	if len(roleIDs) == 0 || len(permissionCodes) == 0 {
		return false, nil
	}
	ok, err := e.rolePerms.RolesInAnyPermission(ctx, roleIDs, permissionCodes)
	if err != nil {
		return false, fmt.Errorf("check role permissions: %w", err)
	}
	return ok, nil
}

// Snapshot captures the user's role names and effective permission codes for
// embedding into an access token.
func (e *Engine) Snapshot(ctx context.Context, userID string) ([]string, []string, error) {
	if userID == "" {
		return nil, nil, fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	roles, err := e.userRoles.RolesForUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot roles: %w", err)
	}
	perms, err := e.userPerms.PermissionsForUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot permissions: %w", err)
	}
	roleNames := make([]string, 0, len(roles))
	for _, r := range roles {
		roleNames = append(roleNames, r.Name)
	}
	codes := make([]string, 0, len(perms))
	for _, p := range perms {
		codes = append(codes, p.Code)
	}
	return dedupe(roleNames), dedupe(codes), nil
}

// ClaimsEvaluator answers the same questions from a verified access token's
// embedded snapshot, trading staleness bounded by the access TTL for zero
// storage round trips.
type ClaimsEvaluator struct {
	claims *Claims
}

func NewClaimsEvaluator(claims *Claims) *ClaimsEvaluator {
	return &ClaimsEvaluator{claims: claims}
}

func (e *ClaimsEvaluator) IsUserInRole(_ context.Context, userID string, roleNames []string) (bool, error) {
	if e.claims == nil || userID == "" || e.claims.Subject != userID {
		return false, nil
	}
	return intersects(e.claims.Roles, dedupe(roleNames)), nil
}

func (e *ClaimsEvaluator) IsUserInPermission(_ context.Context, userID string, permissionCodes []string) (bool, error) {
	if e.claims == nil || userID == "" || e.claims.Subject != userID {
		return false, nil
	}
	return intersects(e.claims.Permissions, dedupe(permissionCodes)), nil
}

func intersects(have, want []string) bool {
	if len(have) == 0 || len(want) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(have))
	for _, v := range have {
		set[v] = struct{}{}
	}
	for _, v := range want {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
