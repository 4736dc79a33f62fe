package pg

import (
	"context"
	"fmt"

	"rexcards.org/internal/identity"
	"rexcards.org/internal/ids"
)

const roleColumns = `id, name, description, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (identity.Role, error) {
	var r identity.Role
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return identity.Role{}, maybePgError(err)
	}
	return r, nil
}

func (s *Store) GetRoleByID(ctx context.Context, id string) (identity.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		return identity.Role{}, fmt.Errorf("get role by id: %w", err)
	}
	return role, nil
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (identity.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE name = $1`, name)
	role, err := scanRole(row)
	if err != nil {
		return identity.Role{}, fmt.Errorf("get role by name: %w", err)
	}
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]identity.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var out []identity.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("list roles: %w", err)
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return out, nil
}

const permissionColumns = `id, code, name, module, created_at, updated_at`

func scanPermission(row interface{ Scan(...any) error }) (identity.Permission, error) {
	var p identity.Permission
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Module, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return identity.Permission{}, maybePgError(err)
	}
	return p, nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]identity.Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions ORDER BY module, code`)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var out []identity.Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("list permissions: %w", err)
		}
		out = append(out, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return out, nil
}

// EnsurePermissions inserts catalog rows that do not exist yet. Existing
// codes are left untouched, so startup reseeding is idempotent.
func (s *Store) EnsurePermissions(ctx context.Context, perms []identity.Permission) error {
	for _, perm := range perms {
		id := perm.ID
		if id == "" {
			id = ids.New()
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO permissions (id, code, name, module)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (code) DO NOTHING`,
			id, perm.Code, perm.Name, perm.Module,
		)
		if err != nil {
			return fmt.Errorf("ensure permission %s: %w", perm.Code, maybePgError(err))
		}
	}
	return nil
}

// SetRolePermissions replaces the role's permission set atomically.
func (s *Store) SetRolePermissions(ctx context.Context, roleID string, codes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set role permissions: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("clear role permissions: %w", maybePgError(err))
	}
	for _, code := range codes {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission_id)
			 SELECT $1, id FROM permissions WHERE code = $2`,
			roleID, code,
		)
		if err != nil {
			return fmt.Errorf("grant %s: %w", code, maybePgError(err))
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("grant %s: %w", code, err)
		}
		if affected == 0 {
			return fmt.Errorf("grant %s: %w", code, identity.ErrNotFound)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set role permissions: %w", err)
	}
	return nil
}

func (s *Store) AssignRole(ctx context.Context, tx identity.Tx, ur identity.UserRole) error {
	q, err := s.runner(tx)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id, created_by) VALUES ($1, $2, $3)`,
		ur.UserID, ur.RoleID, ur.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("assign role: %w", maybePgError(err))
	}
	return nil
}

func (s *Store) RolesForUser(ctx context.Context, userID string) ([]identity.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.name, r.description, r.created_at, r.updated_at
		 FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1
		 ORDER BY r.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("roles for user: %w", err)
	}
	defer rows.Close()

	var out []identity.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("roles for user: %w", err)
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roles for user: %w", err)
	}
	return out, nil
}

func (s *Store) UserInAnyRole(ctx context.Context, userID string, names []string) (bool, error) {
	if len(names) == 0 {
		return false, nil
	}
	query := `SELECT EXISTS (
		SELECT 1 FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND r.name IN (` + placeholders(2, len(names)) + `))`
	args := append([]any{userID}, toArgs(names)...)

	var ok bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("user in role: %w", err)
	}
	return ok, nil
}

func (s *Store) GrantPermission(ctx context.Context, up identity.UserPermission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_permissions (user_id, permission_id, created_by) VALUES ($1, $2, $3)`,
		up.UserID, up.PermissionID, up.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("grant permission: %w", maybePgError(err))
	}
	return nil
}

// PermissionsForUser returns the effective set: permissions reachable through
// the user's roles united with direct grants.
func (s *Store) PermissionsForUser(ctx context.Context, userID string) ([]identity.Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT p.id, p.code, p.name, p.module, p.created_at, p.updated_at
		 FROM permissions p
		 WHERE p.id IN (
			SELECT rp.permission_id FROM role_permissions rp
			JOIN user_roles ur ON ur.role_id = rp.role_id
			WHERE ur.user_id = $1
			UNION
			SELECT up.permission_id FROM user_permissions up
			WHERE up.user_id = $1)
		 ORDER BY p.code`, userID)
	if err != nil {
		return nil, fmt.Errorf("permissions for user: %w", err)
	}
	defer rows.Close()

	var out []identity.Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("permissions for user: %w", err)
		}
		out = append(out, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("permissions for user: %w", err)
	}
	return out, nil
}

func (s *Store) UserInAnyPermission(ctx context.Context, userID string, codes []string) (bool, error) {
	if len(codes) == 0 {
		return false, nil
	}
	in := placeholders(2, len(codes))
	query := `SELECT EXISTS (
		SELECT 1 FROM permissions p
		WHERE p.code IN (` + in + `) AND p.id IN (
			SELECT rp.permission_id FROM role_permissions rp
			JOIN user_roles ur ON ur.role_id = rp.role_id
			WHERE ur.user_id = $1
			UNION
			SELECT up.permission_id FROM user_permissions up
			WHERE up.user_id = $1))`
	args := append([]any{userID}, toArgs(codes)...)

	var ok bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("user in permission: %w", err)
	}
	return ok, nil
}

func (s *Store) PermissionsForRoles(ctx context.Context, roleIDs []string) ([]identity.Permission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	query := `SELECT DISTINCT p.id, p.code, p.name, p.module, p.created_at, p.updated_at
		 FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 WHERE rp.role_id IN (` + placeholders(1, len(roleIDs)) + `)
		 ORDER BY p.code`
	rows, err := s.db.QueryContext(ctx, query, toArgs(roleIDs)...)
	if err != nil {
		return nil, fmt.Errorf("permissions for roles: %w", err)
	}
	defer rows.Close()

	var out []identity.Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("permissions for roles: %w", err)
		}
		out = append(out, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("permissions for roles: %w", err)
	}
	return out, nil
}

func (s *Store) RolesInAnyPermission(ctx context.Context, roleIDs []string, codes []string) (bool, error) {
	if len(roleIDs) == 0 || len(codes) == 0 {
		return false, nil
	}
	roleIn := placeholders(1, len(roleIDs))
	codeIn := placeholders(1+len(roleIDs), len(codes))
	query := `SELECT EXISTS (
		SELECT 1 FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id IN (` + roleIn + `) AND p.code IN (` + codeIn + `))`
	args := append(toArgs(roleIDs), toArgs(codes)...)

	var ok bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("roles in permission: %w", err)
	}
	return ok, nil
}
