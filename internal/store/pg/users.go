package pg

import (
	"context"
	"fmt"

	"rexcards.org/internal/identity"
	"rexcards.org/internal/ids"
)

const userColumns = `id, email, name, display_name, password_hash, security_stamp,
	status, created_by, created_at, updated_by, updated_at`

func scanUser(row interface{ Scan(...any) error }) (identity.User, error) {
	var u identity.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.DisplayName, &u.PasswordHash, &u.SecurityStamp,
		&u.Status, &u.CreatedBy, &u.CreatedAt, &u.UpdatedBy, &u.UpdatedAt,
	)
	if err != nil {
		return identity.User{}, maybePgError(err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (identity.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		return identity.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (identity.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return identity.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (s *Store) InsertUser(ctx context.Context, tx identity.Tx, user identity.User) (string, error) {
	q, err := s.runner(tx)
	if err != nil {
		return "", err
	}
	if user.ID == "" {
		user.ID = ids.New()
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO users
			(id, email, name, display_name, password_hash, security_stamp, status, created_by, updated_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Email, user.Name, user.DisplayName,
		user.PasswordHash, user.SecurityStamp, user.Status,
		user.CreatedBy, user.UpdatedBy,
	)
	if err != nil {
		return "", fmt.Errorf("insert user: %w", maybePgError(err))
	}
	return user.ID, nil
}

func (s *Store) UpdateUser(ctx context.Context, user identity.User) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET
			email = $2, name = $3, display_name = $4, password_hash = $5,
			security_stamp = $6, status = $7, updated_by = $8, updated_at = now()
		 WHERE id = $1`,
		user.ID, user.Email, user.Name, user.DisplayName,
		user.PasswordHash, user.SecurityStamp, user.Status, user.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", maybePgError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update user: %w", identity.ErrNotFound)
	}
	return nil
}
