// Package pg implements the identity storage interfaces on PostgreSQL via
// database/sql with the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"rexcards.org/internal/identity"
)

// Store satisfies every storage interface in the identity package plus the
// transaction manager.
type Store struct {
	db *sql.DB
}

var (
	_ identity.TransactionManager  = (*Store)(nil)
	_ identity.UserStore           = (*Store)(nil)
	_ identity.RoleStore           = (*Store)(nil)
	_ identity.PermissionStore     = (*Store)(nil)
	_ identity.UserRoleStore       = (*Store)(nil)
	_ identity.UserPermissionStore = (*Store)(nil)
	_ identity.RolePermissionStore = (*Store)(nil)
)

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle. Used by tests and the migration tool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

type txHandle struct {
	tx *sql.Tx
}

func (s *Store) Begin(ctx context.Context) (identity.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &txHandle{tx: tx}, nil
}

func (s *Store) Commit(_ context.Context, tx identity.Tx) error {
	handle, err := asTx(tx)
	if err != nil {
		return err
	}
	if err := handle.tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Rollback(_ context.Context, tx identity.Tx) error {
	handle, err := asTx(tx)
	if err != nil {
		return err
	}
	if err := handle.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

func asTx(tx identity.Tx) (*txHandle, error) {
	handle, ok := tx.(*txHandle)
	if !ok || handle == nil {
		return nil, fmt.Errorf("%w: foreign transaction handle %T", identity.ErrInvalidInput, tx)
	}
	return handle, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// runner resolves a statement target: the transaction when one is supplied,
// the pool otherwise.
func (s *Store) runner(tx identity.Tx) (querier, error) {
	if tx == nil {
		return s.db, nil
	}
	handle, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	return handle.tx, nil
}

// maybePgError maps driver-level constraint violations onto identity
// sentinels so callers can branch without importing pgconn.
func maybePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return identity.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", identity.ErrConflict, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", identity.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

// placeholders renders $start..$start+n-1 for IN lists. database/sql with the
// pgx stdlib driver has no portable array bind, so set queries are built with
// numbered placeholders.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func toArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
