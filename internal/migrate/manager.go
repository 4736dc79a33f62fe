// Package migrate applies SQL schema migrations and seed files from disk.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	kindSchema = "schema"
	kindSeed   = "seed"
)

// Manager tracks applied files in a bookkeeping table and applies pending
// ones in lexical order, each inside its own transaction.
type Manager struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
}

func NewManager(db *sql.DB, migrationsDir, seedsDir string) *Manager {
	return &Manager{db: db, migrationsDir: migrationsDir, seedsDir: seedsDir}
}

func (m *Manager) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       text PRIMARY KEY,
			kind       text NOT NULL,
			applied_at timestamptz NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}
	return nil
}

func (m *Manager) applied(ctx context.Context) (map[string]struct{}, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	defer rows.Close()

	out := map[string]struct{}{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("read applied migrations: %w", err)
		}
		out[name] = struct{}{}
	}
	return out, rows.Err()
}

func listFiles(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Manager) applyFile(ctx context.Context, dir, name, kind string) error {
	body, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("apply %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (name, kind) VALUES ($1, $2)`, name, kind); err != nil {
		return fmt.Errorf("record %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}

// Up applies all pending *.up.sql migrations.
func (m *Manager) Up(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}
	names, err := listFiles(m.migrationsDir, ".up.sql")
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, name := range names {
		if _, ok := done[name]; ok {
			continue
		}
		if err := m.applyFile(ctx, m.migrationsDir, name, kindSchema); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Down reverts the most recently applied schema migration using its
// *.down.sql counterpart.
func (m *Manager) Down(ctx context.Context) (string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return "", err
	}
	var name string
	err := m.db.QueryRowContext(ctx, `
		SELECT name FROM schema_migrations
		WHERE kind = $1 ORDER BY name DESC LIMIT 1`, kindSchema).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find last migration: %w", err)
	}

	downName := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
	body, err := os.ReadFile(filepath.Join(m.migrationsDir, downName))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", downName, err)
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin %s: %w", downName, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return "", fmt.Errorf("apply %s: %w", downName, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_migrations WHERE name = $1`, name); err != nil {
		return "", fmt.Errorf("unrecord %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit %s: %w", downName, err)
	}
	return name, nil
}

// Seed applies pending seed files. Seeds are tracked like migrations so
// re-running is a no-op.
func (m *Manager) Seed(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}
	names, err := listFiles(m.seedsDir, ".sql")
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, name := range names {
		if _, ok := done[name]; ok {
			continue
		}
		if err := m.applyFile(ctx, m.seedsDir, name, kindSeed); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Status lists applied entries in order.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT name, kind, applied_at FROM schema_migrations ORDER BY applied_at, name`)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name, kind string
		var appliedAt sql.NullTime
		if err := rows.Scan(&name, &kind, &appliedAt); err != nil {
			return nil, fmt.Errorf("status: %w", err)
		}
		out = append(out, fmt.Sprintf("%s\t%s\t%s", name, kind, appliedAt.Time.Format("2006-01-02 15:04:05")))
	}
	return out, rows.Err()
}
