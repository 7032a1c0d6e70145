package db

import (
	"context"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/traffical/traffical-go/pkg/logger"
)

// Migration is a forward-only schema change, versioned by timestamp
// (YYYYMMDDHHmmss).
type Migration struct {
	Version     int64
	Description string
	Up          func(ctx context.Context, tx *sqlx.Tx) error
}

// Exec returns an Up function running stmts in order.
func Exec(stmts ...string) func(context.Context, *sqlx.Tx) error {
	return func(ctx context.Context, tx *sqlx.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

// ColumnExists reports whether table has column.
func ColumnExists(ctx context.Context, tx *sqlx.Tx, table, column string) (bool, error) {
	var n int
	err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column)
	return n > 0, err
}

const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version     INTEGER PRIMARY KEY,
	description TEXT,
	applied_at  DATETIME NOT NULL
)`

// Migrate applies pending migrations in version order, one transaction
// each, and returns how many ran.
func Migrate(ctx context.Context, conn *sqlx.DB, migrations []Migration) (int, error) {
	pending, err := pendingMigrations(ctx, conn, migrations)
	if err != nil {
		return 0, err
	}

	for i, m := range pending {
		if err := applyMigration(ctx, conn, m); err != nil {
			return i, errors.Wrapf(err, "migration %d (%s) failed", m.Version, m.Description)
		}
		logger.G(ctx).WithField("version", m.Version).Debug("applied migration")
	}
	return len(pending), nil
}

// Applied lists applied migration versions in ascending order.
func Applied(ctx context.Context, conn *sqlx.DB) ([]int64, error) {
	if _, err := conn.ExecContext(ctx, migrationsTable); err != nil {
		return nil, errors.Wrap(err, "failed to create schema_migrations")
	}
	var versions []int64
	err := conn.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations ORDER BY version`)
	return versions, errors.Wrap(err, "failed to list applied migrations")
}

func pendingMigrations(ctx context.Context, conn *sqlx.DB, migrations []Migration) ([]Migration, error) {
	applied, err := Applied(ctx, conn)
	if err != nil {
		return nil, err
	}
	done := make(map[int64]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	seen := make(map[int64]bool, len(migrations))
	var pending []Migration
	for _, m := range migrations {
		if seen[m.Version] {
			return nil, errors.Errorf("duplicate migration version %d", m.Version)
		}
		seen[m.Version] = true
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })
	return pending, nil
}

func applyMigration(ctx context.Context, conn *sqlx.DB, m Migration) error {
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := m.Up(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Description, time.Now().UTC()); err != nil {
		return errors.Wrap(err, "failed to record migration")
	}
	return tx.Commit()
}
