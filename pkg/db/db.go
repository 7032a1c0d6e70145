// Package db opens the local SQLite store used for durable SDK state and
// applies its schema migrations.
package db

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/traffical/traffical-go/pkg/paths"
)

// DefaultPath returns ~/.traffical/outbox.db (or under TRAFFICAL_HOME).
func DefaultPath() (string, error) {
	return paths.OutboxPath()
}

type pragma struct {
	name, value string
	// want is what "PRAGMA name" reports once value is applied.
	want string
}

var pragmas = []pragma{
	{name: "journal_mode", value: "WAL", want: "wal"},
	{name: "synchronous", value: "NORMAL", want: "1"},
	{name: "busy_timeout", value: "5000", want: "5000"},
	{name: "temp_store", value: "MEMORY", want: "2"},
}

// dsn sets the pragmas on every connection the driver opens. The path is
// kept as a plain filename, not a file: URI, so it needs no escaping.
func dsn(path string) string {
	params := make([]string, 0, len(pragmas))
	for _, p := range pragmas {
		params = append(params, "_pragma="+p.name+"("+p.value+")")
	}
	return path + "?" + strings.Join(params, "&")
}

// Open opens or creates the database at path and applies migrations. The
// handle holds a single connection so writers in this process serialize;
// other processes wait on the busy timeout.
func Open(ctx context.Context, path string, migrations ...Migration) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	conn, err := sqlx.Open("sqlite", dsn(path))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := setup(ctx, conn, migrations); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func setup(ctx context.Context, conn *sqlx.DB, migrations []Migration) error {
	if err := conn.PingContext(ctx); err != nil {
		return errors.Wrap(err, "failed to connect to database")
	}
	if err := checkPragmas(ctx, conn); err != nil {
		return err
	}
	_, err := Migrate(ctx, conn, migrations)
	return err
}

func checkPragmas(ctx context.Context, conn *sqlx.DB) error {
	for _, p := range pragmas {
		var got string
		if err := conn.GetContext(ctx, &got, "PRAGMA "+p.name); err != nil {
			return errors.Wrapf(err, "failed to read pragma %s", p.name)
		}
		if !strings.EqualFold(got, p.want) {
			return errors.Errorf("pragma %s is %q, expected %q", p.name, got, p.want)
		}
	}
	return nil
}
