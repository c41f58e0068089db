// Package database opens the SQL handle shared by the stores. Postgres is the
// production backend; SQLite serves local runs and fast tests.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"refkb/internal/platform/config"
)

// Dialect selects SQL flavour differences the stores care about.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

var placeholder = regexp.MustCompile(`\$(\d+)`)

// Rebind rewrites Postgres-style $N placeholders for the dialect. SQLite
// accepts ?N with the same numbering.
func (d Dialect) Rebind(query string) string {
	if d == SQLite {
		return placeholder.ReplaceAllString(query, "?$1")
	}
	return query
}

func (d Dialect) driverName() (string, error) {
	switch d {
	case Postgres:
		return "pgx", nil
	case SQLite:
		return "sqlite", nil
	}
	return "", fmt.Errorf("unsupported database driver %q", d)
}

// DB is a *sql.DB that remembers its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

var sqlOpen = sql.Open

// Open connects and pings the configured database.
func Open(ctx context.Context, cfg config.Database) (*DB, error) {
	dialect := Dialect(cfg.Driver)
	driver, err := dialect.driverName()
	if err != nil {
		return nil, err
	}
	db, err := sqlOpen(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == SQLite {
		// One connection serialises writers and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return &DB{DB: db, Dialect: dialect}, nil
}

// Health checks that the database still answers.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}
