// Package db provides SQLite storage for the run journal and generated
// activities.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type pragma struct {
	stmt string
	// optional pragmas only warn when the driver refuses them.
	optional bool
}

var pragmas = []pragma{
	{stmt: "PRAGMA foreign_keys=ON"},
	{stmt: "PRAGMA busy_timeout=5000"},
	{stmt: "PRAGMA journal_mode=WAL", optional: true},
}

// Open opens the database at path, creating its directory, and brings the
// schema up to date. The pool holds a single connection so pragmas apply to
// every statement.
func Open(path string) (*sql.DB, error) {
	if isFilePath(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	for _, step := range []func(*sql.DB) error{configure, migrate} {
		if err := step(conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func isFilePath(path string) bool {
	return path != ":memory:" && !strings.HasPrefix(path, "file:")
}

func configure(conn *sql.DB) error {
	for _, p := range pragmas {
		if _, err := conn.Exec(p.stmt); err != nil {
			if p.optional {
				log.Warn().Err(err).Str("pragma", p.stmt).Msg("sqlite pragma not applied")
				continue
			}
			return fmt.Errorf("apply %s: %w", p.stmt, err)
		}
	}
	return nil
}

// goose keeps its base FS and dialect in package state.
var migrateMu sync.Mutex

func migrate(conn *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(conn, "migrations"); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
