// Package db owns the embedded SQLite database: opening the connection,
// and the offline drop-and-recreate of the PATE test bench schema.
package db

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/patemonitor/pmapi/internal/config"
)

// Open connects to the SQLite database file. Foreign key enforcement and a
// busy timeout are applied through DSN pragmas so that every pooled
// connection gets them. The pool is sized per config; the bench default is
// a single connection, matching the one-writer nature of SQLite.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", DSN(cfg.File))
	if err != nil {
		return nil, fmt.Errorf("sqlite connect %q: %w", cfg.File, err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	return db, nil
}

// DSN builds a modernc.org/sqlite DSN for the given database file with the
// pragmas PMAPI requires on every connection.
func DSN(file string) string {
	base := file
	switch {
	case file == ":memory:":
		base = "file::memory:?cache=shared"
	case !strings.HasPrefix(file, "file:"):
		base = "file:" + file
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
