package engine

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// Open opens a SQLite database using the modernc.org/sqlite driver.
//
// For file-based databases, pass a path like "./db.sqlite". For in-memory
// databases, pass ":memory:".
func Open(dsn string) (*sql.DB, error) { return sql.Open("sqlite", dsn) }

// pragmas applied to every database opened with OpenStore.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

// OpenStore opens dsn for use as a durable record store with the signature
// functions registered. SQLite supports a single writer, so the pool is
// limited to one connection; this also keeps ":memory:" databases from being
// split across connections.
func OpenStore(dsn string) (*sql.DB, error) {
	if err := RegisterSignatureFunctions(); err != nil {
		return nil, fmt.Errorf("engine: register functions: %w", err)
	}
	db, err := Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("engine: open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: connect %s: %w", dsn, err)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("engine: %q: %w", pragma, err)
		}
	}
	return db, nil
}
