package store

import (
	"context"
	"database/sql"
)

const signaturesSchema = `
CREATE TABLE IF NOT EXISTS signatures (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    owner     TEXT NOT NULL,
    signature BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS signatures_owner ON signatures(owner);
`

// EnsureSchema creates the signatures table in the provided database if it
// does not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, signaturesSchema)
	return err
}
