package proof

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const proofsSchema = `
CREATE TABLE IF NOT EXISTS proofs (
    proof_key  TEXT PRIMARY KEY,
    data_hash  TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS proofs_data_hash ON proofs(data_hash);
`

// SQLiteStore keeps proofs in a SQLite table keyed by proof key.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the proofs table if needed and returns a Store over it.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("proof: db is nil")
	}
	if _, err := db.ExecContext(ctx, proofsSchema); err != nil {
		return nil, fmt.Errorf("proof: ensure schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get loads the proof stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Proof, error) {
	var (
		p       = &Proof{Key: key}
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data_hash, created_at FROM proofs WHERE proof_key = ?`, key).Scan(&p.DataHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("proof: get %s: %w", key, err)
	}
	p.CreatedAt = time.Unix(0, created).UTC()
	return p, nil
}

// Create inserts p. The primary key makes the insert the single point of
// truth for conflicts.
func (s *SQLiteStore) Create(ctx context.Context, p *Proof) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = nowUTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO proofs(proof_key, data_hash, created_at) VALUES(?, ?, ?) ON CONFLICT(proof_key) DO NOTHING`,
		p.Key, p.DataHash, p.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("proof: create %s: %w", p.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("proof: create %s: %w", p.Key, err)
	}
	if n == 0 {
		return &ConflictError{Key: p.Key}
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
