package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/viant/sqlite-minhash/signature"
)

// scanPageSize bounds the rows read per page during Scan.
const scanPageSize = 512

// SQLiteStore is a Store backed by a SQLite signatures table. Signatures are
// stored in their canonical encoding and decoded with the configured number
// of permutations; a row of any other length is reported as a
// signature.FormatError.
type SQLiteStore struct {
	db      *sql.DB
	numPerm int
}

// NewSQLiteStore creates a SQLite-backed Store. It ensures the signatures
// schema exists in the provided database.
func NewSQLiteStore(ctx context.Context, db *sql.DB, numPerm int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is nil")
	}
	if numPerm <= 0 {
		return nil, fmt.Errorf("store: num_perm must be positive, got %d", numPerm)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}
	return &SQLiteStore{db: db, numPerm: numPerm}, nil
}

// Insert persists the signature and returns the row id SQLite assigned.
func (s *SQLiteStore) Insert(ctx context.Context, owner string, sig *signature.Signature) (int64, error) {
	if err := sig.Validate(s.numPerm); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO signatures(owner, signature) VALUES(?, ?)`, owner, signature.Encode(sig))
	if err != nil {
		return 0, fmt.Errorf("store: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: last insert id: %w", err)
	}
	return id, nil
}

// Get loads a single record by id.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, owner, signature FROM signatures WHERE id = ?`, id)
	rec, err := s.scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %d: %w", id, err)
	}
	return rec, nil
}

// Scan pages through the table by id so that no connection is held while fn
// runs; fn may therefore call back into the store.
func (s *SQLiteStore) Scan(ctx context.Context, fn func(*Record) error) error {
	var after int64
	for {
		page, err := s.page(ctx, after)
		if err != nil {
			return err
		}
		for _, rec := range page {
			if err := fn(rec); err != nil {
				return err
			}
		}
		if len(page) < scanPageSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

func (s *SQLiteStore) page(ctx context.Context, after int64) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner, signature FROM signatures WHERE id > ? ORDER BY id LIMIT ?`, after, scanPageSize)
	if err != nil {
		return nil, fmt.Errorf("store: scan: %w", err)
	}
	defer rows.Close()

	out := make([]*Record, 0, scanPageSize)
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan after id %d: %w", after, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: scan: %w", err)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM signatures`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// ScanSimilar scores every stored signature against sig inside SQLite using
// sig_similarity and returns those at or above minSimilarity, ordered by
// decreasing similarity and then id. The database must have been opened
// after engine.RegisterSignatureFunctions.
func (s *SQLiteStore) ScanSimilar(ctx context.Context, sig *signature.Signature, minSimilarity float64) ([]Scored, error) {
	if err := sig.Validate(s.numPerm); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner, signature, sim FROM (
    SELECT id, owner, signature, sig_similarity(signature, ?) AS sim FROM signatures
) WHERE sim >= ? ORDER BY sim DESC, id ASC`, signature.Encode(sig), minSimilarity)
	if err != nil {
		return nil, fmt.Errorf("store: scan similar: %w", err)
	}
	defer rows.Close()

	var out []Scored
	for rows.Next() {
		var (
			sc   Scored
			blob []byte
		)
		if err := rows.Scan(&sc.ID, &sc.Owner, &blob, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("store: scan similar: %w", err)
		}
		if sc.Signature, err = signature.Decode(blob, s.numPerm); err != nil {
			return nil, fmt.Errorf("store: record %d: %w", sc.ID, err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: scan similar: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanRecord(row rowScanner) (*Record, error) {
	var (
		rec  Record
		blob []byte
	)
	if err := row.Scan(&rec.ID, &rec.Owner, &blob); err != nil {
		return nil, err
	}
	sig, err := signature.Decode(blob, s.numPerm)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", rec.ID, err)
	}
	rec.Signature = sig
	return &rec, nil
}

// Ensure SQLiteStore satisfies the Store interface.
var _ Store = (*SQLiteStore)(nil)
