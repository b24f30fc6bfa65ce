package proof

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

const badgerKeyPrefix = "proof/"

// BadgerConfig configures an embedded Badger proof database.
type BadgerConfig struct {
	// Path is the database directory; required unless InMemory.
	Path string

	InMemory bool

	SyncWrites bool

	// Logger receives Badger's internal logs; nil silences them.
	Logger *slog.Logger
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens (creating if needed) a Badger database.
func OpenBadger(cfg BadgerConfig) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("proof: badger path is required for a persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("proof: create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("proof: open badger: %w", err)
	}
	return db, nil
}

// BadgerStore keeps proofs as JSON values in a Badger database.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an open Badger database. The caller owns db.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("proof: badger db is nil")
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(key string) []byte { return []byte(badgerKeyPrefix + key) }

// Get loads the proof stored under key.
func (s *BadgerStore) Get(_ context.Context, key string) (*Proof, error) {
	var p Proof
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &p) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("proof: get %s: %w", key, err)
	}
	return &p, nil
}

// Create writes p unless its key exists. Badger's optimistic transactions
// abort the loser of two concurrent creates with ErrConflict, which is
// reported as a *ConflictError as well.
func (s *BadgerStore) Create(_ context.Context, p *Proof) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = nowUTC()
	}
	val, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("proof: encode %s: %w", p.Key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(p.Key))
		switch {
		case err == nil:
			return &ConflictError{Key: p.Key}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(badgerKey(p.Key), val)
	})
	var conflict *ConflictError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &conflict):
		return conflict
	case errors.Is(err, badger.ErrConflict):
		return &ConflictError{Key: p.Key}
	}
	return fmt.Errorf("proof: create %s: %w", p.Key, err)
}

var _ Store = (*BadgerStore)(nil)
