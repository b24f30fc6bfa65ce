package store

import (
	"context"
	"errors"

	"github.com/viant/sqlite-minhash/signature"
)

// ErrNotFound is returned when no record exists for an id.
var ErrNotFound = errors.New("store: record not found")

// Record is a persisted signature. ID is assigned by the Store on insert and
// never changes afterwards.
type Record struct {
	ID        int64
	Owner     string
	Signature *signature.Signature
}

// Scored is a record with its exact similarity to a query signature.
type Scored struct {
	Record
	Similarity float64
}

// Store defines durable, id-assigning signature storage.
type Store interface {
	// Insert persists the signature for owner and returns its assigned id.
	// The record is durable when Insert returns without error.
	Insert(ctx context.Context, owner string, sig *signature.Signature) (int64, error)

	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id int64) (*Record, error)

	// Scan calls fn for every record in ascending id order. Iteration stops
	// at the first error returned by fn.
	Scan(ctx context.Context, fn func(*Record) error) error
}
