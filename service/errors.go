package service

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned by Query before Rehydrate has completed.
var ErrNotReady = errors.New("service: index not rehydrated")

// InvalidOwnerError reports an owner identifier that cannot be encoded into an
// index key.
type InvalidOwnerError struct {
	Owner  string
	Reason string
}

func (e *InvalidOwnerError) Error() string {
	return fmt.Sprintf("service: invalid owner %q: %s", e.Owner, e.Reason)
}

// RecoverableIndexError reports a record that was persisted but could not be
// indexed. The record stays durable and becomes searchable after the next
// rehydration.
type RecoverableIndexError struct {
	ID    int64
	Owner string
	Err   error
}

func (e *RecoverableIndexError) Error() string {
	return fmt.Sprintf("service: record %d (%s) persisted but not indexed: %v", e.ID, e.Owner, e.Err)
}

func (e *RecoverableIndexError) Unwrap() error { return e.Err }

// CandidateError describes an index candidate that was skipped during a query.
type CandidateError struct {
	Key string
	Err error
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("service: candidate %q: %v", e.Key, e.Err)
}

func (e *CandidateError) Unwrap() error { return e.Err }
