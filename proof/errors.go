package proof

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no proof exists for a key.
var ErrNotFound = errors.New("proof: not found")

// InvalidLocatorError reports a locator rejected by the allow-list.
type InvalidLocatorError struct {
	Locator string
	Reason  string
}

func (e *InvalidLocatorError) Error() string {
	return fmt.Sprintf("proof: invalid locator %q: %s", e.Locator, e.Reason)
}

// ConflictError reports an attempt to issue a proof for a key that already
// has one.
type ConflictError struct {
	Key string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("proof: proof %s already exists", e.Key)
}

// FetchError reports a failure to retrieve or read the content behind a
// locator. StatusCode is set when the remote answered with a non-success
// status.
type FetchError struct {
	Locator    string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("proof: fetch %s: unexpected status %d", e.Locator, e.StatusCode)
	}
	return fmt.Sprintf("proof: fetch %s: %v", e.Locator, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
