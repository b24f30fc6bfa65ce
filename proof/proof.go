package proof

import (
	"context"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/sha3"
)

// Proof binds a locator hash to the hash of the content observed behind it.
type Proof struct {
	Key       string    `json:"proof_key"`
	DataHash  string    `json:"data_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists proofs. Implementations must make Create atomic with respect
// to the key: of two concurrent creates for one key, exactly one succeeds and
// the other returns a *ConflictError.
type Store interface {
	Get(ctx context.Context, key string) (*Proof, error)
	Create(ctx context.Context, p *Proof) error
}

// KeyOf returns the proof key for a locator: the hex SHA3-256 of its bytes.
func KeyOf(locator string) string {
	sum := sha3.Sum256([]byte(locator))
	return hex.EncodeToString(sum[:])
}

var nowUTC = func() time.Time { return time.Now().UTC() }
