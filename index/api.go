package index

import "github.com/viant/sqlite-minhash/signature"

// Index maps opaque string keys to signatures and returns candidate keys for
// a query signature. Implementations are append-only: keys are never removed
// for the lifetime of the index. All methods must be safe for concurrent use.
type Index interface {
	// Insert adds key with its signature. The signature length must match
	// the configured number of permutations.
	Insert(key string, sig *signature.Signature) error

	// Query returns candidate keys whose signatures are likely similar to
	// sig. The result may contain false positives and may miss some true
	// near-duplicates; callers must re-score candidates exactly.
	Query(sig *signature.Signature) ([]string, error)

	// Len returns the number of indexed keys.
	Len() int
}
