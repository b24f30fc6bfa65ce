package bruteforce

import (
	"fmt"
	"sort"
	"sync"

	"github.com/viant/sqlite-minhash/index"
	"github.com/viant/sqlite-minhash/signature"
)

// Index is a simple brute-force signature index. Query scores every indexed
// signature exactly and returns the keys at or above the threshold, so it has
// no false negatives at the cost of a linear scan.
type Index struct {
	numPerm   int
	threshold float64

	mu   sync.RWMutex
	keys []string
	sigs []*signature.Signature
	seen map[string]struct{}
}

// New creates a brute-force index for signatures of numPerm slots.
func New(numPerm int, threshold float64) (*Index, error) {
	if numPerm <= 0 {
		return nil, fmt.Errorf("bruteforce: num_perm must be positive, got %d", numPerm)
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("bruteforce: threshold must be in [0,1], got %v", threshold)
	}
	return &Index{numPerm: numPerm, threshold: threshold, seen: map[string]struct{}{}}, nil
}

// Insert appends key and its signature.
func (i *Index) Insert(key string, sig *signature.Signature) error {
	if err := sig.Validate(i.numPerm); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.seen[key]; ok {
		return fmt.Errorf("bruteforce: %w: %q", index.ErrDuplicateKey, key)
	}
	i.seen[key] = struct{}{}
	i.keys = append(i.keys, key)
	i.sigs = append(i.sigs, sig)
	return nil
}

// Query returns keys whose similarity to sig is at least the threshold,
// ordered by decreasing similarity.
func (i *Index) Query(sig *signature.Signature) ([]string, error) {
	if err := sig.Validate(i.numPerm); err != nil {
		return nil, err
	}
	type scored struct {
		key   string
		score float64
	}
	i.mu.RLock()
	scoreds := make([]scored, 0, len(i.sigs))
	for j, candidate := range i.sigs {
		s, err := signature.Jaccard(sig, candidate)
		if err != nil {
			continue // seed mismatch
		}
		if s >= i.threshold {
			scoreds = append(scoreds, scored{key: i.keys[j], score: s})
		}
	}
	i.mu.RUnlock()
	sort.SliceStable(scoreds, func(a, b int) bool { return scoreds[a].score > scoreds[b].score })
	out := make([]string, len(scoreds))
	for n := range scoreds {
		out[n] = scoreds[n].key
	}
	return out, nil
}

// Len returns the number of indexed keys.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.keys)
}

// Ensure Index satisfies the index.Index interface.
var _ index.Index = (*Index)(nil)
