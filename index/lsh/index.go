package lsh

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/viant/sqlite-minhash/index"
	"github.com/viant/sqlite-minhash/signature"
)

// Index is a banded MinHash LSH index.
type Index struct {
	numPerm   int
	threshold float64
	params    Params
	bands     []*band
	keys      sync.Map // key -> struct{}
	count     atomic.Int64
}

// band holds the buckets of one band. A bucket is the set of keys whose
// band slice hashed to the same value.
type band struct {
	mu      sync.RWMutex
	buckets map[string][]string
}

// Option customises an Index.
type Option func(*options)

type options struct {
	params *Params
}

// WithParams fixes the banding configuration instead of tuning it from the
// threshold.
func WithParams(p Params) Option {
	return func(o *options) { o.params = &p }
}

// New creates an index for signatures of numPerm slots tuned for the given
// Jaccard threshold.
func New(numPerm int, threshold float64, opts ...Option) (*Index, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	var params Params
	if o.params != nil {
		params = *o.params
		if err := params.Validate(numPerm); err != nil {
			return nil, err
		}
	} else {
		p, err := OptimalParams(threshold, numPerm)
		if err != nil {
			return nil, err
		}
		params = p
	}
	ix := &Index{
		numPerm:   numPerm,
		threshold: threshold,
		params:    params,
		bands:     make([]*band, params.Bands),
	}
	for i := range ix.bands {
		ix.bands[i] = &band{buckets: map[string][]string{}}
	}
	return ix, nil
}

// Params returns the banding configuration.
func (ix *Index) Params() Params { return ix.params }

// NumPerm returns the signature length the index accepts.
func (ix *Index) NumPerm() int { return ix.numPerm }

// Threshold returns the configured Jaccard threshold.
func (ix *Index) Threshold() float64 { return ix.threshold }

// Insert adds key to the bucket of every band.
func (ix *Index) Insert(key string, sig *signature.Signature) error {
	if err := sig.Validate(ix.numPerm); err != nil {
		return err
	}
	if _, loaded := ix.keys.LoadOrStore(key, struct{}{}); loaded {
		return fmt.Errorf("lsh: %w: %q", index.ErrDuplicateKey, key)
	}
	for i, b := range ix.bands {
		hv := ix.bandKey(sig, i)
		b.mu.Lock()
		b.buckets[hv] = append(b.buckets[hv], key)
		b.mu.Unlock()
	}
	ix.count.Add(1)
	return nil
}

// Query returns the union of the buckets sig falls into, sorted.
func (ix *Index) Query(sig *signature.Signature) ([]string, error) {
	if err := sig.Validate(ix.numPerm); err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	for i, b := range ix.bands {
		hv := ix.bandKey(sig, i)
		b.mu.RLock()
		for _, key := range b.buckets[hv] {
			seen[key] = struct{}{}
		}
		b.mu.RUnlock()
	}
	out := make([]string, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}

// Contains reports whether key has been inserted.
func (ix *Index) Contains(key string) bool {
	_, ok := ix.keys.Load(key)
	return ok
}

// Len returns the number of indexed keys.
func (ix *Index) Len() int { return int(ix.count.Load()) }

// Keys returns all indexed keys, sorted.
func (ix *Index) Keys() []string {
	var out []string
	ix.keys.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	sort.Strings(out)
	return out
}

// Stats summarises bucket occupancy.
type Stats struct {
	Params  Params
	Keys    int
	Buckets []int // bucket count per band
	Largest int   // size of the largest bucket
}

// Stats returns occupancy counters for every band.
func (ix *Index) Stats() Stats {
	st := Stats{Params: ix.params, Keys: ix.Len(), Buckets: make([]int, len(ix.bands))}
	for i, b := range ix.bands {
		b.mu.RLock()
		st.Buckets[i] = len(b.buckets)
		for _, keys := range b.buckets {
			if len(keys) > st.Largest {
				st.Largest = len(keys)
			}
		}
		b.mu.RUnlock()
	}
	return st
}

// bandKey serialises the r slots of band i into a map key.
func (ix *Index) bandKey(sig *signature.Signature, i int) string {
	r := ix.params.Rows
	buf := make([]byte, 8*r)
	for j, v := range sig.Values[i*r : (i+1)*r] {
		binary.LittleEndian.PutUint64(buf[j*8:], v)
	}
	return string(buf)
}

// Ensure Index satisfies the index.Index interface.
var _ index.Index = (*Index)(nil)
