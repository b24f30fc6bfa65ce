package signature

// DefaultSeed is the permutation seed used when callers do not pick one.
const DefaultSeed uint64 = 1

// Signature is a fixed-length MinHash summary of an item set. Two signatures
// are comparable only when they share Seed and length. A Signature must not be
// mutated once it has been produced.
type Signature struct {
	// Seed selects the permutation family the values were computed with.
	Seed uint64

	// Values holds one minimum hash per permutation.
	Values []uint64
}

// New returns a signature over a copy of values.
func New(seed uint64, values []uint64) *Signature {
	return &Signature{Seed: seed, Values: append([]uint64(nil), values...)}
}

// Len returns the number of permutations (slots) in the signature.
func (s *Signature) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Values)
}

// Comparable reports whether s and o share seed and length.
func (s *Signature) Comparable(o *Signature) bool {
	if s == nil || o == nil {
		return false
	}
	return s.Seed == o.Seed && len(s.Values) == len(o.Values)
}

// Equal reports whether both signatures carry identical seed and values.
func (s *Signature) Equal(o *Signature) bool {
	if !s.Comparable(o) {
		return false
	}
	for i := range s.Values {
		if s.Values[i] != o.Values[i] {
			return false
		}
	}
	return true
}

// Validate checks that s has exactly numPerm slots.
func (s *Signature) Validate(numPerm int) error {
	if s == nil {
		return &ConfigMismatchError{Want: numPerm, Got: 0}
	}
	if len(s.Values) != numPerm {
		return &ConfigMismatchError{Want: numPerm, Got: len(s.Values)}
	}
	return nil
}
