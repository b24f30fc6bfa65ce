package signature

// Jaccard estimates the Jaccard similarity of the item sets behind a and b as
// the fraction of slots on which both signatures agree. It returns a
// ConfigMismatchError if the signatures are not comparable.
func Jaccard(a, b *Signature) (float64, error) {
	if a == nil || b == nil {
		return 0, &ConfigMismatchError{Want: a.Len(), Got: b.Len()}
	}
	if len(a.Values) != len(b.Values) {
		return 0, &ConfigMismatchError{Want: len(a.Values), Got: len(b.Values)}
	}
	if a.Seed != b.Seed {
		return 0, &ConfigMismatchError{Want: len(a.Values), Got: len(b.Values), SeedMismatch: true}
	}
	if len(a.Values) == 0 {
		return 0, &ConfigMismatchError{Want: 1, Got: 0}
	}
	return float64(matching(a.Values, b.Values)) / float64(len(a.Values)), nil
}

func matching(a, b []uint64) int {
	n := 0
	for i := range a {
		if a[i] == b[i] {
			n++
		}
	}
	return n
}
