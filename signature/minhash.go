package signature

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

const (
	// mersennePrime is 2^61 - 1, the modulus of the permutation family.
	mersennePrime uint64 = (1 << 61) - 1

	// maxHash bounds slot values to 32 bits.
	maxHash uint64 = (1 << 32) - 1
)

// MinHash accumulates items and produces a Signature. Each of the numPerm
// slots applies a random linear permutation (a*h + b) mod 2^61-1 to the
// item hash and keeps the minimum. Permutation coefficients are derived
// deterministically from the seed, so two builders with the same seed and
// numPerm produce comparable signatures.
//
// MinHash is not safe for concurrent use.
type MinHash struct {
	seed   uint64
	a, b   []uint64
	values []uint64
}

// NewMinHash creates a builder with numPerm permutations.
func NewMinHash(numPerm int, seed uint64) (*MinHash, error) {
	if numPerm <= 0 {
		return nil, fmt.Errorf("signature: numPerm must be positive, got %d", numPerm)
	}
	m := &MinHash{
		seed:   seed,
		a:      make([]uint64, numPerm),
		b:      make([]uint64, numPerm),
		values: make([]uint64, numPerm),
	}
	var buf [17]byte
	binary.LittleEndian.PutUint64(buf[0:8], seed)
	for i := 0; i < numPerm; i++ {
		binary.LittleEndian.PutUint64(buf[8:16], uint64(i))
		buf[16] = 'a'
		m.a[i] = xxhash.Sum64(buf[:])%(mersennePrime-1) + 1
		buf[16] = 'b'
		m.b[i] = xxhash.Sum64(buf[:]) % mersennePrime
		m.values[i] = maxHash
	}
	return m, nil
}

// Update adds items to the underlying set.
func (m *MinHash) Update(items ...[]byte) {
	for _, item := range items {
		h := xxhash.Sum64(item) & maxHash
		for i := range m.values {
			if v := permute(m.a[i], m.b[i], h); v < m.values[i] {
				m.values[i] = v
			}
		}
	}
}

// UpdateStrings adds string items to the underlying set.
func (m *MinHash) UpdateStrings(items ...string) {
	for _, item := range items {
		m.Update([]byte(item))
	}
}

// Signature returns a snapshot of the current state.
func (m *MinHash) Signature() *Signature {
	return New(m.seed, m.values)
}

func permute(a, b, h uint64) uint64 {
	hi, lo := bits.Mul64(a, h)
	lo, carry := bits.Add64(lo, b, 0)
	hi += carry
	return bits.Rem64(hi, lo, mersennePrime) & maxHash
}
