package signature

import (
	"encoding/binary"
)

// headerSize is the size of the encoded seed.
const headerSize = 8

// EncodedSize returns the canonical BLOB size for numPerm slots.
func EncodedSize(numPerm int) int { return headerSize + 8*numPerm }

// Encode writes the signature into its canonical BLOB representation: the seed
// followed by every slot value, each as a little-endian uint64, with no length
// prefix or padding. The slot count is derived from the BLOB size on decode.
func Encode(sig *Signature) []byte {
	if sig == nil {
		return nil
	}
	b := make([]byte, EncodedSize(len(sig.Values)))
	binary.LittleEndian.PutUint64(b, sig.Seed)
	for i, v := range sig.Values {
		binary.LittleEndian.PutUint64(b[headerSize+i*8:], v)
	}
	return b
}

// Decode decodes a BLOB produced by Encode, requiring exactly numPerm slots.
func Decode(b []byte, numPerm int) (*Signature, error) {
	if want := EncodedSize(numPerm); len(b) != want {
		return nil, &FormatError{Length: len(b), Want: want}
	}
	return decode(b), nil
}

// DecodeAny decodes a BLOB of any well-formed size, deriving the slot count
// from its length.
func DecodeAny(b []byte) (*Signature, error) {
	if len(b) < headerSize || (len(b)-headerSize)%8 != 0 {
		return nil, &FormatError{Length: len(b)}
	}
	return decode(b), nil
}

func decode(b []byte) *Signature {
	n := (len(b) - headerSize) / 8
	sig := &Signature{
		Seed:   binary.LittleEndian.Uint64(b),
		Values: make([]uint64, n),
	}
	for i := 0; i < n; i++ {
		sig.Values[i] = binary.LittleEndian.Uint64(b[headerSize+i*8:])
	}
	return sig
}
