package signature

import "fmt"

// FormatError reports a serialized signature that cannot be decoded.
type FormatError struct {
	Length int

	// Want is the expected length, or 0 when any 8+8*n length is accepted.
	Want int
}

func (e *FormatError) Error() string {
	if e.Want == 0 {
		return fmt.Sprintf("signature: invalid blob length %d (not 8+8*n)", e.Length)
	}
	return fmt.Sprintf("signature: invalid blob length %d, want %d", e.Length, e.Want)
}

// ConfigMismatchError reports a signature whose shape does not match the
// configured number of permutations (or whose seed differs from its peer).
type ConfigMismatchError struct {
	Want int
	Got  int

	// SeedMismatch is set when lengths agree but seeds do not.
	SeedMismatch bool
}

func (e *ConfigMismatchError) Error() string {
	if e.SeedMismatch {
		return "signature: seed mismatch"
	}
	return fmt.Sprintf("signature: num_perm mismatch: got %d, want %d", e.Got, e.Want)
}
