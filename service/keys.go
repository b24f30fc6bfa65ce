package service

import (
	"fmt"
	"strconv"
	"strings"
)

// KeySeparator joins owner and record id in index keys.
const KeySeparator = "_"

// ValidateOwner checks that owner can be encoded into an unambiguous key.
func ValidateOwner(owner string) error {
	switch {
	case owner == "":
		return &InvalidOwnerError{Owner: owner, Reason: "empty"}
	case strings.Contains(owner, KeySeparator):
		return &InvalidOwnerError{Owner: owner, Reason: fmt.Sprintf("contains separator %q", KeySeparator)}
	}
	return nil
}

// FormatKey encodes (owner, id) as an index key.
func FormatKey(owner string, id int64) string {
	return owner + KeySeparator + strconv.FormatInt(id, 10)
}

// ParseKey decodes a key produced by FormatKey. The id never contains the
// separator, so the key is split at its last occurrence.
func ParseKey(key string) (string, int64, error) {
	i := strings.LastIndex(key, KeySeparator)
	if i <= 0 || i == len(key)-1 {
		return "", 0, fmt.Errorf("service: malformed key %q", key)
	}
	id, err := strconv.ParseInt(key[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("service: malformed key %q: %w", key, err)
	}
	return key[:i], id, nil
}
