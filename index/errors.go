package index

import "errors"

// ErrDuplicateKey is returned by Insert when the key is already indexed.
var ErrDuplicateKey = errors.New("index: key already indexed")
