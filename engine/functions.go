package engine

import (
	"database/sql/driver"
	"fmt"
	"sync"

	"github.com/viant/sqlite-minhash/signature"
	sqlite "modernc.org/sqlite"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterSignatureFunctions registers sig_similarity and sig_len with the
// driver so they are available on connections opened after this call.
// Note: existing open connections will not see new functions.
//
//	sig_similarity(a, b) REAL  -- fraction of agreeing slots, NULL if either is NULL
//	sig_len(a) INTEGER         -- number of slots in an encoded signature
func RegisterSignatureFunctions() error {
	registerOnce.Do(func() {
		if registerErr = sqlite.RegisterDeterministicScalarFunction("sig_similarity", 2, sigSimilarityImpl); registerErr != nil {
			return
		}
		registerErr = sqlite.RegisterDeterministicScalarFunction("sig_len", 1, sigLenImpl)
	})
	return registerErr
}

func asSignature(arg driver.Value) (*signature.Signature, error) {
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case []byte:
		return signature.DecodeAny(v)
	default:
		return nil, fmt.Errorf("sig: unsupported argument type %T for signature; want BLOB", arg)
	}
}

func sigSimilarityImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("sig_similarity: expected 2 arguments, got %d", len(args))
	}
	a, err := asSignature(args[0])
	if err != nil {
		return nil, err
	}
	b, err := asSignature(args[1])
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, nil
	}
	sim, err := signature.Jaccard(a, b)
	if err != nil {
		return nil, err
	}
	return sim, nil
}

func sigLenImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("sig_len: expected 1 argument, got %d", len(args))
	}
	s, err := asSignature(args[0])
	if err != nil || s == nil {
		return nil, err
	}
	return int64(s.Len()), nil
}
