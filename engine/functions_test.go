package engine

import (
	"math"
	"sync"
	"testing"

	"github.com/viant/sqlite-minhash/signature"
)

func TestRegisterSignatureFunctionsAndUse(t *testing.T) {
	// Register globally before first connection so functions are available.
	if err := RegisterSignatureFunctions(); err != nil {
		t.Fatalf("RegisterSignatureFunctions failed: %v", err)
	}
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer db.Close()

	// Registration is idempotent.
	if err := RegisterSignatureFunctions(); err != nil {
		t.Fatalf("second RegisterSignatureFunctions failed: %v", err)
	}

	a := signature.Encode(signature.New(1, []uint64{1, 2, 3, 4}))
	b := signature.Encode(signature.New(1, []uint64{1, 2, 9, 9}))

	var sim float64
	if err := db.QueryRow(`SELECT sig_similarity(?, ?)`, a, a).Scan(&sim); err != nil {
		t.Fatalf("sig_similarity(a,a) query failed: %v", err)
	}
	if sim != 1 {
		t.Fatalf("sig_similarity(a,a) = %v, want 1", sim)
	}

	if err := db.QueryRow(`SELECT sig_similarity(?, ?)`, a, b).Scan(&sim); err != nil {
		t.Fatalf("sig_similarity(a,b) query failed: %v", err)
	}
	if math.Abs(sim-0.5) > 1e-9 {
		t.Fatalf("sig_similarity(a,b) = %v, want 0.5", sim)
	}

	var n int64
	if err := db.QueryRow(`SELECT sig_len(?)`, a).Scan(&n); err != nil {
		t.Fatalf("sig_len query failed: %v", err)
	}
	if n != 4 {
		t.Fatalf("sig_len = %d, want 4", n)
	}

	// Mismatched lengths surface as a query error.
	c := signature.Encode(signature.New(1, []uint64{1, 2}))
	if err := db.QueryRow(`SELECT sig_similarity(?, ?)`, a, c).Scan(&sim); err == nil {
		t.Fatalf("sig_similarity on mismatched lengths expected error")
	}
}

func TestRegisterSignatureFunctions_FailureIsSticky(t *testing.T) {
	if err := RegisterSignatureFunctions(); err != nil {
		t.Fatalf("RegisterSignatureFunctions failed: %v", err)
	}
	t.Cleanup(func() {
		registerOnce = sync.Once{}
		registerOnce.Do(func() {})
		registerErr = nil
	})

	// The driver refuses a second registration under the same name.
	registerOnce = sync.Once{}
	registerErr = nil
	first := RegisterSignatureFunctions()
	if first == nil {
		t.Fatalf("re-registering sig_similarity expected error")
	}
	if err := RegisterSignatureFunctions(); err != first {
		t.Fatalf("later call returned %v, want the first error %v", err, first)
	}
}
