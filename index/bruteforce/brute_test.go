package bruteforce

import (
	"errors"
	"testing"

	"github.com/viant/sqlite-minhash/index"
	"github.com/viant/sqlite-minhash/signature"
)

func sig(values ...uint64) *signature.Signature { return signature.New(1, values) }

func TestIndex_QueryOrdersBySimilarity(t *testing.T) {
	ix, err := New(4, 0.5)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := ix.Insert("half", sig(1, 2, 9, 9)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := ix.Insert("same", sig(1, 2, 3, 4)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := ix.Insert("far", sig(9, 9, 9, 4)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := ix.Query(sig(1, 2, 3, 4))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 2 || got[0] != "same" || got[1] != "half" {
		t.Fatalf("Query = %v, want [same half]", got)
	}
}

func TestIndex_Errors(t *testing.T) {
	ix, _ := New(4, 0.5)
	var cme *signature.ConfigMismatchError
	if err := ix.Insert("k", sig(1, 2)); !errors.As(err, &cme) {
		t.Fatalf("Insert error = %v, want *ConfigMismatchError", err)
	}
	if err := ix.Insert("k", sig(1, 2, 3, 4)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := ix.Insert("k", sig(1, 2, 3, 4)); !errors.Is(err, index.ErrDuplicateKey) {
		t.Fatalf("duplicate Insert error = %v, want ErrDuplicateKey", err)
	}
	if ix.Len() != 1 {
		t.Fatalf("Len = %d, want 1", ix.Len())
	}
	if _, err := New(0, 0.5); err == nil {
		t.Fatalf("New(0) expected error")
	}
}
