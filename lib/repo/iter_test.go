package repo

import (
	"errors"
	"fmt"
	"testing"
)

// TestIterYieldsRowsInOrder checks N rows are yielded once each in key order, then exhaustion once
func TestIterYieldsRowsInOrder(t *testing.T) {
	r, _ := testRepo(t, []string{"cfg"})
	must(t, r.Start())
	defer r.Abort()

	const n = 25
	for i := n - 1; i >= 0; i-- {
		must(t, r.Update("cfg", []byte(fmt.Sprintf("key-%03d", i)), []byte(fmt.Sprintf("val-%d", i))))
	}

	it, err := r.CreateIter("cfg")
	must(t, err)
	defer it.Close()

	for i := 0; i < n; i++ {
		k, v, err := it.Step(WantBoth)
		if err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
		if want := fmt.Sprintf("key-%03d", i); string(k) != want {
			t.Errorf("Expected key %s, got %s", want, k)
		}
		if want := fmt.Sprintf("val-%d", i); string(v) != want {
			t.Errorf("Expected value %s, got %s", want, v)
		}
	}

	if _, _, err := it.Step(WantBoth); !errors.Is(err, ErrExhausted) {
		t.Errorf("Expected ErrExhausted, got %v", err)
	}
	if _, _, err := it.Step(WantBoth); !errors.Is(err, ErrStaleIter) {
		t.Errorf("Expected ErrStaleIter after exhaustion, got %v", err)
	}
}

// TestIterWant checks only the requested parts are copied out
func TestIterWant(t *testing.T) {
	r, _ := testRepo(t, []string{"cfg"})
	must(t, r.Start())
	defer r.Abort()
	must(t, r.Update("cfg", []byte("a"), []byte("1")))
	must(t, r.Update("cfg", []byte("b"), []byte("2")))

	it, err := r.CreateIter("cfg")
	must(t, err)

	k, v, err := it.Step(WantKey)
	must(t, err)
	if string(k) != "a" || v != nil {
		t.Errorf("Expected key only, got (%q, %q)", k, v)
	}
	k, v, err = it.Step(WantValue)
	must(t, err)
	if k != nil || string(v) != "2" {
		t.Errorf("Expected value only, got (%q, %q)", k, v)
	}
}

// TestIterEmptyTable checks an empty table is exhausted immediately
func TestIterEmptyTable(t *testing.T) {
	r, _ := testRepo(t, []string{"cfg"})
	must(t, r.Start())
	defer r.Abort()

	it, err := r.CreateIter("cfg")
	must(t, err)
	if _, _, err := it.Step(WantBoth); !errors.Is(err, ErrExhausted) {
		t.Errorf("Expected ErrExhausted, got %v", err)
	}
}

// TestIterBoundToTransaction checks an iterator cannot outlive its transaction
func TestIterBoundToTransaction(t *testing.T) {
	r, _ := testRepo(t, []string{"cfg"})
	must(t, r.Start())
	must(t, r.Update("cfg", []byte("a"), []byte("1")))

	it, err := r.CreateIter("cfg")
	must(t, err)
	must(t, r.Commit())

	if _, _, err := it.Step(WantBoth); !errors.Is(err, ErrStaleIter) {
		t.Errorf("Expected ErrStaleIter after commit, got %v", err)
	}

	// a new transaction must not revive the old iterator
	must(t, r.Start())
	defer r.Abort()
	if _, _, err := it.Step(WantBoth); !errors.Is(err, ErrStaleIter) {
		t.Errorf("Expected ErrStaleIter in a later transaction, got %v", err)
	}

	it2, err := r.CreateIter("cfg")
	must(t, err)
	it2.Close()
	if _, _, err := it2.Step(WantBoth); !errors.Is(err, ErrStaleIter) {
		t.Errorf("Expected ErrStaleIter after Close, got %v", err)
	}
}

// TestCreateIterErrors checks iterator creation preconditions
func TestCreateIterErrors(t *testing.T) {
	r, _ := testRepo(t, []string{"cfg"})
	if _, err := r.CreateIter("cfg"); !errors.Is(err, ErrNoTxn) {
		t.Errorf("Expected ErrNoTxn, got %v", err)
	}
	must(t, r.Start())
	defer r.Abort()
	if _, err := r.CreateIter("missing"); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("Expected ErrTableNotFound, got %v", err)
	}
}
