package repo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// testRepo creates a fresh repository in a temp dir and closes it on cleanup
func testRepo(t *testing.T, tables []string, opts ...Option) (*Repo, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hed.db")
	opts = append(opts, WithNoSync())
	r, err := Open(path, tables, ReadWrite|Create, 0o600, opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r, path
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestOpenRejectsInvalidArguments checks flag, path and table validation
func TestOpenRejectsInvalidArguments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.db")

	tests := []struct {
		name   string
		path   string
		tables []string
		flags  Flag
		want   error
	}{
		{"no access mode", path, nil, Create, ErrInvalidFlags},
		{"both access modes", path, nil, ReadOnly | ReadWrite, ErrInvalidFlags},
		{"create without rdwr", path, nil, ReadOnly | Create, ErrInvalidFlags},
		{"truncate without create", path, nil, ReadWrite | Truncate, ErrInvalidFlags},
		{"unknown bit", path, nil, ReadWrite | Flag(1<<10), ErrInvalidFlags},
		{"empty path", "", nil, ReadWrite | Create, ErrEmptyPath},
		{"empty table", path, []string{""}, ReadWrite | Create, ErrInvalidTable},
		{"reserved table", path, []string{".hed"}, ReadWrite | Create, ErrInvalidTable},
		{"duplicate table", path, []string{"a", "a"}, ReadWrite | Create, ErrInvalidTable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Open(tc.path, tc.tables, tc.flags, 0o600)
			if !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
			if r != nil {
				t.Errorf("Expected no handle on failure")
			}
		})
	}

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected no file to be created, stat returned %v", err)
	}
}

// TestOpenWithoutCreate checks that a missing file is not created implicitly
func TestOpenWithoutCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")
	for _, flags := range []Flag{ReadOnly, ReadWrite} {
		if _, err := Open(path, []string{"cfg"}, flags, 0o600); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s: expected ErrNotExist, got %v", flags, err)
		}
	}
}

// TestOpenMissingTable checks that a table unknown to the file is refused without Create
func TestOpenMissingTable(t *testing.T) {
	r, path := testRepo(t, []string{"cfg"})
	must(t, r.Close())

	if _, err := Open(path, []string{"cfg", "other"}, ReadOnly, 0o600); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("Expected ErrTableNotFound for read-only open, got %v", err)
	}
	if _, err := Open(path, []string{"cfg", "other"}, ReadWrite, 0o600); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("Expected ErrTableNotFound for read-write open, got %v", err)
	}
}

// TestCountersInitialized checks every user table gets a zero counter on create
func TestCountersInitialized(t *testing.T) {
	r, _ := testRepo(t, []string{"a", "b"})
	must(t, r.Start())
	defer r.Abort()

	for _, table := range []string{"a", "b"} {
		raw, err := r.Get(MetaTable, []byte(table))
		if err != nil {
			t.Fatalf("Expected counter for %s: %v", table, err)
		}
		if !bytes.Equal(raw, []byte{0, 0, 0, 0}) {
			t.Errorf("Expected zero counter for %s, got %x", table, raw)
		}
	}
}

// TestEndToEnd covers the write, commit, reopen read-only, read cycle
func TestEndToEnd(t *testing.T) {
	r, path := testRepo(t, []string{"cfg"})
	value := []byte{1, 2, 3, 4}

	must(t, r.Start())
	seq, err := r.NextSeq("cfg")
	must(t, err)
	if seq != 1 {
		t.Errorf("Expected first sequence 1, got %d", seq)
	}
	must(t, r.Update("cfg", []byte("k"), value))
	must(t, r.Commit())
	must(t, r.Close())

	ro, err := Open(path, []string{"cfg"}, ReadOnly, 0o600)
	must(t, err)
	defer ro.Close()

	must(t, ro.Start())
	defer ro.Abort()

	got, err := ro.Get("cfg", []byte("k"))
	must(t, err)
	if !bytes.Equal(got, value) {
		t.Errorf("Expected %x, got %x", value, got)
	}
	n, err := ro.Count("cfg")
	must(t, err)
	if n != 1 {
		t.Errorf("Expected count 1, got %d", n)
	}
	if err := ro.Update("cfg", []byte("k"), value); err == nil {
		t.Errorf("Expected update in read-only repository to fail")
	}
}

// TestNextSeq checks sequences are consecutive and mirrored in the metadata table
func TestNextSeq(t *testing.T) {
	r, _ := testRepo(t, []string{"cfg"})
	must(t, r.Start())
	defer r.Abort()

	for i := uint32(1); i <= 5; i++ {
		seq, err := r.NextSeq("cfg")
		must(t, err)
		if seq != i {
			t.Fatalf("Expected sequence %d, got %d", i, seq)
		}
		raw, err := r.Get(MetaTable, []byte("cfg"))
		must(t, err)
		if got := binary.LittleEndian.Uint32(raw); got != i {
			t.Errorf("Expected stored counter %d, got %d", i, got)
		}
	}

	if seq, err := r.NextSeq("nope"); seq != 0 || !errors.Is(err, ErrTableNotFound) {
		t.Errorf("Expected (0, ErrTableNotFound), got (%d, %v)", seq, err)
	}
	if seq, err := r.NextSeq(MetaTable); seq != 0 || !errors.Is(err, ErrInvalidTable) {
		t.Errorf("Expected (0, ErrInvalidTable), got (%d, %v)", seq, err)
	}
}

// TestNextSeqOverflow checks the counter never wraps around to 0
func TestNextSeqOverflow(t *testing.T) {
	r, _ := testRepo(t, []string{"cfg"})
	must(t, r.Start())
	defer r.Abort()

	must(t, r.Update(MetaTable, []byte("cfg"), []byte{0xff, 0xff, 0xff, 0xff}))
	seq, err := r.NextSeq("cfg")
	if seq != 0 || !errors.Is(err, ErrSeqOverflow) {
		t.Errorf("Expected (0, ErrSeqOverflow), got (%d, %v)", seq, err)
	}
}

// TestCommitAndAbort checks visibility of committed and aborted writes
func TestCommitAndAbort(t *testing.T) {
	r, _ := testRepo(t, []string{"cfg"})

	must(t, r.Start())
	must(t, r.Update("cfg", []byte("a"), []byte("1")))
	must(t, r.Commit())

	must(t, r.Start())
	must(t, r.Update("cfg", []byte("b"), []byte("2")))
	must(t, r.Abort())

	must(t, r.Start())
	defer r.Abort()
	if _, err := r.Get("cfg", []byte("a")); err != nil {
		t.Errorf("Expected committed key: %v", err)
	}
	if _, err := r.Get("cfg", []byte("b")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected aborted key to be missing, got %v", err)
	}
}

// TestTransactionState checks the at-most-one transaction rule
func TestTransactionState(t *testing.T) {
	r, _ := testRepo(t, []string{"cfg"})

	if err := r.Commit(); !errors.Is(err, ErrNoTxn) {
		t.Errorf("Expected ErrNoTxn on commit, got %v", err)
	}
	if err := r.Abort(); !errors.Is(err, ErrNoTxn) {
		t.Errorf("Expected ErrNoTxn on abort, got %v", err)
	}
	if _, err := r.Get("cfg", []byte("k")); !errors.Is(err, ErrNoTxn) {
		t.Errorf("Expected ErrNoTxn on get, got %v", err)
	}

	must(t, r.Start())
	if !r.InTxn() {
		t.Errorf("Expected InTxn after Start")
	}
	if err := r.Start(); !errors.Is(err, ErrTxnOpen) {
		t.Errorf("Expected ErrTxnOpen, got %v", err)
	}
	if err := r.Reload(); !errors.Is(err, ErrTxnOpen) {
		t.Errorf("Expected ErrTxnOpen on reload, got %v", err)
	}
	must(t, r.Commit())
	if r.InTxn() {
		t.Errorf("Expected no transaction after Commit")
	}
}

// TestRowValidation checks key, value and table validation of row operations
func TestRowValidation(t *testing.T) {
	r, _ := testRepo(t, []string{"cfg"})
	must(t, r.Start())
	defer r.Abort()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"get empty key", func() error { _, err := r.Get("cfg", nil); return err }(), ErrEmptyKey},
		{"update empty key", r.Update("cfg", nil, []byte("v")), ErrEmptyKey},
		{"update empty value", r.Update("cfg", []byte("k"), nil), ErrEmptyValue},
		{"del empty key", r.Del("cfg", nil), ErrEmptyKey},
		{"del missing key", r.Del("cfg", []byte("k")), ErrNotFound},
		{"unknown table", r.Update("other", []byte("k"), []byte("v")), ErrTableNotFound},
		{"empty table", r.Update("", []byte("k"), []byte("v")), ErrInvalidTable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, tc.err)
			}
		})
	}
}

// TestDelAndCount checks deletes are reflected by Count
func TestDelAndCount(t *testing.T) {
	r, _ := testRepo(t, []string{"cfg"})
	must(t, r.Start())
	defer r.Abort()

	for _, k := range []string{"a", "b", "c"} {
		must(t, r.Update("cfg", []byte(k), []byte("v")))
	}
	must(t, r.Del("cfg", []byte("b")))

	n, err := r.Count("cfg")
	must(t, err)
	if n != 2 {
		t.Errorf("Expected count 2, got %d", n)
	}
}

// TestCountSeesOwnWrites checks Count includes the writes of the active
// transaction on top of the committed rows
func TestCountSeesOwnWrites(t *testing.T) {
	r, _ := testRepo(t, []string{"cfg"})

	must(t, r.Start())
	must(t, r.Update("cfg", []byte("a"), []byte("v")))
	n, err := r.Count("cfg")
	must(t, err)
	if n != 1 {
		t.Errorf("Expected count 1 before commit, got %d", n)
	}
	must(t, r.Commit())

	must(t, r.Start())
	defer r.Abort()
	must(t, r.Update("cfg", []byte("b"), []byte("v")))
	n, err = r.Count("cfg")
	must(t, err)
	if n != 2 {
		t.Errorf("Expected count 2, got %d", n)
	}
}

// TestTruncate checks truncating drops rows and resets counters
func TestTruncate(t *testing.T) {
	r, path := testRepo(t, []string{"cfg"})
	must(t, r.Start())
	must(t, r.Update("cfg", []byte("k"), []byte("v")))
	_, err := r.NextSeq("cfg")
	must(t, err)
	must(t, r.SetVersion([]byte("v1")))
	must(t, r.Commit())
	must(t, r.Close())

	r2, err := Open(path, []string{"cfg"}, ReadWrite|Create|Truncate, 0o600, WithNoSync())
	must(t, err)
	defer r2.Close()

	must(t, r2.Start())
	defer r2.Abort()

	if n, _ := r2.Count("cfg"); n != 0 {
		t.Errorf("Expected empty table after truncate, got %d rows", n)
	}
	if seq, _ := r2.NextSeq("cfg"); seq != 1 {
		t.Errorf("Expected sequence to restart at 1, got %d", seq)
	}
	if _, err := r2.GetVersion(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected version to be dropped, got %v", err)
	}
}

// TestVersion checks the version blob round trip
func TestVersion(t *testing.T) {
	r, _ := testRepo(t, []string{"cfg"})
	must(t, r.Start())
	if _, err := r.GetVersion(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unset version, got %v", err)
	}
	must(t, r.SetVersion([]byte{0, 1}))
	must(t, r.Commit())

	must(t, r.Start())
	defer r.Abort()
	v, err := r.GetVersion()
	must(t, err)
	if !bytes.Equal(v, []byte{0, 1}) {
		t.Errorf("Expected version 0001, got %x", v)
	}
}

// TestCloseIdempotent checks Close twice and operations on a closed handle
func TestCloseIdempotent(t *testing.T) {
	r, _ := testRepo(t, []string{"cfg"})
	must(t, r.Start())
	must(t, r.Close())
	must(t, r.Close())

	if r.IsOpen() || r.InTxn() {
		t.Errorf("Expected closed handle without transaction")
	}
	if err := r.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := r.Reload(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed on reload, got %v", err)
	}
}

// TestReload checks data survives a reload and create flags are not reapplied
func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hed.db")
	r, err := Open(path, []string{"cfg"}, ReadWrite|Create|Truncate, 0o600, WithNoSync())
	must(t, err)
	defer r.Close()

	must(t, r.Start())
	must(t, r.Update("cfg", []byte("k"), []byte("v")))
	must(t, r.Commit())

	must(t, r.Reload())

	must(t, r.Start())
	defer r.Abort()
	if _, err := r.Get("cfg", []byte("k")); err != nil {
		t.Errorf("Expected key to survive reload: %v", err)
	}
}

// TestFlagString checks the flag renderer
func TestFlagString(t *testing.T) {
	tests := map[Flag]string{
		0:                            "none",
		ReadOnly:                     "rdonly",
		ReadWrite | Create | Truncate: "rdwr|create|trunc",
	}
	for f, want := range tests {
		if got := f.String(); got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
}
