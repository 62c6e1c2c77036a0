package repo

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidFlags     = errors.New("repo: invalid open flags")
	ErrEmptyPath        = errors.New("repo: empty path")
	ErrInvalidTable     = errors.New("repo: invalid table name")
	ErrEmptyKey         = errors.New("repo: empty key")
	ErrEmptyValue       = errors.New("repo: empty value")
	ErrClosed           = errors.New("repo: repository is closed")
	ErrNoTxn            = errors.New("repo: no active transaction")
	ErrTxnOpen          = errors.New("repo: transaction already open")
	ErrNotFound         = errors.New("repo: key not found")
	ErrTableNotFound    = errors.New("repo: table not found")
	ErrBadCounter       = errors.New("repo: malformed sequence counter")
	ErrSeqOverflow      = errors.New("repo: sequence counter exhausted")
	ErrRecoveryDisabled = errors.New("repo: recovery is not enabled")
	ErrNoSnapshot       = errors.New("repo: no snapshot to roll back to")
	ErrExhausted        = errors.New("repo: iterator exhausted")
	ErrStaleIter        = errors.New("repo: stale iterator")
)

// TableError reports a failed operation on one table, optionally on one key.
type TableError struct {
	Op    string
	Table string
	Key   []byte
	Err   error
}

func tableErr(op, table string, key []byte, err error) error {
	return &TableError{Op: op, Table: table, Key: key, Err: err}
}

func (e *TableError) Unwrap() error {
	return e.Err
}

func (e *TableError) Error() string {
	var buf strings.Builder
	buf.WriteString("repo: ")
	buf.WriteString(e.Op)
	buf.WriteByte(' ')
	buf.WriteString(e.Table)
	if e.Key != nil {
		buf.WriteByte('/')
		buf.WriteString(fmt.Sprintf("%q", e.Key))
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(strings.TrimPrefix(e.Err.Error(), "repo: "))
	}
	return buf.String()
}
