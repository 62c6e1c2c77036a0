package repo

import (
	"bytes"

	"go.etcd.io/bbolt"
)

// Want selects what Step copies out of the current row
type Want uint8

const (
	WantKey Want = 1 << iota
	WantValue

	WantBoth = WantKey | WantValue
)

// Iter walks one table in key order within the transaction that created it
type Iter struct {
	repo   *Repo
	gen    uint64
	table  string
	cursor *bbolt.Cursor
	key    []byte
	value  []byte
	done   bool
	closed bool
}

// CreateIter positions a new iterator on the first row of table. An empty
// table yields an iterator whose first Step reports ErrExhausted.
func (r *Repo) CreateIter(table string) (*Iter, error) {
	b, err := r.bucket("create_iter", table)
	if err != nil {
		return nil, err
	}
	c := b.Cursor()
	k, v := c.First()
	return &Iter{
		repo:   r,
		gen:    r.gen,
		table:  table,
		cursor: c,
		key:    k,
		value:  v,
	}, nil
}

// Table returns the table the iterator walks
func (it *Iter) Table() string { return it.table }

func (it *Iter) stale() bool {
	return it.closed || it.repo.tx == nil || it.repo.gen != it.gen
}

// Step returns copies of the current key and/or value and advances. After the
// last row it returns ErrExhausted once, then ErrStaleIter.
func (it *Iter) Step(want Want) (key, value []byte, err error) {
	if it.stale() {
		return nil, nil, ErrStaleIter
	}
	if it.key == nil {
		if it.done {
			return nil, nil, ErrStaleIter
		}
		it.done = true
		return nil, nil, ErrExhausted
	}

	if want&WantKey != 0 {
		key = bytes.Clone(it.key)
	}
	if want&WantValue != 0 {
		value = bytes.Clone(it.value)
		if value == nil {
			value = []byte{}
		}
	}
	it.key, it.value = it.cursor.Next()
	return key, value, nil
}

// Close releases the cursor. It is safe to call more than once.
func (it *Iter) Close() {
	it.closed = true
	it.cursor = nil
	it.key, it.value = nil, nil
}
