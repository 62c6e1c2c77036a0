package repo

import (
	"encoding/binary"
	"math"

	"go.etcd.io/bbolt"
)

const counterSize = 4

func encodeCounter(seq uint32) []byte {
	buf := make([]byte, counterSize)
	binary.LittleEndian.PutUint32(buf, seq)
	return buf
}

// DecodeCounter decodes a sequence counter as stored in MetaTable
func DecodeCounter(raw []byte) (uint32, error) {
	if len(raw) != counterSize {
		return 0, ErrBadCounter
	}
	return binary.LittleEndian.Uint32(raw), nil
}

// bucket resolves a known table inside the active transaction
func (r *Repo) bucket(op, table string) (*bbolt.Bucket, error) {
	tx, err := r.activeTx()
	if err != nil {
		return nil, err
	}
	if table == "" {
		return nil, tableErr(op, table, nil, ErrInvalidTable)
	}
	if _, ok := r.known[table]; !ok {
		return nil, tableErr(op, table, nil, ErrTableNotFound)
	}
	b := tx.Bucket([]byte(table))
	if b == nil {
		return nil, tableErr(op, table, nil, ErrTableNotFound)
	}
	return b, nil
}

// --------------------------------------------------------------------------
// Row operations (all require an active transaction)
// --------------------------------------------------------------------------

// Get returns the value stored under key. The returned slice is owned by the
// engine and only valid until the transaction ends.
func (r *Repo) Get(table string, key []byte) ([]byte, error) {
	b, err := r.bucket("get", table)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, tableErr("get", table, nil, ErrEmptyKey)
	}
	v := b.Get(key)
	if v == nil {
		return nil, tableErr("get", table, key, ErrNotFound)
	}
	return v, nil
}

// Update inserts or replaces the value stored under key
func (r *Repo) Update(table string, key, value []byte) error {
	b, err := r.bucket("update", table)
	if err != nil {
		return err
	}
	if len(key) == 0 {
		return tableErr("update", table, nil, ErrEmptyKey)
	}
	if len(value) == 0 {
		return tableErr("update", table, key, ErrEmptyValue)
	}
	if err := b.Put(key, value); err != nil {
		return tableErr("update", table, key, err)
	}
	return nil
}

// Del removes key. Deleting a missing key reports ErrNotFound.
func (r *Repo) Del(table string, key []byte) error {
	b, err := r.bucket("del", table)
	if err != nil {
		return err
	}
	if len(key) == 0 {
		return tableErr("del", table, nil, ErrEmptyKey)
	}
	if b.Get(key) == nil {
		return tableErr("del", table, key, ErrNotFound)
	}
	if err := b.Delete(key); err != nil {
		return tableErr("del", table, key, err)
	}
	return nil
}

// Count returns the number of rows of table as seen by the active
// transaction, including its own uncommitted writes
func (r *Repo) Count(table string) (int, error) {
	b, err := r.bucket("count", table)
	if err != nil {
		return 0, err
	}
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n, nil
}

// NextSeq increments and returns the sequence counter of table. On failure
// it returns 0 together with the error; 0 is never a valid sequence value.
func (r *Repo) NextSeq(table string) (uint32, error) {
	if table == MetaTable {
		return 0, tableErr("next_seq", table, nil, ErrInvalidTable)
	}
	meta, err := r.bucket("next_seq", MetaTable)
	if err != nil {
		return 0, err
	}
	if _, ok := r.known[table]; !ok || table == "" {
		return 0, tableErr("next_seq", table, nil, ErrTableNotFound)
	}

	key := []byte(table)
	raw := meta.Get(key)
	if raw == nil {
		return 0, tableErr("next_seq", MetaTable, key, ErrNotFound)
	}
	seq, err := DecodeCounter(raw)
	if err != nil {
		return 0, tableErr("next_seq", MetaTable, key, err)
	}
	if seq == math.MaxUint32 {
		return 0, tableErr("next_seq", MetaTable, key, ErrSeqOverflow)
	}

	seq++
	if err := meta.Put(key, encodeCounter(seq)); err != nil {
		return 0, tableErr("next_seq", MetaTable, key, err)
	}
	r.metrics.seqs.Inc(1)
	return seq, nil
}

// GetVersion returns the opaque version blob, ErrNotFound if never set
func (r *Repo) GetVersion() ([]byte, error) {
	return r.Get(MetaTable, []byte(VersionKey))
}

// SetVersion stores the opaque version blob
func (r *Repo) SetVersion(version []byte) error {
	return r.Update(MetaTable, []byte(VersionKey), version)
}
