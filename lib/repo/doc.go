// Package repo implements the transactional multi-table repository backing the
// hed service. A repository is a single bbolt file holding one bucket per user
// table plus the reserved ".hed" table, which stores a 4-byte sequence counter
// per user table and the opaque ".version" blob.
//
// A Repo handle is not safe for concurrent use. It is owned by exactly one
// goroutine (the server loop) and allows at most one open transaction at a
// time:
//
//	CLOSED --Open--> OPEN(idle) --Start--> OPEN(txn) --Commit|Abort--> OPEN(idle)
//	OPEN(*) --Close--> CLOSED
//	OPEN(idle) --Reload|Rollback--> OPEN(idle)
//
// Recovery:
//
// When opened read-write with WithRecovery, every Start first copies the whole
// file to "<path>-backup". After the transaction ended (commit or abort) the
// previous state can be restored with Rollback, which closes the environment,
// renames the backup over the live file and reopens it. The backup is removed
// on a clean Close.
//
// Iterators:
//
// An Iter is bound to the transaction that created it. Once that transaction
// ends every call on the iterator fails with ErrStaleIter. Step copies the
// current row out of the engine and advances; it reports ErrExhausted exactly
// once after the last row.
package repo
