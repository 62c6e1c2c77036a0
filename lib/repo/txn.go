package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// Transaction control
// --------------------------------------------------------------------------

// Start begins a transaction. Read-only handles get a read transaction.
// With recovery enabled the whole file is copied to the backup path first.
func (r *Repo) Start() error {
	if err := r.checkIdle(); err != nil {
		return err
	}

	writable := !r.readOnly()
	if writable && r.opts.recovery {
		if err := r.snapshot(); err != nil {
			return err
		}
	}
	return r.begin(writable)
}

// StartRead begins a read transaction without taking a recovery snapshot
func (r *Repo) StartRead() error {
	if err := r.checkIdle(); err != nil {
		return err
	}
	return r.begin(false)
}

func (r *Repo) begin(writable bool) error {
	tx, err := r.db.Begin(writable)
	if err != nil {
		// the snapshot (if any) still matches the live file
		r.endRecovery()
		return fmt.Errorf("repo: begin: %w", err)
	}
	r.tx = tx
	return nil
}

// snapshot streams a consistent copy of the live file to a temporary file
// and renames it over the backup path. A failed snapshot leaves no rollback
// target, the backup may predate the last committed transaction.
func (r *Repo) snapshot() error {
	start := time.Now()
	tmp := r.backup + snapshotSuffix
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.CopyFile(tmp, r.mode)
	})
	if err == nil {
		err = os.Rename(tmp, r.backup)
	}
	if err != nil {
		r.recovery = recoveryIdle
		if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			Logger.Warningf("failed to remove partial snapshot %s: %v", tmp, rmErr)
		}
		return fmt.Errorf("repo: snapshot %s: %w", r.backup, err)
	}
	r.metrics.snapshot.UpdateSince(start)
	r.recovery = recoverySnapshotted
	Logger.Debugf("snapshot of %s written to %s in %s", r.path, r.backup, time.Since(start))
	return nil
}

// takeTxn detaches the active transaction from the handle. Iterators created
// within it become stale.
func (r *Repo) takeTxn() (*bbolt.Tx, error) {
	tx, err := r.activeTx()
	if err != nil {
		return nil, err
	}
	r.tx = nil
	r.gen++
	return tx, nil
}

func (r *Repo) endRecovery() {
	if r.recovery == recoverySnapshotted {
		r.recovery = recoveryCommitted
	}
}

// Commit commits the active transaction. The transaction is cleared even
// when the engine reports an error.
func (r *Repo) Commit() error {
	tx, err := r.takeTxn()
	if err != nil {
		return err
	}
	defer r.endRecovery()

	if !tx.Writable() {
		_ = tx.Rollback()
		return nil
	}

	start := time.Now()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repo: commit: %w", err)
	}
	r.metrics.commit.UpdateSince(start)
	return nil
}

// Abort discards the active transaction
func (r *Repo) Abort() error {
	tx, err := r.takeTxn()
	if err != nil {
		return err
	}
	defer r.endRecovery()

	if tx.Writable() {
		r.metrics.aborts.Inc(1)
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, bbolt.ErrTxClosed) {
		return fmt.Errorf("repo: abort: %w", err)
	}
	return nil
}

// Rollback restores the state captured by the last recovery snapshot. It
// requires recovery to be enabled, no open transaction and a snapshot whose
// transaction has ended.
func (r *Repo) Rollback() error {
	if !r.recoveryEnabled() {
		return ErrRecoveryDisabled
	}
	if err := r.checkIdle(); err != nil {
		return err
	}
	if r.recovery != recoveryCommitted {
		return ErrNoSnapshot
	}

	start := time.Now()
	closeErr := r.teardown()
	renameErr := os.Rename(r.backup, r.path)
	r.recovery = recoveryIdle

	if err := r.open(r.flags); err != nil {
		return errors.Join(closeErr, renameErr, err)
	}
	if err := errors.Join(closeErr, renameErr); err != nil {
		return fmt.Errorf("repo: rollback %s: %w", r.path, err)
	}

	r.metrics.rollback.UpdateSince(start)
	Logger.Infof("rolled back %s in %s", r.path, time.Since(start))
	return nil
}
