package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"go.etcd.io/bbolt"
)

var Logger = logger.GetLogger("repo")

const (
	// MetaTable is the reserved table holding sequence counters and the version blob
	MetaTable = ".hed"
	// VersionKey is the reserved key in MetaTable holding the schema version blob
	VersionKey = ".version"

	backupSuffix   = "-backup"
	snapshotSuffix = ".tmp"
)

// --------------------------------------------------------------------------
// Open flags and options
// --------------------------------------------------------------------------

// Flag controls how a repository is opened
type Flag uint32

const (
	ReadOnly Flag = 1 << iota
	ReadWrite
	Create
	Truncate
)

const (
	accessMode = ReadOnly | ReadWrite
	allFlags   = ReadOnly | ReadWrite | Create | Truncate
)

func (f Flag) String() string {
	var parts []string
	for _, n := range []struct {
		flag Flag
		name string
	}{{ReadOnly, "rdonly"}, {ReadWrite, "rdwr"}, {Create, "create"}, {Truncate, "trunc"}} {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if rest := f &^ allFlags; rest != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint32(rest)))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Option configures optional repository behaviour
type Option func(*options)

type options struct {
	recovery bool
	timeout  time.Duration
	noSync   bool
}

// WithRecovery enables the snapshot + rename recovery scheme (read-write handles only)
func WithRecovery() Option {
	return func(o *options) { o.recovery = true }
}

// WithTimeout bounds how long Open waits for the file lock
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithNoSync skips fsync on commit. Only meant for tests.
func WithNoSync() Option {
	return func(o *options) { o.noSync = true }
}

// --------------------------------------------------------------------------
// Repository handle
// --------------------------------------------------------------------------

type recoveryState uint8

const (
	recoveryIdle recoveryState = iota
	recoverySnapshotted
	recoveryCommitted
)

// Repo is a handle on one repository file
type Repo struct {
	db     *bbolt.DB
	tx     *bbolt.Tx
	path   string
	backup string
	// access mode only, Create and Truncate apply to the initial open
	flags  Flag
	mode   os.FileMode
	tables []string
	known  map[string]struct{}
	opts   options

	gen      uint64
	recovery recoveryState
	metrics  *metrics
}

// Open opens the repository at path holding the given user tables.
//
// flags must contain exactly one of ReadOnly or ReadWrite. Create requires
// ReadWrite and creates the file, missing tables and missing counters.
// Truncate requires Create and drops every row of every table, resetting all
// counters to 0. On failure no handle is returned and nothing stays open.
func Open(path string, tables []string, flags Flag, mode os.FileMode, opts ...Option) (*Repo, error) {
	if err := checkFlags(flags); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, ErrEmptyPath
	}
	if err := checkTables(tables); err != nil {
		return nil, err
	}

	r := &Repo{
		path:    path,
		backup:  path + backupSuffix,
		flags:   flags & accessMode,
		mode:    mode,
		tables:  append([]string(nil), tables...),
		known:   make(map[string]struct{}, len(tables)+1),
		metrics: newMetrics(),
	}
	for _, o := range opts {
		o(&r.opts)
	}
	r.known[MetaTable] = struct{}{}
	for _, name := range r.tables {
		r.known[name] = struct{}{}
	}

	if err := r.open(flags); err != nil {
		return nil, err
	}
	Logger.Infof("opened %s (%s, %d tables, recovery=%t)", path, flags, len(tables), r.recoveryEnabled())
	return r, nil
}

func checkFlags(flags Flag) error {
	if rest := flags &^ allFlags; rest != 0 {
		return fmt.Errorf("%w: unknown bits %#x", ErrInvalidFlags, uint32(rest))
	}
	if m := flags & accessMode; m != ReadOnly && m != ReadWrite {
		return fmt.Errorf("%w: exactly one of ReadOnly or ReadWrite is required", ErrInvalidFlags)
	}
	if flags&Create != 0 && flags&ReadWrite == 0 {
		return fmt.Errorf("%w: Create requires ReadWrite", ErrInvalidFlags)
	}
	if flags&Truncate != 0 && flags&Create == 0 {
		return fmt.Errorf("%w: Truncate requires Create", ErrInvalidFlags)
	}
	return nil
}

func checkTables(tables []string) error {
	seen := make(map[string]struct{}, len(tables))
	for _, name := range tables {
		if name == "" || strings.HasPrefix(name, ".") {
			return fmt.Errorf("%w: %q", ErrInvalidTable, name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate %q", ErrInvalidTable, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// open opens the engine and prepares all tables inside one transaction
func (r *Repo) open(flags Flag) error {
	if flags&Create == 0 {
		if _, err := os.Stat(r.path); err != nil {
			return fmt.Errorf("repo: open %s: %w", r.path, err)
		}
	}

	db, err := bbolt.Open(r.path, r.mode, &bbolt.Options{
		Timeout:  r.opts.timeout,
		ReadOnly: r.readOnly(),
		NoSync:   r.opts.noSync,
	})
	if err != nil {
		return fmt.Errorf("repo: open %s: %w", r.path, err)
	}
	r.db = db

	if err := r.Start(); err != nil {
		_ = r.teardown()
		return err
	}
	if err := r.prepare(flags); err != nil {
		_ = r.teardown()
		return err
	}
	if err := r.Commit(); err != nil {
		_ = r.teardown()
		return err
	}
	return nil
}

// prepare opens (and on request creates or truncates) every table in the active transaction
func (r *Repo) prepare(flags Flag) error {
	names := append([]string{MetaTable}, r.tables...)

	if r.readOnly() {
		for _, name := range names {
			if r.tx.Bucket([]byte(name)) == nil {
				return tableErr("open", name, nil, ErrTableNotFound)
			}
		}
		return nil
	}

	for _, name := range names {
		key := []byte(name)
		if flags&Truncate != 0 && r.tx.Bucket(key) != nil {
			if err := r.tx.DeleteBucket(key); err != nil {
				return tableErr("truncate", name, nil, err)
			}
		}
		if flags&Create != 0 {
			if _, err := r.tx.CreateBucketIfNotExists(key); err != nil {
				return tableErr("create", name, nil, err)
			}
		} else if r.tx.Bucket(key) == nil {
			return tableErr("open", name, nil, ErrTableNotFound)
		}
	}

	if flags&Create == 0 {
		return nil
	}

	meta := r.tx.Bucket([]byte(MetaTable))
	for _, name := range r.tables {
		if meta.Get([]byte(name)) != nil {
			continue
		}
		if err := meta.Put([]byte(name), encodeCounter(0)); err != nil {
			return tableErr("init counter", MetaTable, []byte(name), err)
		}
	}
	return nil
}

// teardown aborts any open transaction and closes the engine
func (r *Repo) teardown() error {
	if r.tx != nil {
		_ = r.tx.Rollback()
		r.tx = nil
		r.gen++
	}
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// Close aborts an open transaction, closes the engine and removes the
// recovery backup. Closing a closed repository is a no-op.
func (r *Repo) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.teardown()
	r.recovery = recoveryIdle
	if !r.readOnly() {
		if rmErr := os.Remove(r.backup); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			err = errors.Join(err, rmErr)
		}
	}
	if err != nil {
		return fmt.Errorf("repo: close %s: %w", r.path, err)
	}
	Logger.Debugf("closed %s", r.path)
	return nil
}

// Reload closes and reopens the repository with its access mode
func (r *Repo) Reload() error {
	if err := r.checkIdle(); err != nil {
		return err
	}
	if err := r.teardown(); err != nil {
		return fmt.Errorf("repo: reload %s: %w", r.path, err)
	}
	return r.open(r.flags)
}

// Path returns the live file path
func (r *Repo) Path() string { return r.path }

// BackupPath returns the path recovery snapshots are written to
func (r *Repo) BackupPath() string { return r.backup }

// Tables returns the user table names in open order
func (r *Repo) Tables() []string { return append([]string(nil), r.tables...) }

// IsOpen reports whether the engine is open
func (r *Repo) IsOpen() bool { return r.db != nil }

// InTxn reports whether a transaction is open
func (r *Repo) InTxn() bool { return r.tx != nil }

// ReadOnly reports whether the handle was opened read-only
func (r *Repo) ReadOnly() bool { return r.readOnly() }

func (r *Repo) readOnly() bool { return r.flags&ReadOnly != 0 }

func (r *Repo) recoveryEnabled() bool { return r.opts.recovery && !r.readOnly() }

func (r *Repo) checkIdle() error {
	if r.db == nil {
		return ErrClosed
	}
	if r.tx != nil {
		return ErrTxnOpen
	}
	return nil
}

func (r *Repo) activeTx() (*bbolt.Tx, error) {
	if r.db == nil {
		return nil, ErrClosed
	}
	if r.tx == nil {
		return nil, ErrNoTxn
	}
	return r.tx, nil
}
