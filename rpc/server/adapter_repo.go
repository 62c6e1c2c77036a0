package server

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/hed/lib/repo"
	"github.com/ValentinKolb/hed/rpc/codec"
	"github.com/ValentinKolb/hed/rpc/common"
	"github.com/ValentinKolb/hed/rpc/dispatch"
	"go.etcd.io/bbolt"
)

var (
	errReadOnly = errors.New("repository is read only")
	errArgs     = errors.New("malformed arguments")
)

// results encodes the results of a successful call
type results func(enc *codec.Encoder) error

// NewRepoServerAdapter creates the adapter serving r. conns reports the
// number of open connections for the stats method.
func NewRepoServerAdapter(r *repo.Repo, conns func() int) IRPCServerAdapter {
	return &repoServerAdapterImpl{repo: r, conns: conns}
}

type repoServerAdapterImpl struct {
	repo  *repo.Repo
	conns func() int
}

func (a *repoServerAdapterImpl) Register(b *dispatch.Builder, groups Groups) {
	b.Allow(uint32(common.MethodVersionGet), groups.Read, a.versionGet).
		Allow(uint32(common.MethodVersionSet), groups.Write, a.versionSet).
		Allow(uint32(common.MethodGet), groups.Read, a.get).
		Allow(uint32(common.MethodUpdate), groups.Write, a.update).
		Allow(uint32(common.MethodDelete), groups.Write, a.delete).
		Allow(uint32(common.MethodCount), groups.Read, a.count).
		Allow(uint32(common.MethodNextSeq), groups.Write, a.nextSeq).
		Allow(uint32(common.MethodList), groups.Read, a.list).
		Allow(uint32(common.MethodReload), groups.Write, a.reload).
		Allow(uint32(common.MethodRollback), groups.Write, a.rollback).
		Allow(uint32(common.MethodStats), groups.Read, a.stats)
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (a *repoServerAdapterImpl) versionGet(call *dispatch.Call) error {
	return a.read(call, func() (results, error) {
		v, err := a.repo.GetVersion()
		if err != nil {
			return nil, err
		}
		return func(enc *codec.Encoder) error { return enc.EncodeBytes(v) }, nil
	})
}

func (a *repoServerAdapterImpl) versionSet(call *dispatch.Call) error {
	v, err := call.Dec.DecodeBytes()
	if err != nil {
		return reply(call, badArgs(err), nil)
	}
	return a.write(call, func() (results, error) {
		return nil, a.repo.SetVersion(v)
	})
}

func (a *repoServerAdapterImpl) get(call *dispatch.Call) error {
	table, key, err := decodeTableKey(call)
	if err != nil {
		return reply(call, err, nil)
	}
	return a.read(call, func() (results, error) {
		v, err := a.repo.Get(table, key)
		if err != nil {
			return nil, err
		}
		// v is only valid until the transaction ends, read encodes it before
		return func(enc *codec.Encoder) error { return enc.EncodeBytes(v) }, nil
	})
}

func (a *repoServerAdapterImpl) update(call *dispatch.Call) error {
	table, key, err := decodeTableKey(call)
	if err != nil {
		return reply(call, err, nil)
	}
	value, err := call.Dec.DecodeBytes()
	if err != nil {
		return reply(call, badArgs(err), nil)
	}
	return a.write(call, func() (results, error) {
		return nil, a.repo.Update(table, key, value)
	})
}

func (a *repoServerAdapterImpl) delete(call *dispatch.Call) error {
	table, key, err := decodeTableKey(call)
	if err != nil {
		return reply(call, err, nil)
	}
	return a.write(call, func() (results, error) {
		return nil, a.repo.Del(table, key)
	})
}

func (a *repoServerAdapterImpl) count(call *dispatch.Call) error {
	table, err := call.Dec.DecodeString()
	if err != nil {
		return reply(call, badArgs(err), nil)
	}
	return a.read(call, func() (results, error) {
		n, err := a.repo.Count(table)
		if err != nil {
			return nil, err
		}
		return func(enc *codec.Encoder) error { return enc.EncodeInt(int64(n)) }, nil
	})
}

func (a *repoServerAdapterImpl) nextSeq(call *dispatch.Call) error {
	table, err := call.Dec.DecodeString()
	if err != nil {
		return reply(call, badArgs(err), nil)
	}
	return a.write(call, func() (results, error) {
		seq, err := a.repo.NextSeq(table)
		if err != nil {
			return nil, err
		}
		return func(enc *codec.Encoder) error { return enc.EncodeUint32(seq) }, nil
	})
}

func (a *repoServerAdapterImpl) list(call *dispatch.Call) error {
	table, err := call.Dec.DecodeString()
	if err != nil {
		return reply(call, badArgs(err), nil)
	}
	return a.read(call, func() (results, error) {
		it, err := a.repo.CreateIter(table)
		if err != nil {
			return nil, err
		}
		defer it.Close()

		var entries []common.Entry
		for {
			k, v, err := it.Step(repo.WantBoth)
			if errors.Is(err, repo.ErrExhausted) {
				break
			}
			if err != nil {
				return nil, err
			}
			entries = append(entries, common.Entry{Key: k, Value: v})
		}
		return func(enc *codec.Encoder) error { return enc.Encode(entries) }, nil
	})
}

func (a *repoServerAdapterImpl) reload(call *dispatch.Call) error {
	return reply(call, a.repo.Reload(), nil)
}

func (a *repoServerAdapterImpl) rollback(call *dispatch.Call) error {
	return reply(call, a.repo.Rollback(), nil)
}

func (a *repoServerAdapterImpl) stats(call *dispatch.Call) error {
	rs := a.repo.Stats()
	stats := common.ServerStats{
		Connections:    a.conns(),
		Commits:        rs.Commits,
		CommitMeanMs:   rs.CommitMeanMs,
		Aborts:         rs.Aborts,
		Snapshots:      rs.Snapshots,
		SnapshotMeanMs: rs.SnapshotMeanMs,
		Rollbacks:      rs.Rollbacks,
		Sequences:      rs.Sequences,
	}
	return reply(call, nil, func(enc *codec.Encoder) error { return enc.Encode(&stats) })
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// read runs body in a read transaction and replies before it ends
func (a *repoServerAdapterImpl) read(call *dispatch.Call, body func() (results, error)) error {
	if err := a.repo.StartRead(); err != nil {
		return reply(call, err, nil)
	}
	defer a.abort()

	res, err := body()
	return reply(call, err, res)
}

// write runs body in a write transaction and replies after it was committed
func (a *repoServerAdapterImpl) write(call *dispatch.Call, body func() (results, error)) error {
	if a.repo.ReadOnly() {
		return reply(call, errReadOnly, nil)
	}
	if err := a.repo.Start(); err != nil {
		return reply(call, err, nil)
	}

	res, err := body()
	if err != nil {
		a.abort()
		return reply(call, err, nil)
	}
	if err := a.repo.Commit(); err != nil {
		return reply(call, err, nil)
	}
	return reply(call, nil, res)
}

func (a *repoServerAdapterImpl) abort() {
	if err := a.repo.Abort(); err != nil {
		Logger.Errorf("Failed to abort transaction: %v", err)
	}
}

// --------------------------------------------------------------------------
// Replies
// --------------------------------------------------------------------------

// reply answers call with the status derived from err, followed by res when
// err is nil. A reply exceeding the message size is replaced by an error.
func reply(call *dispatch.Call, err error, res results) error {
	method := common.Method(call.Msg.ID)
	status, msg := statusOf(err)
	if status == common.StatusInternal {
		Logger.Errorf("%s failed: %v", method, err)
	}

	sendErr := call.Reply(func(enc *codec.Encoder) error {
		if err := common.EncodeReplyHeader(enc.Encoder, method, status, msg); err != nil {
			return err
		}
		if status != common.StatusOK || res == nil {
			return nil
		}
		return res(enc)
	})
	if errors.Is(sendErr, codec.ErrNoMemory) {
		return call.Reply(func(enc *codec.Encoder) error {
			return common.EncodeReplyHeader(enc.Encoder, method, common.StatusInternal, "reply exceeds message size")
		})
	}
	return sendErr
}

// statusOf maps a repository error to a reply status
func statusOf(err error) (common.Status, string) {
	if err == nil {
		return common.StatusOK, ""
	}
	msg := err.Error()
	switch {
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, repo.ErrTableNotFound):
		return common.StatusNotFound, msg
	case errors.Is(err, errArgs),
		errors.Is(err, repo.ErrEmptyKey),
		errors.Is(err, repo.ErrEmptyValue),
		errors.Is(err, repo.ErrInvalidTable):
		return common.StatusInvalid, msg
	case errors.Is(err, errReadOnly),
		errors.Is(err, bbolt.ErrTxNotWritable),
		errors.Is(err, bbolt.ErrDatabaseReadOnly):
		return common.StatusReadOnly, msg
	case errors.Is(err, repo.ErrNoSnapshot), errors.Is(err, repo.ErrRecoveryDisabled):
		return common.StatusNoSnapshot, msg
	default:
		return common.StatusInternal, msg
	}
}

func badArgs(err error) error {
	return fmt.Errorf("%w: %v", errArgs, err)
}

func decodeTableKey(call *dispatch.Call) (string, []byte, error) {
	table, err := call.Dec.DecodeString()
	if err != nil {
		return "", nil, badArgs(err)
	}
	key, err := call.Dec.DecodeBytes()
	if err != nil {
		return "", nil, badArgs(err)
	}
	return table, key, nil
}
