package common

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// --------------------------------------------------------------------------
// Methods
// --------------------------------------------------------------------------

// Method is the numeric id leading every request payload
type Method uint32

const (
	MethodVersionGet Method = iota
	MethodVersionSet
	MethodGet
	MethodUpdate
	MethodDelete
	MethodCount
	MethodNextSeq
	MethodList
	MethodReload
	MethodRollback
	MethodStats

	// MethodMax is the highest method id
	MethodMax = MethodStats
)

// String returns the string representation of a Method.
func (m Method) String() string {
	switch m {
	case MethodVersionGet:
		return "version_get"
	case MethodVersionSet:
		return "version_set"
	case MethodGet:
		return "get"
	case MethodUpdate:
		return "update"
	case MethodDelete:
		return "delete"
	case MethodCount:
		return "count"
	case MethodNextSeq:
		return "next_seq"
	case MethodList:
		return "list"
	case MethodReload:
		return "reload"
	case MethodRollback:
		return "rollback"
	case MethodStats:
		return "stats"
	default:
		return fmt.Sprintf("method(%d)", uint32(m))
	}
}

// MarshalJSON renders a Method by name
func (m Method) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// --------------------------------------------------------------------------
// Reply status
// --------------------------------------------------------------------------

// Status is the outcome carried by every reply
type Status uint8

const (
	StatusOK Status = iota
	StatusNotFound
	StatusInvalid
	StatusReadOnly
	StatusNoSnapshot
	StatusInternal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not found"
	case StatusInvalid:
		return "invalid argument"
	case StatusReadOnly:
		return "read only"
	case StatusNoSnapshot:
		return "no snapshot"
	case StatusInternal:
		return "internal error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// StatusError is a non-OK reply. Two StatusErrors match with errors.Is when
// their status is equal, so the sentinels below can be used as targets.
type StatusError struct {
	Status Status
	Msg    string
}

func (e *StatusError) Error() string {
	if e.Msg == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Msg)
}

func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	return ok && t.Status == e.Status
}

var (
	ErrNotFound   = &StatusError{Status: StatusNotFound}
	ErrInvalid    = &StatusError{Status: StatusInvalid}
	ErrReadOnly   = &StatusError{Status: StatusReadOnly}
	ErrNoSnapshot = &StatusError{Status: StatusNoSnapshot}
	ErrInternal   = &StatusError{Status: StatusInternal}
)

// --------------------------------------------------------------------------
// Wire helpers
// --------------------------------------------------------------------------

// Request payload:  [method u32][arguments...]
// Reply payload:    [method u32][status u8][message str][results...]
// Results only follow an OK status.

// EncodeRequestHeader writes the leading method id of a request
func EncodeRequestHeader(enc *msgpack.Encoder, m Method) error {
	return enc.EncodeUint32(uint32(m))
}

// EncodeReplyHeader writes the header of a reply
func EncodeReplyHeader(enc *msgpack.Encoder, m Method, status Status, msg string) error {
	if err := enc.EncodeUint32(uint32(m)); err != nil {
		return err
	}
	if err := enc.EncodeUint8(uint8(status)); err != nil {
		return err
	}
	return enc.EncodeString(msg)
}

// DecodeReplyHeader reads a reply header, checks it answers m and turns a
// non-OK status into a *StatusError
func DecodeReplyHeader(dec *msgpack.Decoder, m Method) error {
	id, err := dec.DecodeUint32()
	if err != nil {
		return fmt.Errorf("failed to decode reply method: %w", err)
	}
	if Method(id) != m {
		return fmt.Errorf("unexpected reply method: %s, expected %s", Method(id), m)
	}
	status, err := dec.DecodeUint8()
	if err != nil {
		return fmt.Errorf("failed to decode reply status: %w", err)
	}
	msg, err := dec.DecodeString()
	if err != nil {
		return fmt.Errorf("failed to decode reply message: %w", err)
	}
	if Status(status) != StatusOK {
		return &StatusError{Status: Status(status), Msg: msg}
	}
	return nil
}

// --------------------------------------------------------------------------
// Result types
// --------------------------------------------------------------------------

// Entry is one row returned by MethodList
type Entry struct {
	Key   []byte `msgpack:"k" json:"key"`
	Value []byte `msgpack:"v" json:"value"`
}

// ServerStats is the result of MethodStats
type ServerStats struct {
	Connections    int     `msgpack:"connections" json:"connections"`
	Commits        int64   `msgpack:"commits" json:"commits"`
	CommitMeanMs   float64 `msgpack:"commit_mean_ms" json:"commit_mean_ms"`
	Aborts         int64   `msgpack:"aborts" json:"aborts"`
	Snapshots      int64   `msgpack:"snapshots" json:"snapshots"`
	SnapshotMeanMs float64 `msgpack:"snapshot_mean_ms" json:"snapshot_mean_ms"`
	Rollbacks      int64   `msgpack:"rollbacks" json:"rollbacks"`
	Sequences      int64   `msgpack:"sequences" json:"sequences"`
}
