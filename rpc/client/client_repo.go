package client

import (
	"github.com/ValentinKolb/hed/rpc/codec"
	"github.com/ValentinKolb/hed/rpc/common"
	"github.com/ValentinKolb/hed/rpc/transport"
)

// NewRPCRepo connects transport with config and returns a client for the
// repository methods of a hed server
func NewRPCRepo(config common.ClientConfig, transport transport.IRPCClientTransport) (*RepoClient, error) {
	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &RepoClient{
		rpcClientAdapter{
			config:    config,
			transport: transport,
		},
	}, nil
}

// RepoClient calls the repository methods of a hed server. Every call runs
// in its own server side transaction. Failures reported by the server are
// *common.StatusError values matching common.ErrNotFound, common.ErrInvalid, ...
type RepoClient struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Methods
// --------------------------------------------------------------------------

// Version returns the version blob of the repository
func (c *RepoClient) Version() (version []byte, err error) {
	err = invokeRPCRequest(c.transport, common.MethodVersionGet, nil, func(dec *codec.Decoder) error {
		version, err = dec.DecodeBytes()
		return err
	})
	return version, err
}

// SetVersion replaces the version blob of the repository
func (c *RepoClient) SetVersion(version []byte) error {
	return invokeRPCRequest(c.transport, common.MethodVersionSet, func(enc *codec.Encoder) error {
		return enc.EncodeBytes(version)
	}, nil)
}

// Get returns the value stored under key in table
func (c *RepoClient) Get(table string, key []byte) (value []byte, err error) {
	err = invokeRPCRequest(c.transport, common.MethodGet, func(enc *codec.Encoder) error {
		return encodeTableKey(enc, table, key)
	}, func(dec *codec.Decoder) error {
		value, err = dec.DecodeBytes()
		return err
	})
	return value, err
}

// Update stores value under key in table
func (c *RepoClient) Update(table string, key, value []byte) error {
	return invokeRPCRequest(c.transport, common.MethodUpdate, func(enc *codec.Encoder) error {
		if err := encodeTableKey(enc, table, key); err != nil {
			return err
		}
		return enc.EncodeBytes(value)
	}, nil)
}

// Delete removes key from table
func (c *RepoClient) Delete(table string, key []byte) error {
	return invokeRPCRequest(c.transport, common.MethodDelete, func(enc *codec.Encoder) error {
		return encodeTableKey(enc, table, key)
	}, nil)
}

// Count returns the number of rows in table
func (c *RepoClient) Count(table string) (n int, err error) {
	err = invokeRPCRequest(c.transport, common.MethodCount, func(enc *codec.Encoder) error {
		return enc.EncodeString(table)
	}, func(dec *codec.Decoder) error {
		n, err = dec.DecodeInt()
		return err
	})
	return n, err
}

// NextSeq increments and returns the sequence counter of table
func (c *RepoClient) NextSeq(table string) (seq uint32, err error) {
	err = invokeRPCRequest(c.transport, common.MethodNextSeq, func(enc *codec.Encoder) error {
		return enc.EncodeString(table)
	}, func(dec *codec.Decoder) error {
		seq, err = dec.DecodeUint32()
		return err
	})
	return seq, err
}

// List returns every row of table in key order
func (c *RepoClient) List(table string) (entries []common.Entry, err error) {
	err = invokeRPCRequest(c.transport, common.MethodList, func(enc *codec.Encoder) error {
		return enc.EncodeString(table)
	}, func(dec *codec.Decoder) error {
		return dec.Decode(&entries)
	})
	return entries, err
}

// Reload makes the server close and reopen its repository
func (c *RepoClient) Reload() error {
	return invokeRPCRequest(c.transport, common.MethodReload, nil, nil)
}

// Rollback restores the repository to the snapshot taken before the last
// write
func (c *RepoClient) Rollback() error {
	return invokeRPCRequest(c.transport, common.MethodRollback, nil, nil)
}

// Stats returns the activity counters of the server
func (c *RepoClient) Stats() (stats common.ServerStats, err error) {
	err = invokeRPCRequest(c.transport, common.MethodStats, nil, func(dec *codec.Decoder) error {
		return dec.Decode(&stats)
	})
	return stats, err
}

// Close closes the underlying transport
func (c *RepoClient) Close() error {
	return c.transport.Close()
}
