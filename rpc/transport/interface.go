package transport

import (
	"github.com/ValentinKolb/hed/rpc/common"
)

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends an encoded request and returns the encoded reply.
	// Notifications return as soon as they were written, without a reply.
	Send(payload []byte, notify bool) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
