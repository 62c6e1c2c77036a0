package server

import (
	"github.com/ValentinKolb/hed/rpc/dispatch"
)

// Groups are the group ids granted access to the service methods
type Groups struct {
	Read  uint32
	Write uint32
}

// IRPCServerAdapter is the interface for all RPC server adapters.
// An adapter exposes one service by registering its method handlers.
type IRPCServerAdapter interface {
	// Register allows every method of the service on b, read methods for
	// groups.Read and write methods for groups.Write
	Register(b *dispatch.Builder, groups Groups)
}
