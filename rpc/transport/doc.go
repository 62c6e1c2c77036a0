// Package transport defines the client side contract of the hed RPC stack.
//
// The server side has no interface here: there is exactly one accept point
// implementation (base.AcceptPoint) whose socket type is plugged in through
// base.IServerConnector.
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - base: frames, pooled messages, connections and the accept point.
//
//   - unix: Unix domain socket connectors resolving peer credentials.
package transport
