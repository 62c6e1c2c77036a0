// Package unix implements the Unix domain socket connectors of the hed RPC
// stack.
//
// The server connector removes a stale socket file before listening,
// optionally applies the configured socket permissions and resolves the
// credentials of every peer with SO_PEERCRED. Supplementary groups are read
// from /proc/<pid>/status and fall back to the groups of the peer's account.
// The resulting base.Principal is what the dispatcher authorizes against.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners and identifies peers
package unix
