// Package rpc provides the remote procedure call stack of hed. It connects
// local client processes with the repository owned by the server.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures used across the RPC system, including the
//     method ids and reply status, configuration structures and logging.
//
//   - transport: Frames, pooled messages, connections and the accept point,
//     plus the unix socket connectors resolving peer credentials.
//
//   - codec: msgpack encoding and decoding over the chunk chains of messages.
//
//   - dispatch: Authorization lists and the per connection handler tables
//     routing every message to the handler its peer may call.
//
//   - client: RPC client for the repository methods.
//
//   - server: The server owning repository and accept point, including the
//     adapter exposing the repository methods.
package rpc
