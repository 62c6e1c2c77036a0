// Package common provides the data structures shared by the hed server,
// client and CLI.
//
// Key Components:
//
//   - Method / Status: the numeric method ids leading every request and the
//     status carried by every reply, with the msgpack helpers writing and
//     reading the request and reply headers. A non-OK status surfaces as a
//     *StatusError which matches the ErrNotFound, ErrInvalid, ... sentinels
//     with errors.Is.
//
//   - ServerConfig: configuration of the server (socket, repository,
//     authorization groups, timeouts, observability).
//
//   - ClientConfig: configuration for client components, controlling the
//     endpoint, timeouts and retry behavior.
//
//   - Logger: Custom logging implementation plugged into the dragonboat
//     logger facade, giving every package the same formatting.
package common
