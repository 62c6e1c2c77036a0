// Package cmd implements the command-line interface of hed. It provides a
// hierarchical command structure with operations for running the server and
// interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Command for starting and configuring the hed server
//   - kv: Commands for repository operations (get, set, del, list, rollback, ...)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See hed -help for a list of all commands.
package cmd
