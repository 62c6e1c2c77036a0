// Package server implements the hed server: it owns the repository and the
// accept point and serves the repository methods to local peers.
//
// The package focuses on:
//   - A single event loop goroutine that owns the repository and every
//     connection state
//   - Adapter pattern to decouple the repository from the RPC mechanisms
//   - Group based authorization of every method
//   - Signal handling and cooperative shutdown
//
// Key Components:
//
//   - IRPCServerAdapter: Interface for service adapters, which register their
//     method handlers on a dispatch.Builder for a read and a write group.
//
//   - NewRepoServerAdapter: Adapter exposing a repo.Repo. Read methods run
//     in a read transaction, write methods in a write transaction that is
//     committed before the reply is sent; with recovery enabled every write
//     is preceded by a snapshot that Rollback can restore.
//
//   - NewServer: Opens the repository, builds the authorization list and
//     starts listening through the given connector.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Endpoint:     "/run/hed.sock",
//	  MaxMessageKB: 1024,
//	  DBPath:       "/var/lib/hed/hed.db",
//	  Tables:       []string{"hosts", "nets"},
//	  Recovery:     true,
//	  ReadGroup:    "hed",
//	  WriteGroup:   "hed-admin",
//	  LogLevel:     "info",
//	}
//
//	s, err := server.NewServer(config, unix.NewServerConnector())
//	if err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//	defer s.Close()
//
//	if err := s.Run(ctx); errors.Is(err, server.ErrShutdown) {
//	  _ = s.Halt(10 * time.Second)
//	}
//
// Signals:
//
//	SIGHUP, SIGINT, SIGQUIT and SIGTERM end Run with a *ShutdownError,
//	SIGUSR1 and SIGUSR2 are ignored.
//
// Thread Safety:
//
//	Run and Halt must be called from the same goroutine and never
//	concurrently. Close must only be called once neither of them runs.
package server
