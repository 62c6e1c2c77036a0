// Package client implements the RPC client of the hed network configuration
// service.
//
// RepoClient exposes every repository method of the server (version, rows,
// counts, sequences, listing, reload, rollback and stats). Requests are
// encoded with the codec package and sent through an
// transport.IRPCClientTransport; the reply header is checked against the
// method that was called.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoint:      "/run/hed.sock",
//	  TimeoutSecond: 5,
//	  RetryCount:    3,
//	  MaxMessageKB:  1024,
//	}
//
//	repo, err := client.NewRPCRepo(config, unix.NewUnixClientTransport())
//	if err != nil {
//	  return err
//	}
//	defer repo.Close()
//
//	seq, err := repo.NextSeq("hosts")
//	value, err := repo.Get("hosts", key)
//	if errors.Is(err, common.ErrNotFound) {
//	  ...
//	}
//
// Error Handling:
//
//	Failures reported by the server are *common.StatusError values and match
//	the common.ErrNotFound, common.ErrInvalid, common.ErrReadOnly,
//	common.ErrNoSnapshot and common.ErrInternal sentinels with errors.Is.
//	Transport failures are returned unchanged.
//
// Thread Safety:
//
//	A RepoClient may be used from multiple goroutines; requests are
//	correlated by the transport.
package client
