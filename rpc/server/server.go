package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/hed/lib/repo"
	"github.com/ValentinKolb/hed/rpc/common"
	"github.com/ValentinKolb/hed/rpc/dispatch"
	"github.com/ValentinKolb/hed/rpc/transport/base"
	"github.com/ValentinKolb/hed/rpc/transport/unix"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("server")

var (
	// ErrShutdown is matched by the error Run returns on a termination signal
	ErrShutdown = errors.New("server: shutdown requested")
	// ErrHaltTimeout is returned when connections outlive the halt timeout
	ErrHaltTimeout = errors.New("server: halt timed out")
)

// ShutdownError reports the signal that ended Run
type ShutdownError struct {
	Signal os.Signal
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("server: shutdown on %s", e.Signal)
}

func (e *ShutdownError) Unwrap() error { return ErrShutdown }

// ExitCode is the conventional exit status of a process ended by the signal
func (e *ShutdownError) ExitCode() int {
	if sig, ok := e.Signal.(syscall.Signal); ok {
		return 128 + int(sig)
	}
	return 1
}

// Server owns the repository and the accept point and runs the event loop
// serving both. All repository access happens on the goroutine calling Run
// or Halt.
type Server struct {
	config  common.ServerConfig
	repo    *repo.Repo
	accept  *base.AcceptPoint
	signals chan os.Signal
	metrics *http.Server

	startOnce sync.Once
	closeOnce sync.Once
}

// NewServer opens the repository described by config and starts listening
// through connector.
//
// Usage:
//
//	s, err := server.NewServer(config, unix.NewServerConnector())
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	err = s.Run(ctx)
//	if errors.Is(err, server.ErrShutdown) {
//		err = s.Halt(10 * time.Second)
//	}
func NewServer(config common.ServerConfig, connector base.IServerConnector) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	groups, err := resolveGroups(config)
	if err != nil {
		return nil, err
	}

	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	r, err := openRepo(config)
	if err != nil {
		return nil, err
	}

	s := &Server{config: config, repo: r}

	b := dispatch.NewBuilder(uint32(common.MethodMax))
	NewRepoServerAdapter(r, s.connections).Register(b, groups)
	list, err := b.Build()
	if err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("failed to build auth list: %w", err)
	}

	s.accept, err = dispatch.OpenAccept(connector, config, list)
	if err != nil {
		_ = r.Close()
		return nil, err
	}

	if config.MetricsEndpoint != "" {
		s.serveMetrics(config.MetricsEndpoint)
	}

	s.signals = make(chan os.Signal, 4)
	signal.Notify(s.signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM,
		syscall.SIGUSR1, syscall.SIGUSR2)

	Logger.Infof("Created hed server")
	Logger.Infof("%s", config.String())
	return s, nil
}

// Run serves connections until ctx is done or a termination signal arrives.
// A signal is reported as *ShutdownError.
func (s *Server) Run(ctx context.Context) error {
	s.startOnce.Do(s.accept.Start)

	var stats <-chan time.Time
	if s.config.StatsIntervalSecond > 0 {
		ticker := time.NewTicker(time.Duration(s.config.StatsIntervalSecond) * time.Second)
		defer ticker.Stop()
		stats = ticker.C
	}

	for {
		select {
		case ev := <-s.accept.Events():
			s.accept.Dispatch(ev)

		case sig := <-s.signals:
			switch sig {
			case syscall.SIGUSR1, syscall.SIGUSR2:
				Logger.Debugf("Ignoring signal %s", sig)
			default:
				Logger.Infof("Received signal %s", sig)
				return &ShutdownError{Signal: sig}
			}

		case <-stats:
			s.logStats()

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Halt stops accepting, shuts down the read side of every connection and
// keeps serving until all connections are gone or timeout expires.
func (s *Server) Halt(timeout time.Duration) error {
	Logger.Infof("Halting, waiting up to %s for %d connections", timeout, s.accept.Len())
	s.accept.Halt()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for !s.accept.Empty() {
		select {
		case ev := <-s.accept.Events():
			s.accept.Dispatch(ev)
		case <-timer.C:
			return fmt.Errorf("%w: %d connections left", ErrHaltTimeout, s.accept.Len())
		}
	}
	return nil
}

// Close closes every connection, the repository and the signal channel
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		signal.Stop(s.signals)
		close(s.signals)

		err = errors.Join(s.accept.Close(), s.repo.Close())
		if s.metrics != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			err = errors.Join(err, s.metrics.Shutdown(ctx))
			cancel()
		}
		Logger.Infof("Server closed")
	})
	return err
}

// Addr returns the address the server listens on
func (s *Server) Addr() string { return s.accept.Addr().String() }

// connections returns the number of open connections
func (s *Server) connections() int { return s.accept.Len() }

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// openRepo opens the repository, creating missing tables unless read-only
func openRepo(config common.ServerConfig) (*repo.Repo, error) {
	flags := repo.ReadWrite | repo.Create
	if config.ReadOnly {
		flags = repo.ReadOnly
	}
	mode := config.FileMode
	if mode == 0 {
		mode = 0o600
	}

	opts := []repo.Option{repo.WithTimeout(time.Second)}
	if config.Recovery {
		opts = append(opts, repo.WithRecovery())
	}

	r, err := repo.Open(config.DBPath, config.Tables, flags, mode, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	return r, nil
}

// resolveGroups looks up the configured group names. An unset group grants
// access to group 0 only.
func resolveGroups(config common.ServerConfig) (Groups, error) {
	var groups Groups
	var err error
	if config.ReadGroup != "" {
		if groups.Read, err = unix.LookupGroup(config.ReadGroup); err != nil {
			return groups, fmt.Errorf("read group: %w", err)
		}
	}
	if config.WriteGroup != "" {
		if groups.Write, err = unix.LookupGroup(config.WriteGroup); err != nil {
			return groups, fmt.Errorf("write group: %w", err)
		}
	}
	return groups, nil
}

// serveMetrics exposes the prometheus metrics on endpoint
func (s *Server) serveMetrics(endpoint string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	s.metrics = &http.Server{Addr: endpoint, Handler: mux}

	go func() {
		Logger.Infof("Starting metrics server on %s", endpoint)
		if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Metrics server failed: %v", err)
		}
	}()
}

func (s *Server) logStats() {
	st := s.repo.Stats()
	Logger.Infof("connections=%d commits=%d (%.2f ms) aborts=%d snapshots=%d (%.2f ms) rollbacks=%d sequences=%d",
		s.accept.Len(), st.Commits, st.CommitMeanMs, st.Aborts, st.Snapshots, st.SnapshotMeanMs, st.Rollbacks, st.Sequences)
}
