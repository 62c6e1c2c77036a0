package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/hed/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

var (
	connsAccepted = metrics.NewCounter(`hed_transport_connections_total{result="accepted"}`)
	connsRefused  = metrics.NewCounter(`hed_transport_connections_total{result="refused"}`)
	connsClosed   = metrics.NewCounter(`hed_transport_connections_closed_total`)
	framesIn      = metrics.NewCounter(`hed_transport_frames_total{dir="in"}`)
	framesOut     = metrics.NewCounter(`hed_transport_frames_total{dir="out"}`)
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// Peer resolves the identity of the process behind an accepted connection
	Peer(conn net.Conn) (Principal, error)

	// GetName returns the name of the transport type (e.g., "unix")
	GetName() string
}

// Callbacks connect an accept point to the layer above it. They are always
// invoked from the goroutine calling Dispatch.
type Callbacks struct {
	// Connect is called for every new connection, an error refuses it
	Connect func(conn *Conn) error
	// Transfer is called after a message was queued on conn, an error closes conn
	Transfer func(conn *Conn) error
	// Close is called once when conn goes away
	Close func(conn *Conn)
}

// -----------------------------------------------------------
// Events
// -----------------------------------------------------------

// EventKind is the kind of an accept point event
type EventKind uint8

const (
	EventConnect EventKind = iota
	EventMessage
	EventClose
)

// Event is produced by the accept and reader goroutines and consumed by Dispatch
type Event struct {
	Kind EventKind
	Conn *Conn
	Msg  *Message
	Err  error
}

// -----------------------------------------------------------
// Accept point
// -----------------------------------------------------------

// AcceptPoint accepts connections on one listener and turns their traffic
// into a single stream of events. Exactly one goroutine is expected to
// consume Events and pass them to Dispatch; it owns every connection state.
type AcceptPoint struct {
	connector IServerConnector
	callbacks Callbacks
	config    common.ServerConfig
	listener  net.Listener
	pool      *BufferPool
	timeout   time.Duration

	conns     *xsync.MapOf[uint64, *Conn]
	events    chan Event
	nextID    atomic.Uint64
	suspended atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewAcceptPoint creates the listener through connector. Accepting starts with Start.
func NewAcceptPoint(connector IServerConnector, config common.ServerConfig, callbacks Callbacks) (*AcceptPoint, error) {
	listener, err := connector.Listen(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	maxChunks := config.MaxMessageKB * 1024 / config.ChunkSize()
	return &AcceptPoint{
		connector: connector,
		callbacks: callbacks,
		config:    config,
		listener:  listener,
		pool:      NewBufferPool(config.ChunkSize(), maxChunks),
		timeout:   time.Duration(config.TimeoutSecond) * time.Second,
		conns:     xsync.NewMapOf[uint64, *Conn](),
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
	}, nil
}

// Events returns the channel the accept point publishes on
func (a *AcceptPoint) Events() <-chan Event { return a.events }

// Addr returns the listening address
func (a *AcceptPoint) Addr() net.Addr { return a.listener.Addr() }

// Len returns the number of registered connections
func (a *AcceptPoint) Len() int { return a.conns.Size() }

// Empty reports whether no connection is registered anymore
func (a *AcceptPoint) Empty() bool { return a.conns.Size() == 0 }

// Start begins accepting connections in the background
func (a *AcceptPoint) Start() {
	Logger.Infof("Starting %s accept point on %s (max %d connections)",
		a.connector.GetName(), a.config.Endpoint, a.config.MaxConnections)

	a.wg.Add(1)
	go a.acceptLoop()
}

func (a *AcceptPoint) acceptLoop() {
	defer a.wg.Done()
	for {
		nc, err := a.listener.Accept()
		if err != nil {
			if a.suspended.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		if limit := a.config.MaxConnections; limit > 0 && a.conns.Size() >= limit {
			Logger.Warningf("Refusing connection: limit of %d connections reached", limit)
			connsRefused.Inc()
			_ = nc.Close()
			continue
		}

		peer, err := a.connector.Peer(nc)
		if err != nil {
			Logger.Warningf("Refusing connection: cannot resolve peer: %v", err)
			connsRefused.Inc()
			_ = nc.Close()
			continue
		}

		conn := NewConn(a.nextID.Add(1), nc, peer, a.pool, a.timeout)
		a.conns.Store(conn.ID(), conn)
		if !a.post(Event{Kind: EventConnect, Conn: conn}) {
			_ = nc.Close()
			return
		}

		a.wg.Add(1)
		go a.readLoop(conn)
	}
}

// readLoop turns inbound frames into events until the connection fails
func (a *AcceptPoint) readLoop(conn *Conn) {
	defer a.wg.Done()
	for {
		m, err := ReadFrame(conn.conn, a.pool)
		if err != nil {
			a.post(Event{Kind: EventClose, Conn: conn, Err: err})
			return
		}
		framesIn.Inc()
		if !a.post(Event{Kind: EventMessage, Conn: conn, Msg: m}) {
			m.Release()
			return
		}
	}
}

// post publishes an event unless the accept point is closed
func (a *AcceptPoint) post(ev Event) bool {
	select {
	case a.events <- ev:
		return true
	case <-a.done:
		return false
	}
}

// Dispatch processes one event. It must only be called by the event owner.
func (a *AcceptPoint) Dispatch(ev Event) {
	conn := ev.Conn
	switch ev.Kind {
	case EventConnect:
		if a.callbacks.Connect != nil {
			if err := a.callbacks.Connect(conn); err != nil {
				Logger.Warningf("Refusing connection %d (%s): %v", conn.ID(), conn.Peer(), err)
				connsRefused.Inc()
				a.drop(conn, false)
				return
			}
		}
		if conn.State() == StateConnecting {
			conn.SetState(StateOpen)
		}
		connsAccepted.Inc()
		Logger.Debugf("Accepted connection %d (%s)", conn.ID(), conn.Peer())

	case EventMessage:
		if conn.State() == StateClosed {
			ev.Msg.Release()
			return
		}
		if err := conn.Deliver(ev.Msg); err != nil {
			Logger.Warningf("Dropping message on connection %d: %v", conn.ID(), err)
			ev.Msg.Release()
			return
		}
		if a.callbacks.Transfer != nil {
			if err := a.callbacks.Transfer(conn); err != nil {
				Logger.Warningf("Closing connection %d: %v", conn.ID(), err)
				a.drop(conn, true)
			}
		}

	case EventClose:
		if ev.Err != nil && !isEOF(ev.Err) {
			Logger.Warningf("Connection %d failed: %v", conn.ID(), ev.Err)
		} else {
			Logger.Debugf("Connection %d closed by peer", conn.ID())
		}
		a.drop(conn, true)
	}
}

// drop unregisters and closes conn, running the close callback when the
// connection was accepted by Connect
func (a *AcceptPoint) drop(conn *Conn, notify bool) {
	if conn.State() == StateClosed {
		return
	}
	a.conns.Delete(conn.ID())
	if notify && a.callbacks.Close != nil {
		a.callbacks.Close(conn)
	}
	conn.drain()
	_ = conn.Close()
	connsClosed.Inc()
}

// Suspend stops accepting new connections
func (a *AcceptPoint) Suspend() {
	if a.suspended.Swap(true) {
		return
	}
	if err := a.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		Logger.Warningf("Failed to close listener: %v", err)
	}
}

// Halt suspends accepting and shuts down the read side of every connection.
// Connections leave the registry once their reader observed the shutdown
// and the resulting close event was dispatched.
func (a *AcceptPoint) Halt() {
	a.Suspend()
	a.conns.Range(func(_ uint64, conn *Conn) bool {
		conn.SetState(StateHalting)
		if err := conn.CloseRead(); err != nil {
			Logger.Debugf("Failed to half-close connection %d: %v", conn.ID(), err)
		}
		return true
	})
}

// Close closes the listener and every connection and waits for all
// background goroutines. Events still queued are discarded.
func (a *AcceptPoint) Close() error {
	a.closeOnce.Do(func() {
		a.Suspend()
		close(a.done)
		a.conns.Range(func(_ uint64, conn *Conn) bool {
			a.drop(conn, true)
			return true
		})
		a.wg.Wait()
		for {
			select {
			case ev := <-a.events:
				if ev.Msg != nil {
					ev.Msg.Release()
				}
			default:
				return
			}
		}
	})
	return nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
