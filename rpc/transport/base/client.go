package base

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/hed/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrTimeout is returned when no reply arrived in time
var ErrTimeout = errors.New("transport: request timed out")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix")
	GetName() string
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// ClientTransport sends requests over one connection and correlates the
// replies by xid. It reconnects transparently when the connection breaks.
type ClientTransport struct {
	connector IClientConnector
	config    common.ClientConfig
	pool      *BufferPool

	conn         net.Conn
	connMu       sync.Mutex // Protects the connection itself
	dead         chan struct{}
	requestChans *xsync.MapOf[uint64, chan responseResult]
	nextXID      atomic.Uint64
	stopping     atomic.Bool
}

// NewClientTransport creates a client transport with the specified connector
func NewClientTransport(connector IClientConnector) *ClientTransport {
	return &ClientTransport{
		connector:    connector,
		requestChans: xsync.NewMapOf[uint64, chan responseResult](),
	}
}

// Connect establishes the connection described by config
func (t *ClientTransport) Connect(config common.ClientConfig) error {
	if config.Endpoint == "" {
		return fmt.Errorf("no endpoint provided")
	}
	t.config = config
	t.pool = NewBufferPool(config.ChunkSize(), config.MaxMessageKB*1024/config.ChunkSize())
	t.stopping.Store(false)

	if err := t.reconnect(); err != nil {
		return err
	}
	Logger.Debugf("Connected to %s using %s transport", config.Endpoint, t.connector.GetName())
	return nil
}

// Send writes payload as a request and waits for its reply payload. With
// notify set the call returns as soon as the frame was written.
func (t *ClientTransport) Send(payload []byte, notify bool) ([]byte, error) {
	typ := MsgRequest
	if notify {
		typ = MsgNotification
	}

	// send reports whether the frame was written. A request on the wire may
	// have been executed and is never sent again.
	send := func() ([]byte, bool, error) {
		t.connMu.Lock()
		conn, dead := t.conn, t.dead
		t.connMu.Unlock()
		if conn == nil {
			return nil, false, ErrConnClosed
		}
		select {
		case <-dead:
			return nil, false, ErrConnClosed
		default:
		}

		xid := t.nextXID.Add(1)
		m := t.pool.NewMessage(typ, xid)
		defer m.Release()
		if _, err := m.Write(payload); err != nil {
			return nil, false, err
		}

		var respCh chan responseResult
		if !notify {
			respCh = make(chan responseResult, 1)
			t.requestChans.Store(xid, respCh)
			defer t.requestChans.Delete(xid)
		}

		t.connMu.Lock()
		if t.config.TimeoutSecond > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(t.timeout()))
		}
		err := WriteFrame(conn, m)
		t.connMu.Unlock()
		if err != nil {
			return nil, false, err
		}
		if notify {
			return nil, true, nil
		}

		var timeoutCh <-chan time.Time
		if t.config.TimeoutSecond > 0 {
			timer := time.NewTimer(t.timeout())
			defer timer.Stop()
			timeoutCh = timer.C
		}

		select {
		case result := <-respCh:
			return result.data, true, result.err
		case <-dead:
			return nil, true, ErrConnClosed
		case <-timeoutCh:
			return nil, true, ErrTimeout
		}
	}

	// We always try at least once
	maxRetries := t.config.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	// Initial backoff duration in milliseconds
	backoffMs := 50
	var lastErr error
	attempts := 0

	for i := 0; i < maxRetries; i++ {
		attempts++
		data, sent, err := send()
		if err == nil {
			return data, nil
		}
		lastErr = err
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, maxRetries, err)

		if sent || errors.Is(err, ErrFrameTooLarge) || errors.Is(err, ErrNoBuffers) {
			break
		}
		if i+1 < maxRetries {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter) * time.Millisecond)
			backoffMs *= 2
			if err := t.reconnect(); err != nil {
				lastErr = err
			}
		}
	}

	return nil, fmt.Errorf("failed to send request after %d attempts: %w", attempts, lastErr)
}

// Close closes the connection and fails every waiting request
func (t *ClientTransport) Close() error {
	t.stopping.Store(true)
	t.connMu.Lock()
	defer t.connMu.Unlock()
	return t.closeLocked()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *ClientTransport) timeout() time.Duration {
	return time.Duration(t.config.TimeoutSecond) * time.Second
}

func (t *ClientTransport) closeLocked() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// reconnect establishes or restores the connection to the endpoint
func (t *ClientTransport) reconnect() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.stopping.Load() {
		return ErrConnClosed
	}
	_ = t.closeLocked()

	conn, err := t.connector.Connect(t.config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", t.config.Endpoint, err)
	}
	t.conn = conn
	t.dead = make(chan struct{})
	go t.readResponses(conn, t.dead)
	return nil
}

// readResponses reads replies in a loop and hands them to waiting requests
func (t *ClientTransport) readResponses(conn net.Conn, dead chan struct{}) {
	defer close(dead)
	for {
		m, err := ReadFrame(conn, t.pool)
		if err != nil {
			if !t.stopping.Load() {
				Logger.Debugf("Connection to %s lost: %v", t.config.Endpoint, err)
			}
			return
		}

		if m.Type != MsgReply {
			Logger.Warningf("Ignoring server %s with xid %d", m.Type, m.XID)
			m.Release()
			continue
		}

		respCh, found := t.requestChans.Load(m.XID)
		if !found {
			Logger.Warningf("Received reply for unknown xid %d", m.XID)
			m.Release()
			continue
		}
		respCh <- responseResult{data: m.Bytes()}
		m.Release()
	}
}
