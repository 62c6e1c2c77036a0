package base

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrUnexpectedReply is returned when a reply matches no pending request
	ErrUnexpectedReply = errors.New("transport: reply without pending request")
	// ErrConnClosed is returned when writing to a closed connection
	ErrConnClosed = errors.New("transport: connection closed")
)

// --------------------------------------------------------------------------
// Peer identity
// --------------------------------------------------------------------------

// Principal identifies the process on the other end of a connection
type Principal struct {
	UID    uint32
	GID    uint32
	Groups []uint32
	PID    int32
}

// IsRoot reports whether the peer runs as the super user
func (p Principal) IsRoot() bool { return p.UID == 0 }

// InGroup reports whether gid is the peer's primary or a supplementary group
func (p Principal) InGroup(gid uint32) bool {
	if p.GID == gid {
		return true
	}
	for _, g := range p.Groups {
		if g == gid {
			return true
		}
	}
	return false
}

func (p Principal) String() string {
	groups := make([]string, len(p.Groups))
	for i, g := range p.Groups {
		groups[i] = strconv.FormatUint(uint64(g), 10)
	}
	return fmt.Sprintf("pid=%d uid=%d gid=%d groups=[%s]", p.PID, p.UID, p.GID, strings.Join(groups, ","))
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// ConnState is the lifecycle state of a server side connection
type ConnState uint32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateHalting
	StateClosed
)

// Conn is one accepted connection. Its inbound queue, pending table and
// context are owned by the goroutine pumping the accept point events; only
// the write path is safe for concurrent use.
type Conn struct {
	id      uint64
	conn    net.Conn
	peer    Principal
	pool    *BufferPool
	timeout time.Duration

	inbound []*Message
	pending map[uint64]uint32
	nextXID uint64
	ctx     any

	state   atomic.Uint32
	writeMu sync.Mutex
}

// NewConn wraps an established connection
func NewConn(id uint64, nc net.Conn, peer Principal, pool *BufferPool, timeout time.Duration) *Conn {
	return &Conn{
		id:      id,
		conn:    nc,
		peer:    peer,
		pool:    pool,
		timeout: timeout,
		pending: make(map[uint64]uint32),
		nextXID: 1,
	}
}

func (c *Conn) ID() uint64 { return c.id }
func (c *Conn) Peer() Principal { return c.peer }
func (c *Conn) Pool() *BufferPool { return c.pool }
func (c *Conn) Context() any { return c.ctx }
func (c *Conn) SetContext(ctx any) { c.ctx = ctx }
func (c *Conn) State() ConnState { return ConnState(c.state.Load()) }
func (c *Conn) SetState(s ConnState) { c.state.Store(uint32(s)) }
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
func (c *Conn) Buffered() int { return len(c.inbound) }

// Deliver queues an inbound message. Replies get the id of the request they
// answer stamped; a reply nobody waits for is refused.
func (c *Conn) Deliver(m *Message) error {
	if m.Type == MsgReply {
		id, ok := c.pending[m.XID]
		if !ok {
			return fmt.Errorf("%w: xid %d", ErrUnexpectedReply, m.XID)
		}
		delete(c.pending, m.XID)
		m.ID = id
	}
	c.inbound = append(c.inbound, m)
	return nil
}

// Pull removes and returns the oldest queued message, nil if none
func (c *Conn) Pull() *Message {
	if len(c.inbound) == 0 {
		return nil
	}
	m := c.inbound[0]
	c.inbound[0] = nil
	c.inbound = c.inbound[1:]
	return m
}

// drain releases every queued message
func (c *Conn) drain() {
	for m := c.Pull(); m != nil; m = c.Pull() {
		m.Release()
	}
}

// NewReply allocates the reply to req
func (c *Conn) NewReply(req *Message) *Message {
	m := c.pool.NewMessage(MsgReply, req.XID)
	m.ID = req.ID
	return m
}

// NewRequest allocates a server originated request or notification
func (c *Conn) NewRequest(id uint32, notify bool) *Message {
	typ := MsgRequest
	if notify {
		typ = MsgNotification
	}
	xid := c.nextXID
	c.nextXID++
	m := c.pool.NewMessage(typ, xid)
	m.ID = id
	return m
}

// Submit writes m and releases it. Requests are remembered so their reply
// can be correlated by Deliver.
func (c *Conn) Submit(m *Message) error {
	defer m.Release()
	if c.State() == StateClosed {
		return ErrConnClosed
	}
	if m.Type == MsgRequest {
		c.pending[m.XID] = m.ID
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	if err := WriteFrame(c.conn, m); err != nil {
		delete(c.pending, m.XID)
		return err
	}
	framesOut.Inc()
	return nil
}

// CloseRead shuts down the read side so the reader observes end of stream
func (c *Conn) CloseRead() error {
	if hc, ok := c.conn.(interface{ CloseRead() error }); ok {
		return hc.CloseRead()
	}
	return c.conn.Close()
}

// Close closes the underlying connection
func (c *Conn) Close() error {
	c.SetState(StateClosed)
	return c.conn.Close()
}
