package dispatch

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/hed/rpc/codec"
	"github.com/ValentinKolb/hed/rpc/common"
	"github.com/ValentinKolb/hed/rpc/transport/base"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("dispatch")

var (
	// ErrDecode is returned when a message does not start with a method id
	ErrDecode = errors.New("dispatch: cannot decode method id")
	// ErrProtocol is returned when a reply carries another id than its request
	ErrProtocol = errors.New("dispatch: reply does not match request")
	// ErrPermission is returned for a method the peer may not call
	ErrPermission = errors.New("dispatch: permission denied")
	// ErrStaleTable is returned when a connection's handler table was released
	ErrStaleTable = errors.New("dispatch: stale handler table")
)

var (
	decodeErrors     = metrics.NewCounter(`hed_rpc_errors_total{kind="decode"}`)
	protocolErrors   = metrics.NewCounter(`hed_rpc_errors_total{kind="protocol"}`)
	permissionErrors = metrics.NewCounter(`hed_rpc_errors_total{kind="permission"}`)
	handlerErrors    = metrics.NewCounter(`hed_rpc_errors_total{kind="handler"}`)
	callDuration     = metrics.NewHistogram(`hed_rpc_call_duration_seconds`)
)

// --------------------------------------------------------------------------
// Calls
// --------------------------------------------------------------------------

// Handler serves one message. The message is released when it returns.
type Handler func(call *Call) error

// Call is one message handed to a Handler. Dec is positioned after the
// method id.
type Call struct {
	Conn *base.Conn
	Msg  *base.Message
	Dec  *codec.Decoder
}

// Reply encodes and submits the reply to a request. Notifications are not
// answered, fn is not run for them.
func (c *Call) Reply(fn func(enc *codec.Encoder) error) error {
	if c.Msg.Type != base.MsgRequest {
		return nil
	}
	reply := c.Conn.NewReply(c.Msg)
	if err := codec.Encode(reply, fn); err != nil {
		reply.Release()
		return err
	}
	return c.Conn.Submit(reply)
}

// --------------------------------------------------------------------------
// Dispatcher
// --------------------------------------------------------------------------

// table is the handler table installed on one connection
type table struct {
	gen      uint64
	handlers []Handler
}

// Dispatcher routes the messages of every connection to the handlers its
// peer is permitted to call
type Dispatcher struct {
	list *AuthList
	gen  atomic.Uint64
}

// New creates a dispatcher installing list on every connection
func New(list *AuthList) *Dispatcher {
	return &Dispatcher{list: list}
}

// Callbacks returns the accept point callbacks of the dispatcher. Its
// Transfer callback does not stop at a handler error: the error is logged and
// Transfer is entered again for the messages still queued. Decode, protocol,
// permission and stale table errors end the loop and close the connection.
func (d *Dispatcher) Callbacks() base.Callbacks {
	return base.Callbacks{
		Connect:  d.Connect,
		Transfer: d.serve,
		Close:    d.Close,
	}
}

// Connect installs a fresh handler table on conn. A peer that may call no
// method at all is refused with ErrPermission.
func (d *Dispatcher) Connect(conn *base.Conn) error {
	t := &table{handlers: make([]Handler, int(d.list.idMax)+1)}

	granted := 0
	for _, e := range d.list.entries {
		if !Permit(conn.Peer(), e) {
			continue
		}
		t.handlers[e.ID] = e.Handler
		granted++
	}
	if granted == 0 {
		permissionErrors.Inc()
		return fmt.Errorf("%w: no method granted to %s", ErrPermission, conn.Peer())
	}

	t.gen = d.gen.Add(1)
	conn.SetContext(t)
	Logger.Debugf("Connection %d may call %d of %d methods", conn.ID(), granted, d.list.Len())
	return nil
}

// Transfer serves the queued messages of conn in order. It stops at the
// first error and returns it; messages behind it stay queued.
func (d *Dispatcher) Transfer(conn *base.Conn) error {
	t, err := tableOf(conn)
	if err != nil {
		return err
	}
	for m := conn.Pull(); m != nil; m = conn.Pull() {
		if err := d.handle(conn, t, m); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the handler table of conn
func (d *Dispatcher) Close(conn *base.Conn) {
	if t, ok := conn.Context().(*table); ok {
		t.gen = 0
		t.handlers = nil
	}
	conn.SetContext(nil)
}

// serve is the Transfer callback. It restarts Transfer after a handler error
// until the queue is empty.
func (d *Dispatcher) serve(conn *base.Conn) error {
	for {
		err := d.Transfer(conn)
		if err == nil || fatal(err) {
			return err
		}
		Logger.Warningf("Handler failed on connection %d: %v", conn.ID(), err)
		if conn.Buffered() == 0 {
			return nil
		}
	}
}

// handle decodes the method id of m and runs its handler
func (d *Dispatcher) handle(conn *base.Conn, t *table, m *base.Message) error {
	defer m.Release()

	dec := codec.NewDecoder(m)
	defer dec.Close()

	id, err := dec.DecodeUint32()
	if err != nil {
		decodeErrors.Inc()
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if m.Type == base.MsgReply {
		if id != m.ID {
			protocolErrors.Inc()
			return fmt.Errorf("%w: reply id %d, request id %d", ErrProtocol, id, m.ID)
		}
	} else {
		m.ID = id
	}

	if int(id) >= len(t.handlers) || t.handlers[id] == nil {
		permissionErrors.Inc()
		return fmt.Errorf("%w: %s may not call %s", ErrPermission, conn.Peer(), common.Method(id))
	}

	metrics.GetOrCreateCounter(fmt.Sprintf(`hed_rpc_calls_total{method=%q}`, common.Method(id))).Inc()
	start := time.Now()
	err = t.handlers[id](&Call{Conn: conn, Msg: m, Dec: dec})
	callDuration.UpdateDuration(start)
	if err != nil {
		handlerErrors.Inc()
		return fmt.Errorf("%s: %w", common.Method(id), err)
	}
	return nil
}

// tableOf returns the live handler table of conn
func tableOf(conn *base.Conn) (*table, error) {
	t, ok := conn.Context().(*table)
	if !ok || t.gen == 0 {
		return nil, ErrStaleTable
	}
	return t, nil
}

// fatal reports whether err must close the connection
func fatal(err error) bool {
	return errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrProtocol) ||
		errors.Is(err, ErrPermission) ||
		errors.Is(err, ErrStaleTable)
}

// --------------------------------------------------------------------------
// Accept point factory
// --------------------------------------------------------------------------

// OpenAccept creates an accept point whose connections are served by a
// dispatcher for list
func OpenAccept(connector base.IServerConnector, config common.ServerConfig, list *AuthList) (*base.AcceptPoint, error) {
	d := New(list)
	ap, err := base.NewAcceptPoint(connector, config, d.Callbacks())
	if err != nil {
		return nil, err
	}
	return ap, nil
}
