package base

import (
	"errors"
	"sync"
)

var (
	// ErrNoData is returned by Message.Read once every buffered byte was consumed
	ErrNoData = errors.New("transport: no buffered data")
	// ErrNoBuffers is returned by Message.Write when the chunk limit is reached
	ErrNoBuffers = errors.New("transport: message buffer limit reached")
	// ErrReleased is returned by every operation on a released message
	ErrReleased = errors.New("transport: message already released")
	// ErrFrameTooLarge is returned when a frame exceeds the pool limit
	ErrFrameTooLarge = errors.New("transport: frame exceeds size limit")
)

// MsgType is the kind of an RPC message
type MsgType uint8

const (
	MsgRequest MsgType = iota + 1
	MsgNotification
	MsgReply
)

func (t MsgType) String() string {
	switch t {
	case MsgRequest:
		return "request"
	case MsgNotification:
		return "notification"
	case MsgReply:
		return "reply"
	default:
		return "unknown"
	}
}

func (t MsgType) valid() bool { return t >= MsgRequest && t <= MsgReply }

// --------------------------------------------------------------------------
// Buffer pool
// --------------------------------------------------------------------------

// BufferPool hands out fixed size chunks for message payloads
type BufferPool struct {
	pool      *sync.Pool
	chunkSize int
	maxChunks int
}

// NewBufferPool creates a pool of chunkSize byte chunks. A single message
// may hold at most maxChunks chunks.
func NewBufferPool(chunkSize, maxChunks int) *BufferPool {
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	if maxChunks <= 0 {
		maxChunks = 1
	}
	return &BufferPool{
		chunkSize: chunkSize,
		maxChunks: maxChunks,
		pool: &sync.Pool{
			New: func() interface{} {
				b := make([]byte, chunkSize)
				return &b
			},
		},
	}
}

// MaxPayload is the largest payload a message from this pool can carry
func (p *BufferPool) MaxPayload() int { return p.chunkSize * p.maxChunks }

func (p *BufferPool) get() []byte {
	return (*p.pool.Get().(*[]byte))[:0]
}

func (p *BufferPool) put(b []byte) {
	b = b[:cap(b)]
	p.pool.Put(&b)
}

// NewMessage allocates an empty message backed by this pool
func (p *BufferPool) NewMessage(typ MsgType, xid uint64) *Message {
	return &Message{Type: typ, XID: xid, pool: p}
}

// --------------------------------------------------------------------------
// Message
// --------------------------------------------------------------------------

// Message is one RPC message whose payload lives in a chain of pool chunks.
// It is owned by a single goroutine and must be released after use.
type Message struct {
	Type MsgType
	// ID is the method id, stamped by the dispatcher or the reply correlation
	ID uint32
	// XID correlates requests and replies on one connection
	XID uint64
	// Ctx is opaque caller data travelling with the message
	Ctx any

	pool     *BufferPool
	chunks   [][]byte
	rchunk   int
	roff     int
	size     int
	released bool
}

// Len returns the payload size
func (m *Message) Len() int { return m.size }

// Buffered returns the number of payload bytes not yet read
func (m *Message) Buffered() int {
	if m.released {
		return 0
	}
	n := 0
	for i := m.rchunk; i < len(m.chunks); i++ {
		n += len(m.chunks[i])
	}
	return n - m.roff
}

// Released reports whether Release was called
func (m *Message) Released() bool { return m.released }

// Read copies buffered payload into p. Short reads are normal; ErrNoData is
// returned once nothing remains.
func (m *Message) Read(p []byte) (int, error) {
	if m.released {
		return 0, ErrReleased
	}
	n := 0
	for n < len(p) && m.rchunk < len(m.chunks) {
		chunk := m.chunks[m.rchunk]
		c := copy(p[n:], chunk[m.roff:])
		n += c
		m.roff += c
		if m.roff == len(chunk) {
			m.rchunk++
			m.roff = 0
		}
	}
	if n == 0 && len(p) > 0 {
		return 0, ErrNoData
	}
	return n, nil
}

// Write appends p to the chunk chain
func (m *Message) Write(p []byte) (int, error) {
	if m.released {
		return 0, ErrReleased
	}
	n := 0
	for n < len(p) {
		if len(m.chunks) == 0 || len(m.chunks[len(m.chunks)-1]) == m.pool.chunkSize {
			if len(m.chunks) == m.pool.maxChunks {
				return n, ErrNoBuffers
			}
			m.chunks = append(m.chunks, m.pool.get())
		}
		last := len(m.chunks) - 1
		chunk := m.chunks[last]
		c := copy(chunk[len(chunk):m.pool.chunkSize], p[n:])
		m.chunks[last] = chunk[:len(chunk)+c]
		n += c
		m.size += c
	}
	return n, nil
}

// Bytes returns a contiguous copy of the whole payload
func (m *Message) Bytes() []byte {
	out := make([]byte, 0, m.size)
	for _, chunk := range m.chunks {
		out = append(out, chunk...)
	}
	return out
}

// Release returns every chunk to the pool. Releasing twice is a no-op.
func (m *Message) Release() {
	if m.released {
		return
	}
	for _, chunk := range m.chunks {
		m.pool.put(chunk)
	}
	m.chunks = nil
	m.released = true
}
