package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const headerSize = 13

// WriteFrame writes a message to w with the format:
// - 1 byte: message type
// - 8 bytes: xid (uint64, big endian)
// - 4 bytes: payload length (uint32, big endian)
// - N bytes: payload
func WriteFrame(w io.Writer, m *Message) error {
	if m.released {
		return ErrReleased
	}
	header := make([]byte, headerSize)
	header[0] = byte(m.Type)
	binary.BigEndian.PutUint64(header[1:9], m.XID)
	binary.BigEndian.PutUint32(header[9:13], uint32(m.size))

	b := make(net.Buffers, 0, len(m.chunks)+1)
	b = append(b, header)
	b = append(b, m.chunks...)
	_, err := b.WriteTo(w)
	return err
}

// ReadFrame reads one frame from r into a message allocated from pool.
// The payload is split into pool chunks so large frames never need one
// contiguous buffer.
func ReadFrame(r io.Reader, pool *BufferPool) (*Message, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	typ := MsgType(header[0])
	if !typ.valid() {
		return nil, fmt.Errorf("transport: invalid message type %d", header[0])
	}
	xid := binary.BigEndian.Uint64(header[1:9])
	length := int(binary.BigEndian.Uint32(header[9:13]))
	if length > pool.MaxPayload() {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, length, pool.MaxPayload())
	}

	m := pool.NewMessage(typ, xid)
	for remaining := length; remaining > 0; {
		n := remaining
		if n > pool.chunkSize {
			n = pool.chunkSize
		}
		chunk := pool.get()[:n]
		m.chunks = append(m.chunks, chunk)
		if _, err := io.ReadFull(r, chunk); err != nil {
			m.Release()
			return nil, err
		}
		m.size += n
		remaining -= n
	}
	return m, nil
}
