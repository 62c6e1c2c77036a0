package codec

import (
	"bufio"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/ValentinKolb/hed/rpc/transport/base"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNoMemory is returned when the outbound message ran out of buffers
var ErrNoMemory = errors.New("codec: out of message buffers")

// staging buffers are one memory page each
var (
	readers = sync.Pool{New: func() interface{} { return bufio.NewReaderSize(nil, os.Getpagesize()) }}
	writers = sync.Pool{New: func() interface{} { return bufio.NewWriterSize(nil, os.Getpagesize()) }}
)

// --------------------------------------------------------------------------
// Decoder
// --------------------------------------------------------------------------

// fill pulls already buffered inbound chunks into the staging reader
type fill struct {
	src io.Reader
}

func (f fill) Read(p []byte) (int, error) {
	n, err := f.src.Read(p)
	if errors.Is(err, base.ErrNoData) {
		return n, io.EOF
	}
	return n, err
}

// Decoder is a msgpack decoder reading a message payload. Running out of
// payload surfaces as io.EOF.
type Decoder struct {
	*msgpack.Decoder
	buf *bufio.Reader
}

// NewDecoder creates a decoder over src. It must be closed after use.
func NewDecoder(src io.Reader) *Decoder {
	buf := readers.Get().(*bufio.Reader)
	buf.Reset(fill{src: src})

	dec := msgpack.GetDecoder()
	dec.Reset(buf)
	return &Decoder{Decoder: dec, buf: buf}
}

// Close returns the staging buffer and decoder state to their pools
func (d *Decoder) Close() {
	if d.buf == nil {
		return
	}
	msgpack.PutDecoder(d.Decoder)
	d.Decoder = nil

	d.buf.Reset(nil)
	readers.Put(d.buf)
	d.buf = nil
}

// --------------------------------------------------------------------------
// Encoder
// --------------------------------------------------------------------------

// flush appends staged bytes to the outbound chunk chain
type flush struct {
	dst io.Writer
}

func (f flush) Write(p []byte) (int, error) {
	n, err := f.dst.Write(p)
	if errors.Is(err, base.ErrNoBuffers) {
		return n, ErrNoMemory
	}
	return n, err
}

// Encoder is a msgpack encoder writing a message payload
type Encoder struct {
	*msgpack.Encoder
	buf *bufio.Writer
}

// NewEncoder creates an encoder over dst. It must be closed after use.
func NewEncoder(dst io.Writer) *Encoder {
	buf := writers.Get().(*bufio.Writer)
	buf.Reset(flush{dst: dst})

	enc := msgpack.GetEncoder()
	enc.Reset(buf)
	return &Encoder{Encoder: enc, buf: buf}
}

// Close flushes the staged bytes unless abort is set and returns the staging
// buffer and encoder state to their pools. Bytes flushed before an abort
// stay in dst.
func (e *Encoder) Close(abort bool) error {
	if e.buf == nil {
		return nil
	}
	var err error
	if !abort {
		err = e.buf.Flush()
	}
	msgpack.PutEncoder(e.Encoder)
	e.Encoder = nil

	e.buf.Reset(nil)
	writers.Put(e.buf)
	e.buf = nil
	return err
}

// --------------------------------------------------------------------------
// Scoped helpers
// --------------------------------------------------------------------------

// Decode runs fn with a decoder over src and closes it afterwards
func Decode(src io.Reader, fn func(dec *Decoder) error) error {
	dec := NewDecoder(src)
	defer dec.Close()
	return fn(dec)
}

// Encode runs fn with an encoder over dst. The encoder is flushed when fn
// succeeds and aborted when it fails.
func Encode(dst io.Writer, fn func(enc *Encoder) error) error {
	enc := NewEncoder(dst)
	if err := fn(enc); err != nil {
		_ = enc.Close(true)
		return err
	}
	return enc.Close(false)
}
