package base

import (
	"bytes"
	"errors"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/hed/rpc/common"
)

type unixDialer struct{}

func (unixDialer) Connect(endpoint string) (net.Conn, error) { return net.Dial("unix", endpoint) }
func (unixDialer) GetName() string { return "unix" }

// listen starts a unix listener serving every connection with serve
func listen(t *testing.T, serve func(n int, nc net.Conn)) string {
	t.Helper()
	endpoint := filepath.Join(t.TempDir(), "client.sock")
	ln, err := net.Listen("unix", endpoint)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := 0; ; n++ {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			serve(n, nc)
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		<-done
	})
	return endpoint
}

func connectClient(t *testing.T, endpoint string) *ClientTransport {
	t.Helper()
	tr := NewClientTransport(unixDialer{})
	err := tr.Connect(common.ClientConfig{
		Endpoint:      endpoint,
		TimeoutSecond: 5,
		RetryCount:    3,
		MaxMessageKB:  16,
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

// TestSendNotRepeatedAfterWrite checks a request whose connection died after
// the frame was written is reported instead of being sent again
func TestSendNotRepeatedAfterWrite(t *testing.T) {
	var frames atomic.Int32
	pool := NewBufferPool(4096, 4)
	endpoint := listen(t, func(_ int, nc net.Conn) {
		if m, err := ReadFrame(nc, pool); err == nil {
			frames.Add(1)
			m.Release()
		}
		_ = nc.Close()
	})

	tr := connectClient(t, endpoint)
	if _, err := tr.Send([]byte("next_seq"), false); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("Expected ErrConnClosed, got %v", err)
	}
	_ = tr.Close()

	// give a wrongly repeated request the chance to arrive
	time.Sleep(200 * time.Millisecond)
	if n := frames.Load(); n != 1 {
		t.Errorf("Expected the request to reach the server once, got %d", n)
	}
}

// TestSendRetriedBeforeWrite checks a connection found dead before writing is
// replaced and the request delivered on the new one
func TestSendRetriedBeforeWrite(t *testing.T) {
	var frames atomic.Int32
	firstClosed := make(chan struct{})
	pool := NewBufferPool(4096, 4)
	endpoint := listen(t, func(n int, nc net.Conn) {
		defer nc.Close()
		if n == 0 {
			close(firstClosed)
			return
		}
		m, err := ReadFrame(nc, pool)
		if err != nil {
			return
		}
		frames.Add(1)
		reply := pool.NewMessage(MsgReply, m.XID)
		_, _ = reply.Write(m.Bytes())
		m.Release()
		_ = WriteFrame(nc, reply)
		reply.Release()

		// wait for the client to hang up
		_, _ = ReadFrame(nc, pool)
	})

	tr := connectClient(t, endpoint)
	<-firstClosed
	tr.connMu.Lock()
	dead := tr.dead
	tr.connMu.Unlock()
	select {
	case <-dead:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected the client to notice the closed connection")
	}

	got, err := tr.Send([]byte("update"), false)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !bytes.Equal(got, []byte("update")) {
		t.Errorf("Expected echoed payload, got %q", got)
	}
	if n := frames.Load(); n != 1 {
		t.Errorf("Expected one delivered request, got %d", n)
	}
}
