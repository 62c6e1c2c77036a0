package base

import (
	"errors"
	"net"
	"testing"
)

func TestConnReplyCorrelation(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	pool := NewBufferPool(64, 4)
	conn := NewConn(1, server, Principal{UID: 1000}, pool, 0)
	defer conn.Close()

	// a reply nobody asked for is refused
	stray := pool.NewMessage(MsgReply, 42)
	if err := conn.Deliver(stray); !errors.Is(err, ErrUnexpectedReply) {
		t.Fatalf("Expected ErrUnexpectedReply, got %v", err)
	}
	stray.Release()

	req := conn.NewRequest(7, false)
	xid := req.XID
	if _, err := req.Write([]byte("ping")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	received := make(chan *Message, 1)
	go func() {
		m, err := ReadFrame(client, pool)
		if err != nil {
			t.Errorf("ReadFrame failed: %v", err)
			close(received)
			return
		}
		received <- m
	}()

	if err := conn.Submit(req); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !req.Released() {
		t.Error("Expected Submit to release the message")
	}

	m, ok := <-received
	if !ok {
		t.FailNow()
	}
	if m.Type != MsgRequest || m.XID != xid || string(m.Bytes()) != "ping" {
		t.Errorf("Expected request %d with payload ping, got %s %d %q", xid, m.Type, m.XID, m.Bytes())
	}
	m.Release()

	reply := pool.NewMessage(MsgReply, xid)
	if err := conn.Deliver(reply); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if conn.Buffered() != 1 {
		t.Fatalf("Expected 1 queued message, got %d", conn.Buffered())
	}
	got := conn.Pull()
	if got.ID != 7 {
		t.Errorf("Expected reply stamped with id 7, got %d", got.ID)
	}
	got.Release()

	// the pending entry is consumed by the first reply
	dup := pool.NewMessage(MsgReply, xid)
	if err := conn.Deliver(dup); !errors.Is(err, ErrUnexpectedReply) {
		t.Errorf("Expected ErrUnexpectedReply for a duplicate reply, got %v", err)
	}
	dup.Release()
}

func TestConnSubmitClosed(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	pool := NewBufferPool(64, 4)
	conn := NewConn(1, server, Principal{}, pool, 0)
	_ = conn.Close()

	m := pool.NewMessage(MsgNotification, 1)
	if err := conn.Submit(m); !errors.Is(err, ErrConnClosed) {
		t.Errorf("Expected ErrConnClosed, got %v", err)
	}
	if !m.Released() {
		t.Error("Expected Submit to release the message on failure")
	}
	if conn.Pull() != nil {
		t.Error("Expected empty queue")
	}
}
