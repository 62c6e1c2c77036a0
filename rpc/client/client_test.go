package client

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ValentinKolb/hed/rpc/codec"
	"github.com/ValentinKolb/hed/rpc/common"
)

// fakeTransport answers every request with reply
type fakeTransport struct {
	reply func(method common.Method, dec *codec.Decoder, enc *codec.Encoder) error
	sent  int
}

func (f *fakeTransport) Connect(common.ClientConfig) error { return nil }
func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) Send(payload []byte, notify bool) ([]byte, error) {
	f.sent++
	var out bytes.Buffer
	err := codec.Decode(bytes.NewReader(payload), func(dec *codec.Decoder) error {
		id, err := dec.DecodeUint32()
		if err != nil {
			return err
		}
		return codec.Encode(&out, func(enc *codec.Encoder) error {
			return f.reply(common.Method(id), dec, enc)
		})
	})
	return out.Bytes(), err
}

func newTestClient(t *testing.T, reply func(common.Method, *codec.Decoder, *codec.Encoder) error) (*RepoClient, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{reply: reply}
	c, err := NewRPCRepo(common.ClientConfig{Endpoint: "test"}, ft)
	if err != nil {
		t.Fatalf("NewRPCRepo failed: %v", err)
	}
	return c, ft
}

func TestGet(t *testing.T) {
	c, _ := newTestClient(t, func(m common.Method, dec *codec.Decoder, enc *codec.Encoder) error {
		table, err := dec.DecodeString()
		if err != nil {
			return err
		}
		key, err := dec.DecodeBytes()
		if err != nil {
			return err
		}
		if m != common.MethodGet || table != "hosts" || string(key) != "a" {
			return common.EncodeReplyHeader(enc.Encoder, m, common.StatusInvalid, "unexpected request")
		}
		if err := common.EncodeReplyHeader(enc.Encoder, m, common.StatusOK, ""); err != nil {
			return err
		}
		return enc.EncodeBytes([]byte("value"))
	})

	v, err := c.Get("hosts", []byte("a"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(v) != "value" {
		t.Errorf("Expected value, got %q", v)
	}
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status common.Status
		want   error
	}{
		{"not found", common.StatusNotFound, common.ErrNotFound},
		{"invalid", common.StatusInvalid, common.ErrInvalid},
		{"read only", common.StatusReadOnly, common.ErrReadOnly},
		{"no snapshot", common.StatusNoSnapshot, common.ErrNoSnapshot},
		{"internal", common.StatusInternal, common.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(m common.Method, _ *codec.Decoder, enc *codec.Encoder) error {
				return common.EncodeReplyHeader(enc.Encoder, m, tt.status, "details")
			})

			err := c.Delete("hosts", []byte("a"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			var se *common.StatusError
			if !errors.As(err, &se) || se.Msg != "details" {
				t.Errorf("Expected status error with message, got %v", err)
			}
		})
	}
}

func TestReplyMethodMismatch(t *testing.T) {
	c, _ := newTestClient(t, func(_ common.Method, _ *codec.Decoder, enc *codec.Encoder) error {
		return common.EncodeReplyHeader(enc.Encoder, common.MethodStats, common.StatusOK, "")
	})

	if err := c.Reload(); err == nil {
		t.Error("Expected error for a reply to another method")
	}
}

func TestResults(t *testing.T) {
	entries := []common.Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	}
	c, ft := newTestClient(t, func(m common.Method, _ *codec.Decoder, enc *codec.Encoder) error {
		if err := common.EncodeReplyHeader(enc.Encoder, m, common.StatusOK, ""); err != nil {
			return err
		}
		switch m {
		case common.MethodNextSeq:
			return enc.EncodeUint32(7)
		case common.MethodCount:
			return enc.EncodeInt(2)
		case common.MethodList:
			return enc.Encode(entries)
		case common.MethodStats:
			return enc.Encode(&common.ServerStats{Connections: 3, Commits: 4})
		case common.MethodVersionGet:
			return enc.EncodeBytes([]byte("v1"))
		}
		return nil
	})

	if seq, err := c.NextSeq("hosts"); err != nil || seq != 7 {
		t.Errorf("Expected seq 7, got %d (%v)", seq, err)
	}
	if n, err := c.Count("hosts"); err != nil || n != 2 {
		t.Errorf("Expected count 2, got %d (%v)", n, err)
	}
	got, err := c.List("hosts")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 || string(got[1].Key) != "b" || string(got[1].Value) != "2" {
		t.Errorf("Expected %v, got %v", entries, got)
	}
	stats, err := c.Stats()
	if err != nil || stats.Connections != 3 || stats.Commits != 4 {
		t.Errorf("Expected stats {3 4}, got %+v (%v)", stats, err)
	}
	if v, err := c.Version(); err != nil || string(v) != "v1" {
		t.Errorf("Expected version v1, got %q (%v)", v, err)
	}
	if err := c.SetVersion([]byte("v2")); err != nil {
		t.Errorf("SetVersion failed: %v", err)
	}
	if err := c.Update("hosts", []byte("k"), []byte("v")); err != nil {
		t.Errorf("Update failed: %v", err)
	}
	if err := c.Rollback(); err != nil {
		t.Errorf("Rollback failed: %v", err)
	}
	if ft.sent != 8 {
		t.Errorf("Expected 8 requests, got %d", ft.sent)
	}
}
