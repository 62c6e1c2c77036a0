package inet

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind names an address family a value is stored as
type Kind string

const (
	KindEther Kind = "ether"
	KindIn    Kind = "in"
	KindIn6   Kind = "in6"
)

type kindCodec struct {
	fromJSON func(*msgpack.Encoder, json.RawMessage) error
	toJSON   func(*msgpack.Decoder) (json.RawMessage, error)
}

var kinds = map[Kind]kindCodec{
	KindEther: {EncodeEtherFromJSON, DecodeEtherToJSON},
	KindIn:    {EncodeInFromJSON, DecodeInToJSON},
	KindIn6:   {EncodeIn6FromJSON, DecodeIn6ToJSON},
}

func lookup(kind Kind) (kindCodec, error) {
	c, ok := kinds[kind]
	if !ok {
		return kindCodec{}, fmt.Errorf("inet: unknown address kind %q (expected one of ether, in, in6)", kind)
	}
	return c, nil
}

// Marshal encodes the text form of an address of the given kind
func Marshal(kind Kind, text string) ([]byte, error) {
	c, err := lookup(kind)
	if err != nil {
		return nil, err
	}
	obj, err := json.Marshal(text)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(&buf)
	if err := c.fromJSON(enc, obj); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes an encoded address of the given kind into its text form
func Unmarshal(kind Kind, data []byte) (string, error) {
	c, err := lookup(kind)
	if err != nil {
		return "", err
	}

	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(bytes.NewReader(data))
	obj, err := c.toJSON(dec)
	if err != nil {
		return "", err
	}

	var text string
	if err := json.Unmarshal(obj, &text); err != nil {
		return "", err
	}
	return text, nil
}
