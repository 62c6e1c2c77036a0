package client

import (
	"bytes"
	"fmt"

	"github.com/ValentinKolb/hed/rpc/codec"
	"github.com/ValentinKolb/hed/rpc/common"
	"github.com/ValentinKolb/hed/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

// rpcClientAdapter stores everything needed to invoke remote methods
type rpcClientAdapter struct {
	config    common.ClientConfig
	transport transport.IRPCClientTransport
}

// invokeRPCRequest is a helper function used for all RPC calls.
// args encodes the arguments after the method id, results decodes what
// follows an OK reply header; both may be nil. A non-OK reply is returned as
// *common.StatusError.
func invokeRPCRequest(
	t transport.IRPCClientTransport,
	method common.Method,
	args func(enc *codec.Encoder) error,
	results func(dec *codec.Decoder) error,
) error {
	// Encode the request
	var req bytes.Buffer
	err := codec.Encode(&req, func(enc *codec.Encoder) error {
		if err := common.EncodeRequestHeader(enc.Encoder, method); err != nil {
			return err
		}
		if args == nil {
			return nil
		}
		return args(enc)
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	// Send the request
	resp, err := t.Send(req.Bytes(), false)
	if err != nil {
		return err
	}

	// Decode the reply
	return codec.Decode(bytes.NewReader(resp), func(dec *codec.Decoder) error {
		if err := common.DecodeReplyHeader(dec.Decoder, method); err != nil {
			return err
		}
		if results == nil {
			return nil
		}
		if err := results(dec); err != nil {
			return fmt.Errorf("failed to decode %s reply: %w", method, err)
		}
		return nil
	})
}

func encodeTableKey(enc *codec.Encoder, table string, key []byte) error {
	if err := enc.EncodeString(table); err != nil {
		return err
	}
	return enc.EncodeBytes(key)
}
