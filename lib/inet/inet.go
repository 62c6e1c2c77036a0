// Package inet encodes network addresses stored in the repository.
//
// Wire forms (msgpack):
//   - ethernet address: 6 byte bin
//   - IPv4 address: uint holding the address in network byte order
//   - IPv6 address: 16 byte bin
//
// Every type also converts from and to its JSON string form ("aa:bb:cc:dd:ee:ff",
// "192.0.2.1", "2001:db8::1") so values can be edited as text.
package inet

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	EtherLen = 6
	In6Len   = 16
)

var ErrInvalidAddr = errors.New("inet: invalid address")

// --------------------------------------------------------------------------
// Ethernet
// --------------------------------------------------------------------------

func EncodeEther(enc *msgpack.Encoder, addr net.HardwareAddr) error {
	if len(addr) != EtherLen {
		return fmt.Errorf("%w: ethernet address must be %d bytes, got %d", ErrInvalidAddr, EtherLen, len(addr))
	}
	return enc.EncodeBytes(addr)
}

func DecodeEther(dec *msgpack.Decoder) (net.HardwareAddr, error) {
	b, err := dec.DecodeBytes()
	if err != nil {
		return nil, err
	}
	if len(b) != EtherLen {
		return nil, fmt.Errorf("%w: ethernet address must be %d bytes, got %d", ErrInvalidAddr, EtherLen, len(b))
	}
	return net.HardwareAddr(b), nil
}

// ParseEther parses the colon separated text form
func ParseEther(s string) (net.HardwareAddr, error) {
	addr, err := net.ParseMAC(s)
	if err != nil || len(addr) != EtherLen {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddr, s)
	}
	return addr, nil
}

// EncodeEtherFromJSON encodes a JSON string holding an ethernet address
func EncodeEtherFromJSON(enc *msgpack.Encoder, obj json.RawMessage) error {
	s, err := jsonString(obj)
	if err != nil {
		return err
	}
	addr, err := ParseEther(s)
	if err != nil {
		return err
	}
	return EncodeEther(enc, addr)
}

// DecodeEtherToJSON decodes an ethernet address into a JSON string
func DecodeEtherToJSON(dec *msgpack.Decoder) (json.RawMessage, error) {
	addr, err := DecodeEther(dec)
	if err != nil {
		return nil, err
	}
	return json.Marshal(addr.String())
}

// --------------------------------------------------------------------------
// IPv4
// --------------------------------------------------------------------------

func EncodeIn(enc *msgpack.Encoder, addr netip.Addr) error {
	if !addr.Is4() {
		return fmt.Errorf("%w: %s is not an IPv4 address", ErrInvalidAddr, addr)
	}
	b := addr.As4()
	return enc.EncodeUint32(binary.BigEndian.Uint32(b[:]))
}

func DecodeIn(dec *msgpack.Decoder) (netip.Addr, error) {
	v, err := dec.DecodeUint32()
	if err != nil {
		return netip.Addr{}, err
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b), nil
}

// ParseIn parses the dotted quad text form
func ParseIn(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddr, s)
	}
	return addr, nil
}

func EncodeInFromJSON(enc *msgpack.Encoder, obj json.RawMessage) error {
	s, err := jsonString(obj)
	if err != nil {
		return err
	}
	addr, err := ParseIn(s)
	if err != nil {
		return err
	}
	return EncodeIn(enc, addr)
}

func DecodeInToJSON(dec *msgpack.Decoder) (json.RawMessage, error) {
	addr, err := DecodeIn(dec)
	if err != nil {
		return nil, err
	}
	return json.Marshal(addr.String())
}

// --------------------------------------------------------------------------
// IPv6
// --------------------------------------------------------------------------

func EncodeIn6(enc *msgpack.Encoder, addr netip.Addr) error {
	if !addr.Is6() || addr.Is4In6() {
		return fmt.Errorf("%w: %s is not an IPv6 address", ErrInvalidAddr, addr)
	}
	b := addr.As16()
	return enc.EncodeBytes(b[:])
}

func DecodeIn6(dec *msgpack.Decoder) (netip.Addr, error) {
	b, err := dec.DecodeBytes()
	if err != nil {
		return netip.Addr{}, err
	}
	if len(b) != In6Len {
		return netip.Addr{}, fmt.Errorf("%w: IPv6 address must be %d bytes, got %d", ErrInvalidAddr, In6Len, len(b))
	}
	return netip.AddrFrom16([16]byte(b)), nil
}

// ParseIn6 parses the RFC 4291 text form
func ParseIn6(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is6() || addr.Is4In6() {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddr, s)
	}
	return addr, nil
}

func EncodeIn6FromJSON(enc *msgpack.Encoder, obj json.RawMessage) error {
	s, err := jsonString(obj)
	if err != nil {
		return err
	}
	addr, err := ParseIn6(s)
	if err != nil {
		return err
	}
	return EncodeIn6(enc, addr)
}

func DecodeIn6ToJSON(dec *msgpack.Decoder) (json.RawMessage, error) {
	addr, err := DecodeIn6(dec)
	if err != nil {
		return nil, err
	}
	return json.Marshal(addr.String())
}

// jsonString extracts a JSON string, rejecting every other JSON type
func jsonString(obj json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(obj, &s); err != nil {
		return "", fmt.Errorf("%w: expected a JSON string: %v", ErrInvalidAddr, err)
	}
	return s, nil
}
