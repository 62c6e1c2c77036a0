package kv

import (
	"fmt"

	"github.com/ValentinKolb/hed/lib/inet"
	"github.com/spf13/viper"
)

// ValueType selects how values are converted between the command line and
// the repository
type ValueType string

const (
	TypeRaw   ValueType = "raw"
	TypeEther ValueType = ValueType(inet.KindEther)
	TypeIn    ValueType = ValueType(inet.KindIn)
	TypeIn6   ValueType = ValueType(inet.KindIn6)
)

func parseValueType(s string) (ValueType, error) {
	switch t := ValueType(s); t {
	case TypeRaw, TypeEther, TypeIn, TypeIn6:
		return t, nil
	default:
		return "", fmt.Errorf("invalid value type %q (expected one of raw, ether, in, in6)", s)
	}
}

// encodeValue converts a command line value to its stored form
func encodeValue(t ValueType, text string) ([]byte, error) {
	if t == TypeRaw {
		return []byte(text), nil
	}
	return inet.Marshal(inet.Kind(t), text)
}

// decodeValue converts a stored value to its printed form
func decodeValue(t ValueType, data []byte) (string, error) {
	if t == TypeRaw {
		return string(data), nil
	}
	return inet.Unmarshal(inet.Kind(t), data)
}

// valueType returns the configured value type
func valueType() ValueType {
	t, _ := parseValueType(viper.GetString("type"))
	return t
}
