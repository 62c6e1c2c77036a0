package kv

import (
	"testing"
)

func TestValueRoundTrip(t *testing.T) {
	tests := []struct {
		typ  ValueType
		text string
		size int
	}{
		{TypeRaw, "plain text", 10},
		{TypeEther, "00:11:22:33:44:55", 8},
		{TypeIn, "192.168.1.10", 5},
		{TypeIn6, "2001:db8::1", 18},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			data, err := encodeValue(tt.typ, tt.text)
			if err != nil {
				t.Fatalf("encodeValue failed: %v", err)
			}
			if len(data) != tt.size {
				t.Errorf("Expected %d bytes, got %d", tt.size, len(data))
			}
			text, err := decodeValue(tt.typ, data)
			if err != nil {
				t.Fatalf("decodeValue failed: %v", err)
			}
			if text != tt.text {
				t.Errorf("Expected %q, got %q", tt.text, text)
			}
		})
	}
}

func TestParseValueType(t *testing.T) {
	for _, s := range []string{"raw", "ether", "in", "in6"} {
		if _, err := parseValueType(s); err != nil {
			t.Errorf("Expected %s to be valid, got %v", s, err)
		}
	}
	if _, err := parseValueType("ipx"); err == nil {
		t.Error("Expected error for unknown type")
	}
	if _, err := encodeValue(TypeIn, "not an address"); err == nil {
		t.Error("Expected error for an invalid address")
	}
}
