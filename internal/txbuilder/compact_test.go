package txbuilder

import (
	"bytes"
	"testing"
)

func TestCompactU16_RoundTrip(t *testing.T) {
	cases := []struct {
		value int
		bytes int
	}{
		{0, 1},
		{1, 1},
		{127, 1},
		{128, 2},
		{255, 2},
		{16383, 2},
		{16384, 3},
		{65535, 3},
	}

	for _, tc := range cases {
		encoded := encodeCompactU16(nil, tc.value)
		if len(encoded) != tc.bytes {
			t.Errorf("value %d: expected %d bytes, got %d", tc.value, tc.bytes, len(encoded))
		}

		decoded, n, err := decodeCompactU16(encoded)
		if err != nil {
			t.Fatalf("value %d: decode: %v", tc.value, err)
		}
		if decoded != tc.value {
			t.Errorf("round trip: expected %d, got %d", tc.value, decoded)
		}
		if n != len(encoded) {
			t.Errorf("value %d: expected %d bytes consumed, got %d", tc.value, len(encoded), n)
		}
	}
}

func TestCompactU16_TrailingData(t *testing.T) {
	data := append(encodeCompactU16(nil, 300), 0xAA, 0xBB)

	value, n, err := decodeCompactU16(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if value != 300 {
		t.Errorf("expected 300, got %d", value)
	}
	if !bytes.Equal(data[n:], []byte{0xAA, 0xBB}) {
		t.Errorf("unexpected remainder: %v", data[n:])
	}
}

func TestCompactU16_Truncated(t *testing.T) {
	if _, _, err := decodeCompactU16(nil); err == nil {
		t.Error("expected error for empty input")
	}

	if _, _, err := decodeCompactU16([]byte{0x80}); err == nil {
		t.Error("expected error for truncated continuation")
	}
}
