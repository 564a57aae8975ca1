package medium

import (
	"bytes"
	"testing"
)

func TestUint24RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 255, 256, 65535, 65536, 0xABCDEF, Max}

	for _, v := range values {
		var buf [Len]byte
		PutUint24(buf[:], v)
		got := Uint24(buf[:])
		if got != v {
			t.Errorf("round trip of %d: got %d", v, got)
		}
	}
}

func TestUint24ByteOrder(t *testing.T) {
	var buf [Len]byte
	PutUint24(buf[:], 0x123456)

	want := []byte{0x12, 0x34, 0x56}
	if !bytes.Equal(buf[:], want) {
		t.Errorf("encoded bytes: got %x, want %x", buf, want)
	}

	if got := Uint24([]byte{0xFF, 0x00, 0x01}); got != 0xFF0001 {
		t.Errorf("decoded value: got %x, want ff0001", got)
	}
}

func TestPutUint24Truncates(t *testing.T) {
	var buf [Len]byte
	PutUint24(buf[:], Max+2)

	if got := Uint24(buf[:]); got != 1 {
		t.Errorf("truncated value: got %d, want 1", got)
	}
}

func TestAppendUint24(t *testing.T) {
	b := []byte{0xAA}
	b = AppendUint24(b, 0x010203)

	want := []byte{0xAA, 0x01, 0x02, 0x03}
	if !bytes.Equal(b, want) {
		t.Errorf("appended bytes: got %x, want %x", b, want)
	}
}
