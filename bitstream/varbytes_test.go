package bitstream

import (
	"bytes"
	"testing"
)

func TestFixedBytes_RoundTrip(t *testing.T) {
	payload := make([]byte, 32)
	for i := range payload {
		payload[i] = byte(i)
	}
	w := NewWriter()
	if err := w.WriteFixedBytes(payload); err != nil {
		t.Fatalf("WriteFixedBytes: %v", err)
	}
	r := NewReader(w.Bytes())
	got, err := r.ReadFixedBytes(len(payload))
	if err != nil {
		t.Fatalf("ReadFixedBytes: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("mismatch: got %x want %x", got, payload)
	}
}

func TestFixedBytes_RejectsOutOfRangeLength(t *testing.T) {
	w := NewWriter()
	if err := w.WriteFixedBytes(nil); err == nil {
		t.Fatalf("expected error for zero-length")
	}
	if err := w.WriteFixedBytes(make([]byte, maxFixedBytesLen+1)); err == nil {
		t.Fatalf("expected error for over-length")
	}
	r := NewReader([]byte{0})
	if _, err := r.ReadFixedBytes(0); err == nil {
		t.Fatalf("expected error for zero-length read")
	}
	if _, err := r.ReadFixedBytes(maxFixedBytesLen + 1); err == nil {
		t.Fatalf("expected error for over-length read")
	}
}

func TestVarbytes_RoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01},
		bytes.Repeat([]byte{0xab}, 255),
		bytes.Repeat([]byte{0xcd}, 4095),
	}
	w := NewWriter()
	for _, c := range cases {
		if err := w.WriteVarbytes(c); err != nil {
			t.Fatalf("WriteVarbytes(len=%d): %v", len(c), err)
		}
	}
	r := NewReader(w.Bytes())
	for _, c := range cases {
		got, err := r.ReadVarbytes()
		if err != nil {
			t.Fatalf("ReadVarbytes: %v", err)
		}
		if !bytes.Equal(got, c) {
			t.Fatalf("mismatch len=%d: got %x want %x", len(c), got, c)
		}
	}
}

func TestVarbytes_RejectsOverLength(t *testing.T) {
	w := NewWriter()
	if err := w.WriteVarbytes(make([]byte, maxVarbytesLen+1)); err == nil {
		t.Fatalf("expected error for over-length varbytes")
	}
}

func TestLen12LE_Encoding(t *testing.T) {
	// Length 0x1fe (510): low byte 0xfe, high nibble 0x1.
	w := NewWriter()
	w.writeLen12LE(0x1fe)
	b := w.Bytes()
	if b[0] != 0xfe {
		t.Fatalf("low byte = %#x, want 0xfe", b[0])
	}
	if b[1]>>4 != 0x1 {
		t.Fatalf("high nibble = %#x, want 0x1", b[1]>>4)
	}
	r := NewReader(b)
	got, err := r.readLen12LE()
	if err != nil {
		t.Fatalf("readLen12LE: %v", err)
	}
	if got != 0x1fe {
		t.Fatalf("readLen12LE = %#x, want 0x1fe", got)
	}
}
