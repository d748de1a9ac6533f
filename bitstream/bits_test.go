package bitstream

import (
	"bytes"
	"testing"
)

func TestWriteReadBits_RoundTrip(t *testing.T) {
	cases := []struct {
		v uint64
		n int
	}{
		{0, 0},
		{1, 1},
		{0, 1},
		{0x5, 3},
		{0xff, 8},
		{0x1234, 16},
		{0xffffffffffffffff, 64},
	}
	w := NewWriter()
	for _, c := range cases {
		w.WriteBits(c.v, c.n)
	}
	r := NewReader(w.Bytes())
	for _, c := range cases {
		got, err := r.ReadBits(c.n)
		if err != nil {
			t.Fatalf("ReadBits(%d): %v", c.n, err)
		}
		if got != c.v {
			t.Fatalf("ReadBits(%d) = %x, want %x", c.n, got, c.v)
		}
	}
}

func TestWriteReadBit(t *testing.T) {
	w := NewWriter()
	w.WriteBit(true)
	w.WriteBit(false)
	w.WriteBit(true)
	r := NewReader(w.Bytes())
	want := []bool{true, false, true}
	for i, exp := range want {
		got, err := r.ReadBit()
		if err != nil {
			t.Fatalf("bit %d: %v", i, err)
		}
		if got != exp {
			t.Fatalf("bit %d = %v, want %v", i, got, exp)
		}
	}
}

func TestWriteReadBytes(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	w := NewWriter()
	w.WriteBit(true) // throw off byte alignment
	w.WriteBytes(payload)
	r := NewReader(w.Bytes())
	if _, err := r.ReadBit(); err != nil {
		t.Fatalf("lead bit: %v", err)
	}
	got, err := r.ReadBytes(len(payload))
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("ReadBytes = %x, want %x", got, payload)
	}
}

func TestReadBits_Underflow(t *testing.T) {
	w := NewWriter()
	w.WriteBits(0x3, 4)
	r := NewReader(w.Bytes())
	if _, err := r.ReadBits(5); err == nil {
		t.Fatalf("expected underflow error")
	}
}

func TestReadBits_InvalidCount(t *testing.T) {
	r := NewReader([]byte{0xff})
	if _, err := r.ReadBits(65); err == nil {
		t.Fatalf("expected invalid length error")
	}
	if _, err := r.ReadBits(-1); err == nil {
		t.Fatalf("expected invalid length error")
	}
}

func TestRemaining(t *testing.T) {
	r := NewReader([]byte{0x00, 0x00})
	if r.Remaining() != 16 {
		t.Fatalf("Remaining = %d, want 16", r.Remaining())
	}
	if _, err := r.ReadBits(3); err != nil {
		t.Fatalf("ReadBits: %v", err)
	}
	if r.Remaining() != 13 {
		t.Fatalf("Remaining = %d, want 13", r.Remaining())
	}
}
