package bitstream

import "testing"

func TestShortVal_RoundTrip(t *testing.T) {
	vals := []uint32{0, 1, 0xff, 0x100, 0xffff, 0x10000, 0xffffff, 0x1000000, 0xffffffff}
	w := NewWriter()
	for _, v := range vals {
		w.WriteShortVal(ShortVal(v))
	}
	r := NewReader(w.Bytes())
	for _, v := range vals {
		got, err := r.ReadShortVal()
		if err != nil {
			t.Fatalf("ReadShortVal(%d): %v", v, err)
		}
		if uint32(got) != v {
			t.Fatalf("ReadShortVal = %d, want %d", got, v)
		}
	}
}

func TestShortVal_CanonicalWidth(t *testing.T) {
	cases := []struct {
		v     uint32
		width int
	}{
		{0, 1},
		{0xff, 1},
		{0x100, 2},
		{0xffff, 2},
		{0x10000, 3},
		{0xffffff, 3},
		{0x1000000, 4},
	}
	for _, c := range cases {
		if got := shortValWidth(c.v); got != c.width {
			t.Fatalf("shortValWidth(%d) = %d, want %d", c.v, got, c.width)
		}
	}
}

func TestLongVal_RoundTrip(t *testing.T) {
	vals := []uint64{0, 1, 0xff, 0x100, 0xffffffff, 0x100000000, 0xffffffffffffffff}
	w := NewWriter()
	for _, v := range vals {
		w.WriteLongVal(LongVal(v))
	}
	r := NewReader(w.Bytes())
	for _, v := range vals {
		got, err := r.ReadLongVal()
		if err != nil {
			t.Fatalf("ReadLongVal(%d): %v", v, err)
		}
		if uint64(got) != v {
			t.Fatalf("ReadLongVal = %d, want %d", got, v)
		}
	}
}

func TestMaybeCommonShort(t *testing.T) {
	table := CommonTable[ShortVal]{1, 2, 3}
	w := NewWriter()
	w.WriteMaybeCommonShort(2, table)  // common
	w.WriteMaybeCommonShort(99, table) // not common
	r := NewReader(w.Bytes())
	got, err := r.ReadMaybeCommonShort(table)
	if err != nil || got != 2 {
		t.Fatalf("first = %v, %v, want 2, nil", got, err)
	}
	got, err = r.ReadMaybeCommonShort(table)
	if err != nil || got != 99 {
		t.Fatalf("second = %v, %v, want 99, nil", got, err)
	}
}

func TestMaybeCommonShort_IndexOutOfRange(t *testing.T) {
	w := NewWriter()
	w.WriteBit(true)
	w.WriteBits(7, 4) // index 7, but table only has 2 entries
	table := CommonTable[ShortVal]{1, 2}
	r := NewReader(w.Bytes())
	if _, err := r.ReadMaybeCommonShort(table); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestMaybeCommonLong(t *testing.T) {
	table := CommonTable[LongVal]{10, 20}
	w := NewWriter()
	w.WriteMaybeCommonLong(20, table)
	w.WriteMaybeCommonLong(12345, table)
	r := NewReader(w.Bytes())
	got, err := r.ReadMaybeCommonLong(table)
	if err != nil || got != 20 {
		t.Fatalf("first = %v, %v, want 20, nil", got, err)
	}
	got, err = r.ReadMaybeCommonLong(table)
	if err != nil || got != 12345 {
		t.Fatalf("second = %v, %v, want 12345, nil", got, err)
	}
}

func TestAtomicVal_RoundTrip(t *testing.T) {
	const upper = 200
	w := NewWriter()
	for v := uint64(0); v < upper; v += 37 {
		w.WriteAtomicVal(v, upper)
	}
	r := NewReader(w.Bytes())
	for v := uint64(0); v < upper; v += 37 {
		got, err := r.ReadAtomicVal(upper)
		if err != nil {
			t.Fatalf("ReadAtomicVal(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("ReadAtomicVal = %d, want %d", got, v)
		}
	}
}

func TestAtomicVal_RejectsOutOfRangeOnDecode(t *testing.T) {
	// Encode 3 against an upper bound of 4 (2 bits), then decode against
	// a narrower live upper bound of 3 (still 2 bits): the recovered
	// value 3 is not below 3 and must be rejected.
	w := NewWriter()
	w.WriteAtomicVal(3, 4) // 2 bits, value 3
	r := NewReader(w.Bytes())
	if _, err := r.ReadAtomicVal(3); err == nil {
		t.Fatalf("expected atomic range violation decoding 3 against upper bound 3")
	}
}

func TestBitsForUpperBound(t *testing.T) {
	cases := []struct {
		upper uint64
		bits  int
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
		{256, 8},
	}
	for _, c := range cases {
		if got := bitsForUpperBound(c.upper); got != c.bits {
			t.Fatalf("bitsForUpperBound(%d) = %d, want %d", c.upper, got, c.bits)
		}
	}
}
