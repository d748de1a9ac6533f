package bitstream

import (
	"math/bits"

	"github.com/cube-rollup/ledgernode/ledgererr"
)

// ShortVal packs a uint32 using a 2-bit width-class prefix (widths 1..4
// bytes) followed by that many bytes, big-endian within the value. The
// encoder always selects the narrowest width that can hold the value, so
// the encoding is canonical (minimal) and self-delimiting.
type ShortVal uint32

func shortValWidth(v uint32) int {
	switch {
	case v <= 0xff:
		return 1
	case v <= 0xffff:
		return 2
	case v <= 0xffffff:
		return 3
	default:
		return 4
	}
}

// WriteShortVal writes v as a 2-bit width prefix plus width*8 value bits.
func (w *Writer) WriteShortVal(v ShortVal) {
	width := shortValWidth(uint32(v))
	w.WriteBits(uint64(width-1), 2)
	w.WriteBits(uint64(v), width*8)
}

// ReadShortVal reads a ShortVal previously written by WriteShortVal.
func (r *Reader) ReadShortVal() (ShortVal, error) {
	prefix, err := r.ReadBits(2)
	if err != nil {
		return 0, err
	}
	width := int(prefix) + 1
	v, err := r.ReadBits(width * 8)
	if err != nil {
		return 0, err
	}
	return ShortVal(v), nil
}

// LongVal packs a uint64 using a 3-bit width-class prefix (widths 1..8
// bytes) followed by that many bytes, big-endian within the value.
type LongVal uint64

func longValWidth(v uint64) int {
	if v == 0 {
		return 1
	}
	// bits.Len64 gives the position of the highest set bit; round up to bytes.
	n := (bits.Len64(v) + 7) / 8
	if n < 1 {
		n = 1
	}
	return n
}

// WriteLongVal writes v as a 3-bit width prefix plus width*8 value bits.
func (w *Writer) WriteLongVal(v LongVal) {
	width := longValWidth(uint64(v))
	w.WriteBits(uint64(width-1), 3)
	w.WriteBits(uint64(v), width*8)
}

// ReadLongVal reads a LongVal previously written by WriteLongVal.
func (r *Reader) ReadLongVal() (LongVal, error) {
	prefix, err := r.ReadBits(3)
	if err != nil {
		return 0, err
	}
	width := int(prefix) + 1
	v, err := r.ReadBits(width * 8)
	if err != nil {
		return 0, err
	}
	return LongVal(v), nil
}

// CommonTable is a small, caller-supplied table of frequently occurring
// values for a MaybeCommon field. Whether a value is common is carried by
// a separate flag bit, so index 0 is an ordinary entry; only the first 15
// entries are used, each addressed with a 4-bit index.
type CommonTable[T comparable] []T

const maxCommonEntries = 15

// indexOf returns the table index of v, or (0, false) if absent.
func (t CommonTable[T]) indexOf(v T) (int, bool) {
	for i, c := range t {
		if i >= maxCommonEntries {
			break
		}
		if c == v {
			return i, true
		}
	}
	return 0, false
}

// WriteMaybeCommonShort writes a one-bit discriminator plus either a 4-bit
// table index (common case) or a full ShortVal.
func (w *Writer) WriteMaybeCommonShort(v ShortVal, table CommonTable[ShortVal]) {
	if idx, ok := table.indexOf(v); ok {
		w.WriteBit(true)
		w.WriteBits(uint64(idx), 4)
		return
	}
	w.WriteBit(false)
	w.WriteShortVal(v)
}

// ReadMaybeCommonShort is the reader counterpart of WriteMaybeCommonShort.
func (r *Reader) ReadMaybeCommonShort(table CommonTable[ShortVal]) (ShortVal, error) {
	common, err := r.ReadBit()
	if err != nil {
		return 0, err
	}
	if common {
		idx, err := r.ReadBits(4)
		if err != nil {
			return 0, err
		}
		if int(idx) >= len(table) {
			return 0, ledgererr.New(ledgererr.CodeAtomicRangeViolation, "bitstream: common-table index out of range")
		}
		return table[idx], nil
	}
	return r.ReadShortVal()
}

// WriteMaybeCommonLong is the LongVal analogue of WriteMaybeCommonShort.
func (w *Writer) WriteMaybeCommonLong(v LongVal, table CommonTable[LongVal]) {
	if idx, ok := table.indexOf(v); ok {
		w.WriteBit(true)
		w.WriteBits(uint64(idx), 4)
		return
	}
	w.WriteBit(false)
	w.WriteLongVal(v)
}

// ReadMaybeCommonLong is the reader counterpart of WriteMaybeCommonLong.
func (r *Reader) ReadMaybeCommonLong(table CommonTable[LongVal]) (LongVal, error) {
	common, err := r.ReadBit()
	if err != nil {
		return 0, err
	}
	if common {
		idx, err := r.ReadBits(4)
		if err != nil {
			return 0, err
		}
		if int(idx) >= len(table) {
			return 0, ledgererr.New(ledgererr.CodeAtomicRangeViolation, "bitstream: common-table index out of range")
		}
		return table[idx], nil
	}
	return r.ReadLongVal()
}

// bitsForUpperBound returns ceil(log2(upperBound)) for upperBound > 0.
func bitsForUpperBound(upperBound uint64) int {
	if upperBound <= 1 {
		return 0
	}
	return bits.Len64(upperBound - 1)
}

// WriteAtomicVal encodes value in [0, upperBound) using exactly
// ceil(log2(upperBound)) bits. The caller must ensure value < upperBound.
func (w *Writer) WriteAtomicVal(value uint64, upperBound uint64) {
	n := bitsForUpperBound(upperBound)
	w.WriteBits(value, n)
}

// ReadAtomicVal decodes a value encoded by WriteAtomicVal against the
// upperBound live at decode time, failing if the recovered value is not
// strictly less than it (spec §4.1: "fails on decode if the recovered
// value ≥ the live upper bound supplied at decode time").
func (r *Reader) ReadAtomicVal(upperBound uint64) (uint64, error) {
	n := bitsForUpperBound(upperBound)
	v, err := r.ReadBits(n)
	if err != nil {
		return 0, err
	}
	if v >= upperBound {
		return 0, ledgererr.New(ledgererr.CodeAtomicRangeViolation, "bitstream: atomic value out of range")
	}
	return v, nil
}
