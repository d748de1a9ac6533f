package bitstream

import "github.com/cube-rollup/ledgernode/ledgererr"

const maxVarbytesLen = 4095
const maxFixedBytesLen = 256

// WriteFixedBytes writes exactly n bytes (n*8 bits); n is not itself
// encoded here — WriteElement carries n-1 in an 8-bit field after the
// element tag (spec §4.1).
func (w *Writer) WriteFixedBytes(b []byte) error {
	if len(b) < 1 || len(b) > maxFixedBytesLen {
		return ledgererr.New(ledgererr.CodeInvalidLength, "bitstream: Bytes(n) length out of range")
	}
	w.WriteBytes(b)
	return nil
}

// ReadFixedBytes reads n bytes previously written by WriteFixedBytes.
func (r *Reader) ReadFixedBytes(n int) ([]byte, error) {
	if n < 1 || n > maxFixedBytesLen {
		return nil, ledgererr.New(ledgererr.CodeInvalidLength, "bitstream: Bytes(n) length out of range")
	}
	return r.ReadBytes(n)
}

// writeLen12LE writes a 12-bit length as two little-endian halves: the low
// byte first, then the high nibble — the sub-byte extension of the
// little-endian convention the spec calls for ("12-bit little-endian
// length").
func (w *Writer) writeLen12LE(l int) {
	w.WriteBits(uint64(l&0xff), 8)
	w.WriteBits(uint64((l>>8)&0xf), 4)
}

func (r *Reader) readLen12LE() (int, error) {
	lo, err := r.ReadBits(8)
	if err != nil {
		return 0, err
	}
	hi, err := r.ReadBits(4)
	if err != nil {
		return 0, err
	}
	return int(lo) | int(hi)<<8, nil
}

// WriteVarbytes writes a 12-bit length L followed by L*8 data bits. L=0
// means an empty payload and no data bits (spec §4.1).
func (w *Writer) WriteVarbytes(b []byte) error {
	if len(b) > maxVarbytesLen {
		return ledgererr.New(ledgererr.CodeInvalidLength, "bitstream: Varbytes length exceeds 4095")
	}
	w.writeLen12LE(len(b))
	if len(b) > 0 {
		w.WriteBytes(b)
	}
	return nil
}

// ReadVarbytes reads a Varbytes value written by WriteVarbytes.
func (r *Reader) ReadVarbytes() ([]byte, error) {
	l, err := r.readLen12LE()
	if err != nil {
		return nil, err
	}
	if l > maxVarbytesLen {
		return nil, ledgererr.New(ledgererr.CodeInvalidLength, "bitstream: Varbytes length exceeds 4095")
	}
	if l == 0 {
		return []byte{}, nil
	}
	return r.ReadBytes(l)
}
