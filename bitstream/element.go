package bitstream

import "github.com/cube-rollup/ledgernode/ledgererr"

// elementTag is the 4-bit self-describing discriminator prefixing every
// CalldataElement in the stream (spec.md §4.1: "Each CalldataElement
// variant has a fixed encoding").
type elementTag uint8

const (
	tagU8 elementTag = iota
	tagU16
	tagU32
	tagU64
	tagBool
	tagAccount
	tagContract
	tagBytes
	tagVarbytes
	tagPayable
)

// ElementKind identifies which CalldataElement variant a value holds.
type ElementKind uint8

const (
	KindU8 ElementKind = iota
	KindU16
	KindU32
	KindU64
	KindBool
	KindAccountRef
	KindContractRef
	KindBytes
	KindVarbytes
	KindPayable
)

// Element is a decoded CalldataElement. Exactly one field is meaningful,
// selected by Kind; Go has no tagged union, so this mirrors the variant
// set with a discriminant the way the teacher's consensus package tags
// covenant payload bytes by CovenantType.
type Element struct {
	Kind ElementKind

	U8Val  uint8
	U16Val uint16
	U32Val uint32
	U64Val uint64
	Bool   bool

	PrincipalKey [32]byte // Account / Contract reference

	Bytes    []byte // fixed-length Bytes(n)
	Varbytes []byte

	Payable uint32
}

// CommonTables bundles the MaybeCommon lookup tables used for U32, U64,
// and Payable elements. A nil table behaves as "no common values".
type CommonTables struct {
	U32     CommonTable[ShortVal]
	U64     CommonTable[LongVal]
	Payable CommonTable[ShortVal]
}

// WriteElement encodes e according to its Kind. For KindBytes the length
// n is taken from len(e.Bytes) and written as n-1 in an 8-bit field after
// the element tag, followed by the n bytes.
func (w *Writer) WriteElement(e Element, tables CommonTables, kind PrincipalKind, reg RegistryLookup, wideRank bool) error {
	switch e.Kind {
	case KindU8:
		w.WriteBits(uint64(tagU8), 4)
		w.WriteBits(uint64(e.U8Val), 8)
	case KindU16:
		w.WriteBits(uint64(tagU16), 4)
		w.WriteBits(uint64(e.U16Val), 16)
	case KindU32:
		w.WriteBits(uint64(tagU32), 4)
		w.WriteMaybeCommonShort(ShortVal(e.U32Val), tables.U32)
	case KindU64:
		w.WriteBits(uint64(tagU64), 4)
		w.WriteMaybeCommonLong(LongVal(e.U64Val), tables.U64)
	case KindBool:
		w.WriteBits(uint64(tagBool), 4)
		w.WriteBit(e.Bool)
	case KindAccountRef:
		w.WriteBits(uint64(tagAccount), 4)
		w.WritePrincipalRef(KindAccount, e.PrincipalKey, wideRank, reg)
	case KindContractRef:
		w.WriteBits(uint64(tagContract), 4)
		w.WritePrincipalRef(KindContract, e.PrincipalKey, wideRank, reg)
	case KindBytes:
		if len(e.Bytes) < 1 || len(e.Bytes) > maxFixedBytesLen {
			return ledgererr.New(ledgererr.CodeInvalidLength, "bitstream: Bytes(n) length out of range")
		}
		w.WriteBits(uint64(tagBytes), 4)
		w.WriteBits(uint64(len(e.Bytes)-1), 8)
		w.WriteBytes(e.Bytes)
	case KindVarbytes:
		w.WriteBits(uint64(tagVarbytes), 4)
		if err := w.WriteVarbytes(e.Varbytes); err != nil {
			return err
		}
	case KindPayable:
		w.WriteBits(uint64(tagPayable), 4)
		w.WriteMaybeCommonShort(ShortVal(e.Payable), tables.Payable)
	default:
		return ledgererr.New(ledgererr.CodeInvalidLength, "bitstream: unknown element kind")
	}
	return nil
}

// ReadElement decodes one CalldataElement.
func (r *Reader) ReadElement(tables CommonTables, reg RegistryLookup, wideRank bool) (Element, error) {
	tv, err := r.ReadBits(4)
	if err != nil {
		return Element{}, err
	}
	switch elementTag(tv) {
	case tagU8:
		v, err := r.ReadBits(8)
		if err != nil {
			return Element{}, err
		}
		return Element{Kind: KindU8, U8Val: uint8(v)}, nil
	case tagU16:
		v, err := r.ReadBits(16)
		if err != nil {
			return Element{}, err
		}
		return Element{Kind: KindU16, U16Val: uint16(v)}, nil
	case tagU32:
		v, err := r.ReadMaybeCommonShort(tables.U32)
		if err != nil {
			return Element{}, err
		}
		return Element{Kind: KindU32, U32Val: uint32(v)}, nil
	case tagU64:
		v, err := r.ReadMaybeCommonLong(tables.U64)
		if err != nil {
			return Element{}, err
		}
		return Element{Kind: KindU64, U64Val: uint64(v)}, nil
	case tagBool:
		v, err := r.ReadBit()
		if err != nil {
			return Element{}, err
		}
		return Element{Kind: KindBool, Bool: v}, nil
	case tagAccount:
		key, err := r.ReadPrincipalRef(KindAccount, wideRank, reg)
		if err != nil {
			return Element{}, err
		}
		return Element{Kind: KindAccountRef, PrincipalKey: key}, nil
	case tagContract:
		key, err := r.ReadPrincipalRef(KindContract, wideRank, reg)
		if err != nil {
			return Element{}, err
		}
		return Element{Kind: KindContractRef, PrincipalKey: key}, nil
	case tagBytes:
		nMinus1, err := r.ReadBits(8)
		if err != nil {
			return Element{}, err
		}
		b, err := r.ReadFixedBytes(int(nMinus1) + 1)
		if err != nil {
			return Element{}, err
		}
		return Element{Kind: KindBytes, Bytes: b}, nil
	case tagVarbytes:
		b, err := r.ReadVarbytes()
		if err != nil {
			return Element{}, err
		}
		return Element{Kind: KindVarbytes, Varbytes: b}, nil
	case tagPayable:
		v, err := r.ReadMaybeCommonShort(tables.Payable)
		if err != nil {
			return Element{}, err
		}
		return Element{Kind: KindPayable, Payable: uint32(v)}, nil
	default:
		return Element{}, ledgererr.New(ledgererr.CodeInvalidLength, "bitstream: unknown element tag")
	}
}
