// Package entry implements the call entry decoder described in
// SPEC_FULL.md §4.6: it decodes one call entry from the bitstream using
// the codec (package bitstream) and the registry manager to resolve
// account/contract references.
package entry

import (
	"github.com/cube-rollup/ledgernode/bitstream"
	"github.com/cube-rollup/ledgernode/ledgererr"
)

// ContractInfo is the read-only surface the decoder needs from wherever
// contract method signatures are kept (out of scope: the opcode/contract
// table, spec.md §1). Consulting the target method's own declared
// argument list — not contract.methods_len() — is the fix for the
// decoder bug spec.md §9 calls out.
type ContractInfo interface {
	MethodsLen(contractID [32]byte) (uint32, bool)
	MethodArgKinds(contractID [32]byte, methodIndex uint32) ([]bitstream.ElementKind, bool)
}

// Envelope carries the fields the decoder needs that are supplied from
// outside the stream itself (spec.md §4.6).
type Envelope struct {
	BaseOpsPrice uint32
	WideAccount  bool // selects ShortVal vs LongVal for the account rank field
	WideContract bool // selects ShortVal vs LongVal for the contract rank field
}

// Decoded is one fully decoded call entry (spec.md §3).
type Decoded struct {
	Caller           [32]byte // resolved from the RootAccountRef
	RootRef          bitstream.RootAccountRef
	Contract         [32]byte
	MethodIndex      uint32
	Args             []bitstream.Element
	OpsBudget        *uint32
	OpsPriceOverhead *uint32
	BaseOpsPrice     uint32
}

// Decode reads one call entry from r, in the field order of spec.md §4.6.
func Decode(r *bitstream.Reader, env Envelope, reg bitstream.RegistryLookup, contracts ContractInfo, flameCfg bitstream.FlameConfigCodec, tables bitstream.CommonTables) (Decoded, error) {
	rootRef, err := r.ReadRootAccountRef(env.WideAccount, flameCfg)
	if err != nil {
		return Decoded{}, err
	}

	contractID, err := r.ReadPrincipalRef(bitstream.KindContract, env.WideContract, reg)
	if err != nil {
		return Decoded{}, err
	}

	methodsLen, ok := contracts.MethodsLen(contractID)
	if !ok {
		return Decoded{}, ledgererr.New(ledgererr.CodeUnknownPrincipal, "entry: contract has no known method table")
	}
	methodIdx64, err := r.ReadAtomicVal(uint64(methodsLen))
	if err != nil {
		return Decoded{}, err
	}
	methodIndex := uint32(methodIdx64)

	argKinds, ok := contracts.MethodArgKinds(contractID, methodIndex)
	if !ok {
		return Decoded{}, ledgererr.New(ledgererr.CodeUnknownPrincipal, "entry: unknown method signature")
	}

	args := make([]bitstream.Element, 0, len(argKinds))
	for range argKinds {
		el, err := r.ReadElement(tables, reg, env.WideAccount || env.WideContract)
		if err != nil {
			return Decoded{}, err
		}
		args = append(args, el)
	}

	opsBudgetPresent, err := r.ReadBit()
	if err != nil {
		return Decoded{}, err
	}
	var opsBudget *uint32
	if opsBudgetPresent {
		v, err := r.ReadShortVal()
		if err != nil {
			return Decoded{}, err
		}
		u := uint32(v)
		opsBudget = &u
	}

	overheadPresent, err := r.ReadBit()
	if err != nil {
		return Decoded{}, err
	}
	var overhead *uint32
	if overheadPresent {
		v, err := r.ReadShortVal()
		if err != nil {
			return Decoded{}, err
		}
		u := uint32(v)
		overhead = &u
	}

	return Decoded{
		Caller:           rootRef.AccountKey,
		RootRef:          rootRef,
		Contract:         contractID,
		MethodIndex:      methodIndex,
		Args:             args,
		OpsBudget:        opsBudget,
		OpsPriceOverhead: overhead,
		BaseOpsPrice:     env.BaseOpsPrice,
	}, nil
}
