package registry

import (
	"crypto/sha256"

	"github.com/cube-rollup/ledgernode/bitstream"
)

// FlameConfig is an opaque, tier-tagged payout configuration blob attached
// to a root account reference. The flame manager itself (tier selection,
// payout algorithms) is out of scope (SPEC_FULL.md §1); this package only
// carries the bytes far enough to compute the hash the root-account
// signature authenticates over.
//
// SPEC_FULL.md §4.2 resolves the source's two independently-defined
// FlameConfig length-prefix conventions (one tier used a 1-byte prefix,
// the rest a 2-byte prefix) in favor of a single 2-byte little-endian
// length prefix, used uniformly by the bitstream encoding below, so that
// the largest tier's payload is addressable without a tier-dependent
// branch. Flame configs are not persisted: the registry trees hold only
// the registry index and call counter.
type flameConfigCodec struct{}

// FlameConfigCodec is the canonical bitstream.FlameConfigCodec
// implementation for this repository.
var FlameConfigCodec bitstream.FlameConfigCodec = flameConfigCodec{}

func (flameConfigCodec) Encode(w *bitstream.Writer, cfg []byte) [32]byte {
	if cfg == nil {
		return sha256.Sum256(nil)
	}
	// 2-byte little-endian length prefix, uniformly across all tiers.
	w.WriteBits(uint64(len(cfg)&0xff), 8)
	w.WriteBits(uint64((len(cfg)>>8)&0xff), 8)
	w.WriteBytes(cfg)
	return sha256.Sum256(cfg)
}

func (flameConfigCodec) Decode(r *bitstream.Reader) ([]byte, [32]byte, error) {
	if r == nil {
		return nil, sha256.Sum256(nil), nil
	}
	lo, err := r.ReadBits(8)
	if err != nil {
		return nil, [32]byte{}, err
	}
	hi, err := r.ReadBits(8)
	if err != nil {
		return nil, [32]byte{}, err
	}
	l := int(lo) | int(hi)<<8
	if l == 0 {
		return nil, sha256.Sum256(nil), nil
	}
	cfg, err := r.ReadBytes(l)
	if err != nil {
		return nil, [32]byte{}, err
	}
	return cfg, sha256.Sum256(cfg), nil
}
