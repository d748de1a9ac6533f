package bitstream

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// fakeRegistry is a minimal in-memory RegistryLookup for codec tests.
type fakeRegistry struct {
	accountRank map[[32]byte]uint32
	accountKey  map[uint32][32]byte
	contractRank map[[32]byte]uint32
	contractKey  map[uint32][32]byte
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		accountRank:  make(map[[32]byte]uint32),
		accountKey:   make(map[uint32][32]byte),
		contractRank: make(map[[32]byte]uint32),
		contractKey:  make(map[uint32][32]byte),
	}
}

func (f *fakeRegistry) registerAccount(rank uint32, key [32]byte) {
	f.accountRank[key] = rank
	f.accountKey[rank] = key
}

func (f *fakeRegistry) registerContract(rank uint32, id [32]byte) {
	f.contractRank[id] = rank
	f.contractKey[rank] = id
}

func (f *fakeRegistry) RankOfAccount(key [32]byte) (uint32, bool) {
	r, ok := f.accountRank[key]
	return r, ok
}
func (f *fakeRegistry) AccountKeyOfRank(rank uint32) ([32]byte, bool) {
	k, ok := f.accountKey[rank]
	return k, ok
}
func (f *fakeRegistry) IsRegisteredAccount(key [32]byte) bool {
	_, ok := f.accountRank[key]
	return ok
}
func (f *fakeRegistry) RankOfContract(id [32]byte) (uint32, bool) {
	r, ok := f.contractRank[id]
	return r, ok
}
func (f *fakeRegistry) ContractIDOfRank(rank uint32) ([32]byte, bool) {
	k, ok := f.contractKey[rank]
	return k, ok
}
func (f *fakeRegistry) IsRegisteredContract(id [32]byte) bool {
	_, ok := f.contractRank[id]
	return ok
}

func onCurveXOnlyKey(t *testing.T) [32]byte {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	var key [32]byte
	copy(key[:], schnorr.SerializePubKey(priv.PubKey()))
	return key
}

// testFlameConfigCodec is a minimal stand-in for registry.FlameConfigCodec
// (which this package cannot import): 2-byte little-endian length prefix
// plus raw bytes, hashed with sha256.
type testFlameConfigCodec struct{}

func (testFlameConfigCodec) Encode(w *Writer, cfg []byte) [32]byte {
	if cfg == nil {
		return sha256.Sum256(nil)
	}
	w.WriteBits(uint64(len(cfg)&0xff), 8)
	w.WriteBits(uint64((len(cfg)>>8)&0xff), 8)
	w.WriteBytes(cfg)
	return sha256.Sum256(cfg)
}

func (testFlameConfigCodec) Decode(r *Reader) ([]byte, [32]byte, error) {
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

func TestPrincipalRef_RegisteredByRank(t *testing.T) {
	reg := newFakeRegistry()
	key := onCurveXOnlyKey(t)
	reg.registerAccount(3, key)

	w := NewWriter()
	w.WritePrincipalRef(KindAccount, key, false, reg)
	r := NewReader(w.Bytes())
	got, err := r.ReadPrincipalRef(KindAccount, false, reg)
	if err != nil {
		t.Fatalf("ReadPrincipalRef: %v", err)
	}
	if got != key {
		t.Fatalf("got %x want %x", got, key)
	}
}

func TestPrincipalRef_UnregisteredRawKey(t *testing.T) {
	reg := newFakeRegistry()
	key := onCurveXOnlyKey(t)

	w := NewWriter()
	w.WritePrincipalRef(KindAccount, key, false, reg)
	r := NewReader(w.Bytes())
	got, err := r.ReadPrincipalRef(KindAccount, false, reg)
	if err != nil {
		t.Fatalf("ReadPrincipalRef: %v", err)
	}
	if got != key {
		t.Fatalf("got %x want %x", got, key)
	}
}

func TestPrincipalRef_RejectsOffCurveRawKey(t *testing.T) {
	reg := newFakeRegistry()
	var key [32]byte
	for i := range key {
		key[i] = 0xff
	}
	w := NewWriter()
	w.WritePrincipalRef(KindAccount, key, false, reg)
	r := NewReader(w.Bytes())
	if _, err := r.ReadPrincipalRef(KindAccount, false, reg); err == nil {
		t.Fatalf("expected off-curve rejection")
	}
}

func TestPrincipalRef_RejectsUnknownRank(t *testing.T) {
	reg := newFakeRegistry()
	w := NewWriter()
	w.WriteShortVal(5) // rank 5, nothing registered
	r := NewReader(w.Bytes())
	if _, err := r.ReadPrincipalRef(KindAccount, false, reg); err == nil {
		t.Fatalf("expected unknown-principal rejection")
	}
}

func TestPrincipalRef_WideRank(t *testing.T) {
	reg := newFakeRegistry()
	key := onCurveXOnlyKey(t)
	reg.registerContract(70000, key)

	w := NewWriter()
	w.WritePrincipalRef(KindContract, key, true, reg)
	r := NewReader(w.Bytes())
	got, err := r.ReadPrincipalRef(KindContract, true, reg)
	if err != nil {
		t.Fatalf("ReadPrincipalRef: %v", err)
	}
	if got != key {
		t.Fatalf("got %x want %x", got, key)
	}
}

func signRootAccount(t *testing.T, priv *btcec.PrivateKey, key [32]byte, bls [48]byte, cfgHash [32]byte) [64]byte {
	t.Helper()
	msg := buildRootAuthMessage(key, bls, cfgHash)
	digest := taggedHash(rootAccountAuthTag, msg)
	sig, err := schnorr.Sign(priv, digest[:])
	if err != nil {
		t.Fatalf("schnorr.Sign: %v", err)
	}
	var out [64]byte
	copy(out[:], sig.Serialize())
	return out
}

func TestRootAccountRef_RoundTripWithoutFlameConfig(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	var key [32]byte
	copy(key[:], schnorr.SerializePubKey(priv.PubKey()))
	var bls [48]byte
	bls[0] = 0x01

	_, noCfgHash, _ := testFlameConfigCodec{}.Decode(nil)
	sig := signRootAccount(t, priv, key, bls, noCfgHash)

	ref := RootAccountRef{AccountKey: key, BLSPubKey: bls, FlameCfg: nil, Sig: sig}
	w := NewWriter()
	w.WriteRootAccountRef(ref, false, testFlameConfigCodec{})
	r := NewReader(w.Bytes())
	got, err := r.ReadRootAccountRef(false, testFlameConfigCodec{})
	if err != nil {
		t.Fatalf("ReadRootAccountRef: %v", err)
	}
	if got.AccountKey != key || got.BLSPubKey != bls || got.Sig != sig {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if got.FlameCfg != nil {
		t.Fatalf("expected nil flame config, got %x", got.FlameCfg)
	}
}

func TestRootAccountRef_RoundTripWithFlameConfig(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	var key [32]byte
	copy(key[:], schnorr.SerializePubKey(priv.PubKey()))
	var bls [48]byte
	bls[10] = 0x07
	cfg := []byte{0x01, 0x02, 0x03, 0x04}

	cfgW := NewWriter()
	cfgHash := testFlameConfigCodec{}.Encode(cfgW, cfg)
	sig := signRootAccount(t, priv, key, bls, cfgHash)

	ref := RootAccountRef{AccountKey: key, BLSPubKey: bls, FlameCfg: cfg, Sig: sig}
	w := NewWriter()
	w.WriteRootAccountRef(ref, false, testFlameConfigCodec{})
	r := NewReader(w.Bytes())
	got, err := r.ReadRootAccountRef(false, testFlameConfigCodec{})
	if err != nil {
		t.Fatalf("ReadRootAccountRef: %v", err)
	}
	if !bytes.Equal(got.FlameCfg, cfg) {
		t.Fatalf("flame cfg mismatch: got %x want %x", got.FlameCfg, cfg)
	}
}

func TestRootAccountRef_RejectsTamperedSignature(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	var key [32]byte
	copy(key[:], schnorr.SerializePubKey(priv.PubKey()))
	var bls [48]byte

	_, noCfgHash, _ := testFlameConfigCodec{}.Decode(nil)
	sig := signRootAccount(t, priv, key, bls, noCfgHash)
	sig[0] ^= 0xff // tamper

	ref := RootAccountRef{AccountKey: key, BLSPubKey: bls, FlameCfg: nil, Sig: sig}
	w := NewWriter()
	w.WriteRootAccountRef(ref, false, testFlameConfigCodec{})
	r := NewReader(w.Bytes())
	if _, err := r.ReadRootAccountRef(false, testFlameConfigCodec{}); err == nil {
		t.Fatalf("expected signature verification failure")
	}
}

func TestRootAccountRef_RejectsRankedEncoding(t *testing.T) {
	w := NewWriter()
	w.WriteShortVal(1) // nonzero rank, invalid for a root account ref
	r := NewReader(w.Bytes())
	if _, err := r.ReadRootAccountRef(false, testFlameConfigCodec{}); err == nil {
		t.Fatalf("expected rejection of ranked root account reference")
	}
}
