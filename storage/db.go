package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cube-rollup/ledgernode/coin"
	"github.com/cube-rollup/ledgernode/registry"
	"github.com/cube-rollup/ledgernode/state"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketRegistryAccounts  = []byte("registry_accounts")
	bucketRegistryContracts = []byte("registry_contracts")
	bucketCoinAccounts      = []byte("coin_accounts")
	bucketCoinContracts     = []byte("coin_contracts")
	bucketStates            = []byte("states")
)

// Registry tree sentinel keys (spec.md §6).
var (
	registryKeyIndex   = []byte{0x00}
	registryKeyCounter = []byte{0x01}
)

// Coin account tree sentinel keys (spec.md §6).
var (
	coinAccountKeyBalance        = []byte{0x00}
	coinAccountKeyGlobalAllocSum = []byte{0x01}
)

// Coin contract tree sentinel keys: 32-byte all-zero and all-one, matching
// coin.ReservedKeyZero / coin.ReservedKeyOne so an account allocation key
// can never collide with them.
var (
	coinContractKeyBalance   = make([]byte, 32)
	coinContractKeyAllocsSum = func() []byte {
		b := make([]byte, 32)
		for i := range b {
			b[i] = 0x01
		}
		return b
	}()
)

// DB owns the bbolt database backing every tree the registry, state, and
// coin managers persist into, generalizing node/store/db.go's flat
// bucket set to per-principal nested buckets.
type DB struct {
	chainDir string
	db       *bolt.DB
	manifest *Manifest
}

// Open opens (creating if absent) the chain's database under datadir.
func Open(datadir, chainIDHex string) (*DB, error) {
	if datadir == "" {
		return nil, fmt.Errorf("datadir required")
	}
	if chainIDHex == "" {
		return nil, fmt.Errorf("chain_id_hex required")
	}

	chainDir := ChainDir(datadir, chainIDHex)
	if err := ensureDir(chainDir); err != nil {
		return nil, err
	}

	path := filepath.Join(chainDir, "ledger.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	d := &DB{chainDir: chainDir, db: bdb}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketRegistryAccounts, bucketRegistryContracts, bucketCoinAccounts, bucketCoinContracts, bucketStates} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	m, err := readManifest(chainDir)
	if err != nil {
		if os.IsNotExist(err) {
			d.manifest = &Manifest{SchemaVersion: SchemaVersionV1, ChainIDHex: chainIDHex}
			return d, nil
		}
		_ = bdb.Close()
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if m.SchemaVersion > SchemaVersionV1 {
		_ = bdb.Close()
		return nil, fmt.Errorf("manifest schema_version %d > supported %d", m.SchemaVersion, SchemaVersionV1)
	}
	d.manifest = m
	return d, nil
}

// Close closes the underlying bbolt database.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Manifest returns the current manifest.
func (d *DB) Manifest() *Manifest {
	if d == nil {
		return nil
	}
	return d.manifest
}

// SetManifest persists m, crash-safely, and updates the in-memory copy.
func (d *DB) SetManifest(m *Manifest) error {
	if d == nil {
		return fmt.Errorf("db: nil")
	}
	if err := writeManifestAtomic(d.chainDir, m); err != nil {
		return err
	}
	d.manifest = m
	return nil
}

// kvTree is a generic nested-bucket key/value tree: top-level bucket ->
// one nested bucket per 32-byte principal key -> arbitrary keys.
type kvTree struct {
	db   *bolt.DB
	top  []byte
	name [32]byte
}

func (t *kvTree) put(key, value []byte) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		top := tx.Bucket(t.top)
		if top == nil {
			return fmt.Errorf("storage: top bucket %s missing", string(t.top))
		}
		sub, err := top.CreateBucketIfNotExists(t.name[:])
		if err != nil {
			return fmt.Errorf("storage: create tree %x: %w", t.name, err)
		}
		return sub.Put(key, value)
	})
}

func (t *kvTree) delete(key []byte) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		top := tx.Bucket(t.top)
		if top == nil {
			return nil
		}
		sub := top.Bucket(t.name[:])
		if sub == nil {
			return nil
		}
		return sub.Delete(key)
	})
}

// registryTree implements registry.Tree.
type registryTree struct{ kvTree }

func (t *registryTree) PutRegistryIndex(index uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], index)
	return t.put(registryKeyIndex, b[:])
}

func (t *registryTree) PutCallCounter(counter uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], counter)
	return t.put(registryKeyCounter, b[:])
}

// OpenRegistryAccountTree implements registry.TreeOpener.
func (d *DB) OpenRegistryAccountTree(key [32]byte) (registry.Tree, error) {
	return &registryTree{kvTree{db: d.db, top: bucketRegistryAccounts, name: key}}, nil
}

// OpenRegistryContractTree implements registry.TreeOpener.
func (d *DB) OpenRegistryContractTree(id [32]byte) (registry.Tree, error) {
	return &registryTree{kvTree{db: d.db, top: bucketRegistryContracts, name: id}}, nil
}

// stateTree implements state.Tree.
type stateTree struct{ kvTree }

func (t *stateTree) Put(key, value []byte) error { return t.kvTree.put(key, value) }
func (t *stateTree) Delete(key []byte) error      { return t.kvTree.delete(key) }

// OpenStateTree implements state.TreeOpener.
func (d *DB) OpenStateTree(contractID [32]byte) (state.Tree, error) {
	return &stateTree{kvTree{db: d.db, top: bucketStates, name: contractID}}, nil
}

// coinAccountTree implements coin.AccountTree.
type coinAccountTree struct{ kvTree }

func (t *coinAccountTree) PutBalance(satoshis uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], satoshis)
	return t.put(coinAccountKeyBalance, b[:])
}

func (t *coinAccountTree) PutGlobalShadowAllocsSum(satiSatoshis [16]byte) error {
	return t.put(coinAccountKeyGlobalAllocSum, satiSatoshis[:])
}

// OpenCoinAccountTree implements coin.TreeOpener.
func (d *DB) OpenCoinAccountTree(key [32]byte) (coin.AccountTree, error) {
	return &coinAccountTree{kvTree{db: d.db, top: bucketCoinAccounts, name: key}}, nil
}

// coinContractTree implements coin.ContractTree.
type coinContractTree struct{ kvTree }

func (t *coinContractTree) PutBalance(satoshis uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], satoshis)
	return t.put(coinContractKeyBalance, b[:])
}

func (t *coinContractTree) PutAllocsSum(satoshis uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], satoshis)
	return t.put(coinContractKeyAllocsSum, b[:])
}

func (t *coinContractTree) PutAlloc(account [32]byte, satiSatoshis [16]byte) error {
	return t.put(account[:], satiSatoshis[:])
}

func (t *coinContractTree) DeleteAlloc(account [32]byte) error {
	return t.delete(account[:])
}

// OpenCoinContractTree implements coin.TreeOpener.
func (d *DB) OpenCoinContractTree(id [32]byte) (coin.ContractTree, error) {
	return &coinContractTree{kvTree{db: d.db, top: bucketCoinContracts, name: id}}, nil
}
