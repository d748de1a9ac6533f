// Package state implements the per-contract sparse key/value store
// described in SPEC_FULL.md §4.3: insert/update/remove semantics over a
// permanent in-memory store plus persistent tree, mediated by a Delta of
// new-or-updated and removed entries.
package state

import (
	"sync"

	"github.com/cube-rollup/ledgernode/deltakind"
	"github.com/cube-rollup/ledgernode/ledgererr"
)

// RegistrationChecker reports whether a contract is registered (permanent
// or ephemeral), satisfied by *registry.Manager.
type RegistrationChecker interface {
	IsRegisteredContract(id [32]byte) bool
}

type kvKey string // opaque key bytes, used as a Go map key

// perContractKV is a plain key->value map for one contract.
type perContractKV map[kvKey][]byte

// delta is the ephemeral mutation set (spec.md §4.3): three disjoint maps.
type delta struct {
	newContractsToRegister map[[32]byte]struct{}
	newOrUpdated           map[[32]byte]perContractKV
	removed                map[[32]byte]map[kvKey]struct{}
}

func zeroDelta() delta {
	return delta{
		newContractsToRegister: make(map[[32]byte]struct{}),
		newOrUpdated:           make(map[[32]byte]perContractKV),
		removed:                make(map[[32]byte]map[kvKey]struct{}),
	}
}

func cloneDelta(d delta) delta {
	nd := zeroDelta()
	for k := range d.newContractsToRegister {
		nd.newContractsToRegister[k] = struct{}{}
	}
	for cid, kv := range d.newOrUpdated {
		m := make(perContractKV, len(kv))
		for k, v := range kv {
			m[k] = append([]byte(nil), v...)
		}
		nd.newOrUpdated[cid] = m
	}
	for cid, ks := range d.removed {
		m := make(map[kvKey]struct{}, len(ks))
		for k := range ks {
			m[k] = struct{}{}
		}
		nd.removed[cid] = m
	}
	return nd
}

// Tree is the persistence interface a contract's state tree must
// implement; implemented in package storage by the tree that
// storage.DB.OpenStateTree returns.
type Tree interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// TreeOpener opens (or creates) the persistent tree for a contract id.
type TreeOpener interface {
	OpenStateTree(contractID [32]byte) (Tree, error)
}

// Manager owns every contract's sparse key/value store.
type Manager struct {
	mu      sync.Mutex
	perm    map[[32]byte]perContractKV
	journal *deltakind.Journal[delta]
	reg     RegistrationChecker
	trees   TreeOpener
}

// New constructs a Manager backed by reg for registration checks and
// trees for persistence.
func New(reg RegistrationChecker, trees TreeOpener) *Manager {
	return &Manager{
		perm:    make(map[[32]byte]perContractKV),
		journal: deltakind.NewJournal(zeroDelta(), cloneDelta),
		reg:     reg,
		trees:   trees,
	}
}

// GetState reads a key for contractID, checking the removed-set, then the
// updated-set, then the permanent store, in that order (spec.md §4.3).
func (m *Manager) GetState(contractID [32]byte, key []byte) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := kvKey(key)
	d := m.journal.Current()
	if rs, ok := d.removed[contractID]; ok {
		if _, removed := rs[k]; removed {
			return nil, false
		}
	}
	if kv, ok := d.newOrUpdated[contractID]; ok {
		if v, ok := kv[k]; ok {
			return append([]byte(nil), v...), true
		}
	}
	if kv, ok := m.perm[contractID]; ok {
		if v, ok := kv[k]; ok {
			return append([]byte(nil), v...), true
		}
	}
	return nil, false
}

// InsertUpdateState writes key=value for contractID, returning the
// previous visible value if any. It fails unless the contract is
// registered, unless optimized is true (caller already proved
// registration — spec.md §4.3).
func (m *Manager) InsertUpdateState(contractID [32]byte, key, value []byte, optimized bool) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !optimized && !m.reg.IsRegisteredContract(contractID) {
		return nil, false, ledgererr.New(ledgererr.CodeContractNotRegistered, "state: contract not registered")
	}

	prev, hadPrev := m.getStateLocked(contractID, key)

	d := m.journal.Current()
	k := kvKey(key)
	if rs, ok := d.removed[contractID]; ok {
		delete(rs, k)
	}
	if d.newOrUpdated[contractID] == nil {
		d.newOrUpdated[contractID] = make(perContractKV)
	}
	d.newOrUpdated[contractID][k] = append([]byte(nil), value...)

	return prev, hadPrev, nil
}

// getStateLocked is GetState's body, reusable while m.mu is already held.
func (m *Manager) getStateLocked(contractID [32]byte, key []byte) ([]byte, bool) {
	k := kvKey(key)
	d := m.journal.Current()
	if rs, ok := d.removed[contractID]; ok {
		if _, removed := rs[k]; removed {
			return nil, false
		}
	}
	if kv, ok := d.newOrUpdated[contractID]; ok {
		if v, ok := kv[k]; ok {
			return append([]byte(nil), v...), true
		}
	}
	if kv, ok := m.perm[contractID]; ok {
		if v, ok := kv[k]; ok {
			return append([]byte(nil), v...), true
		}
	}
	return nil, false
}

// RegisterContract ephemerally registers contractID's own state store
// (spec.md §4.3's new_contracts_to_register), consumed by ApplyChanges to
// open the persistent tree and seed an empty in-memory store. This is
// distinct from the registry manager's registration that
// InsertUpdateState gates on: it tracks whether this contract's own
// state-manager entry exists yet, mirroring the original's
// is_contract_registered (in_memory_states.contains_key).
func (m *Manager) RegisterContract(contractID [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.journal.Current()
	if _, ok := d.newContractsToRegister[contractID]; ok {
		return ledgererr.New(ledgererr.CodeAlreadyRegisteredEphemeral, "state: contract store just registered in this delta")
	}
	if _, ok := m.perm[contractID]; ok {
		return ledgererr.New(ledgererr.CodeAlreadyRegisteredPermanent, "state: contract store already registered")
	}
	d.newContractsToRegister[contractID] = struct{}{}
	return nil
}

// RemoveState deletes key for contractID, failing if no visible value
// exists (spec.md §4.3).
func (m *Manager) RemoveState(contractID [32]byte, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.getStateLocked(contractID, key)
	if !ok {
		return ledgererr.New(ledgererr.CodeStateNotFoundOnRemove, "state: no visible value to remove")
	}

	d := m.journal.Current()
	k := kvKey(key)
	if kv, ok := d.newOrUpdated[contractID]; ok {
		delete(kv, k)
	}
	if d.removed[contractID] == nil {
		d.removed[contractID] = make(map[kvKey]struct{})
	}
	d.removed[contractID][k] = struct{}{}
	return nil
}

// PreExecution snapshots the current delta.
func (m *Manager) PreExecution() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal.PreExecution()
}

// RollbackLast restores the last PreExecution snapshot.
func (m *Manager) RollbackLast() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal.RollbackLast()
}

// ApplyChanges pushes the delta into permanent memory and the persistent
// tree, writing on-disk before in-memory so a crash between them never
// presents state that is not durable (spec.md §4.3).
func (m *Manager) ApplyChanges() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.journal.Current()

	for cid := range d.newContractsToRegister {
		if _, err := m.trees.OpenStateTree(cid); err != nil {
			return ledgererr.FatalPersistence(err)
		}
		if m.perm[cid] == nil {
			m.perm[cid] = make(perContractKV)
		}
	}

	for cid, kv := range d.newOrUpdated {
		tree, err := m.trees.OpenStateTree(cid)
		if err != nil {
			return ledgererr.FatalPersistence(err)
		}
		for k, v := range kv {
			if err := tree.Put([]byte(k), v); err != nil {
				return ledgererr.FatalPersistence(err)
			}
		}
		if m.perm[cid] == nil {
			m.perm[cid] = make(perContractKV, len(kv))
		}
		for k, v := range kv {
			m.perm[cid][k] = v
		}
	}

	for cid, ks := range d.removed {
		tree, err := m.trees.OpenStateTree(cid)
		if err != nil {
			return ledgererr.FatalPersistence(err)
		}
		for k := range ks {
			if err := tree.Delete([]byte(k)); err != nil {
				return ledgererr.FatalPersistence(err)
			}
		}
		if kv, ok := m.perm[cid]; ok {
			for k := range ks {
				delete(kv, k)
			}
		}
	}

	m.journal.Flush(zeroDelta())
	return nil
}

// FlushDelta discards the delta after a successful commit elsewhere, or
// simply clears it without touching on-disk/in-memory state.
func (m *Manager) FlushDelta() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal.Flush(zeroDelta())
}
