// Package registry implements the rank-ordered directory of accounts and
// contracts described in SPEC_FULL.md §4.2: a body keyed by principal
// identity, a derived 1-based rank ordering by (call_counter DESC,
// registry_index ASC), and the pending/ephemeral registration and
// call-counter bookkeeping that apply_changes promotes to permanent state.
package registry

import (
	"sort"
	"sync"

	"github.com/cube-rollup/ledgernode/deltakind"
	"github.com/cube-rollup/ledgernode/ledgererr"
	"github.com/cube-rollup/ledgernode/metrics"
	"github.com/sirupsen/logrus"
)

// Body is the permanent per-principal record (spec.md §4.2).
type Body struct {
	RegistryIndex uint32
	CallCounter   uint64
}

// delta is the ephemeral per-block mutation set for one principal kind.
type delta struct {
	pendingRegistrations []key32          // insertion order preserved
	pendingSet           map[key32]struct{}
	pendingIncrements    map[key32]uint64 // accumulated increment_call_counter calls
}

type key32 = [32]byte

func cloneDelta(d delta) delta {
	nd := delta{
		pendingRegistrations: append([]key32(nil), d.pendingRegistrations...),
		pendingSet:           make(map[key32]struct{}, len(d.pendingSet)),
		pendingIncrements:    make(map[key32]uint64, len(d.pendingIncrements)),
	}
	for k := range d.pendingSet {
		nd.pendingSet[k] = struct{}{}
	}
	for k, v := range d.pendingIncrements {
		nd.pendingIncrements[k] = v
	}
	return nd
}

func zeroDelta() delta {
	return delta{
		pendingSet:        make(map[key32]struct{}),
		pendingIncrements: make(map[key32]uint64),
	}
}

// kindRegistry is one principal kind's permanent state plus ephemeral delta.
type kindRegistry struct {
	bodies  map[key32]Body
	rankOf  map[key32]uint32 // derived, 1-based
	ofRank  []key32          // ofRank[rank-1] == identity; derived
	journal *deltakind.Journal[delta]
}

func newKindRegistry() *kindRegistry {
	return &kindRegistry{
		bodies:  make(map[key32]Body),
		rankOf:  make(map[key32]uint32),
		journal: deltakind.NewJournal(zeroDelta(), cloneDelta),
	}
}

func (k *kindRegistry) isRegistered(id key32) bool {
	if _, ok := k.bodies[id]; ok {
		return true
	}
	_, ok := k.journal.Current().pendingSet[id]
	return ok
}

func (k *kindRegistry) register(id key32) error {
	if k.isRegistered(id) {
		if _, ok := k.bodies[id]; ok {
			return ledgererr.New(ledgererr.CodeAlreadyRegisteredPermanent, "registry: principal already registered")
		}
		return ledgererr.New(ledgererr.CodeAlreadyRegisteredEphemeral, "registry: principal already pending registration")
	}
	d := k.journal.Current()
	d.pendingRegistrations = append(d.pendingRegistrations, id)
	d.pendingSet[id] = struct{}{}
	return nil
}

func (k *kindRegistry) incrementCallCounter(id key32) error {
	if !k.isRegistered(id) {
		return ledgererr.New(ledgererr.CodeNotRegistered, "registry: principal not registered")
	}
	d := k.journal.Current()
	d.pendingIncrements[id]++
	return nil
}

func (k *kindRegistry) rankOfID(id key32) (uint32, bool) {
	r, ok := k.rankOf[id]
	return r, ok
}

func (k *kindRegistry) idOfRank(r uint32) (key32, bool) {
	if r < 1 || int(r) > len(k.ofRank) {
		return key32{}, false
	}
	return k.ofRank[r-1], true
}

// applyChanges promotes pending registrations and call-counter increments,
// then re-derives the rank ordering. currentHeight is the block height at
// commit time; new registry indices start at currentHeight+1 (spec.md
// §4.2). openTree resolves one principal's persistence tree; writes
// happen on-disk before the in-memory mirror is updated, matching the
// durability discipline the coin and state managers follow.
func (k *kindRegistry) applyChanges(currentHeight uint64, openTree func(key32) (Tree, error)) error {
	d := k.journal.Current()

	nextIndex := uint32(currentHeight + 1)
	for _, id := range d.pendingRegistrations {
		tree, err := openTree(id)
		if err != nil {
			return err
		}
		if err := tree.PutRegistryIndex(nextIndex); err != nil {
			return err
		}
		if err := tree.PutCallCounter(0); err != nil {
			return err
		}
		k.bodies[id] = Body{RegistryIndex: nextIndex, CallCounter: 0}
		nextIndex++
	}
	for id, inc := range d.pendingIncrements {
		b := k.bodies[id]
		b.CallCounter += inc
		tree, err := openTree(id)
		if err != nil {
			return err
		}
		if err := tree.PutCallCounter(b.CallCounter); err != nil {
			return err
		}
		k.bodies[id] = b
	}

	k.rerank()
	k.journal.Flush(zeroDelta())
	return nil
}

func (k *kindRegistry) rerank() {
	ids := make([]key32, 0, len(k.bodies))
	for id := range k.bodies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		bi, bj := k.bodies[ids[i]], k.bodies[ids[j]]
		if bi.CallCounter != bj.CallCounter {
			return bi.CallCounter > bj.CallCounter // DESC
		}
		return bi.RegistryIndex < bj.RegistryIndex // ASC
	})
	k.rankOf = make(map[key32]uint32, len(ids))
	k.ofRank = make([]key32, len(ids))
	for i, id := range ids {
		k.rankOf[id] = uint32(i + 1)
		k.ofRank[i] = id
	}
}

// Manager owns the account and contract registries.
type Manager struct {
	mu        sync.RWMutex
	accounts  *kindRegistry
	contracts *kindRegistry
	trees     TreeOpener
	log       *logrus.Entry
	size      *metrics.RegistrySize
}

// New constructs an empty Manager. log and size may both be nil.
func New(trees TreeOpener, log *logrus.Entry, size *metrics.RegistrySize) *Manager {
	if log == nil {
		l := logrus.New()
		l.SetOutput(nopWriter{})
		log = logrus.NewEntry(l)
	}
	return &Manager{accounts: newKindRegistry(), contracts: newKindRegistry(), trees: trees, log: log, size: size}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// IsRegisteredAccount reports whether key is registered, permanently or
// ephemerally.
func (m *Manager) IsRegisteredAccount(key [32]byte) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accounts.isRegistered(key)
}

// IsRegisteredContract is the contract analogue of IsRegisteredAccount.
func (m *Manager) IsRegisteredContract(id [32]byte) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contracts.isRegistered(id)
}

// RegisterAccount registers key, failing if already (ephemerally or
// permanently) registered.
func (m *Manager) RegisterAccount(key [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts.register(key)
}

// RegisterContract is the contract analogue of RegisterAccount.
func (m *Manager) RegisterContract(id [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contracts.register(id)
}

// IncrementAccountCallCounter accumulates one call into the ephemeral
// per-block counter for key.
func (m *Manager) IncrementAccountCallCounter(key [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts.incrementCallCounter(key)
}

// IncrementContractCallCounter is the contract analogue.
func (m *Manager) IncrementContractCallCounter(id [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contracts.incrementCallCounter(id)
}

// RankOfAccount returns key's 1-based rank under the permanent ordering.
func (m *Manager) RankOfAccount(key [32]byte) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accounts.rankOfID(key)
}

// AccountKeyOfRank is the inverse of RankOfAccount.
func (m *Manager) AccountKeyOfRank(rank uint32) ([32]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accounts.idOfRank(rank)
}

// RankOfContract returns id's 1-based rank under the permanent ordering.
func (m *Manager) RankOfContract(id [32]byte) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contracts.rankOfID(id)
}

// ContractIDOfRank is the inverse of RankOfContract.
func (m *Manager) ContractIDOfRank(rank uint32) ([32]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contracts.idOfRank(rank)
}

// AccountBody returns the permanent body for key, if registered.
func (m *Manager) AccountBody(key [32]byte) (Body, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.accounts.bodies[key]
	return b, ok
}

// ContractBody returns the permanent body for id, if registered.
func (m *Manager) ContractBody(id [32]byte) (Body, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.contracts.bodies[id]
	return b, ok
}

// PreExecution snapshots both kinds' deltas.
func (m *Manager) PreExecution() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts.journal.PreExecution()
	m.contracts.journal.PreExecution()
}

// RollbackLast restores both kinds' deltas to the last PreExecution snapshot.
func (m *Manager) RollbackLast() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts.journal.RollbackLast()
	m.contracts.journal.RollbackLast()
}

// ApplyChanges promotes pending registrations/increments for both kinds
// and re-ranks, given the block height used to derive fresh registry
// indices. Persistence errors are returned unwrapped; the caller treats
// them as fatal like the coin and state managers do.
func (m *Manager) ApplyChanges(currentHeight uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.accounts.applyChanges(currentHeight, func(key key32) (Tree, error) {
		return m.trees.OpenRegistryAccountTree(key)
	}); err != nil {
		return err
	}
	if err := m.contracts.applyChanges(currentHeight, func(id key32) (Tree, error) {
		return m.trees.OpenRegistryContractTree(id)
	}); err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{
		"accounts":  len(m.accounts.bodies),
		"contracts": len(m.contracts.bodies),
	}).Debug("registry: apply_changes complete")
	if m.size != nil {
		m.size.Set(len(m.accounts.bodies), len(m.contracts.bodies))
	}
	return nil
}

// FlushDelta discards both kinds' pending deltas without promoting them.
func (m *Manager) FlushDelta() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts.journal.Flush(zeroDelta())
	m.contracts.journal.Flush(zeroDelta())
}
