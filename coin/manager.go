package coin

import (
	"math/big"
	"sync"

	"github.com/cube-rollup/ledgernode/deltakind"
	"github.com/cube-rollup/ledgernode/ledgererr"
	"github.com/sirupsen/logrus"
)

// Manager owns every account's and contract's coin state.
type Manager struct {
	mu sync.Mutex

	accounts  map[[32]byte]AccountBody
	contracts map[[32]byte]ContractBody

	journal *deltakind.Journal[delta]
	trees   TreeOpener
	log     *logrus.Entry
}

// New constructs an empty Manager backed by trees for persistence.
func New(trees TreeOpener, log *logrus.Entry) *Manager {
	if log == nil {
		l := logrus.New()
		log = logrus.NewEntry(l)
	}
	return &Manager{
		accounts:  make(map[[32]byte]AccountBody),
		contracts: make(map[[32]byte]ContractBody),
		journal:   deltakind.NewJournal(zeroDelta(), cloneDelta),
		trees:     trees,
		log:       log,
	}
}

// --- registration -----------------------------------------------------

func (m *Manager) accountExists(key [32]byte) bool {
	if _, ok := m.accounts[key]; ok {
		return true
	}
	_, ok := m.journal.Current().newAccounts[key]
	return ok
}

func (m *Manager) contractExists(id [32]byte) bool {
	if _, ok := m.contracts[id]; ok {
		return true
	}
	_, ok := m.journal.Current().newContracts[id]
	return ok
}

// RegisterAccount registers key with initial_balance, rejecting reserved
// sentinel keys and double registration (spec.md §4.4).
func (m *Manager) RegisterAccount(key [32]byte, initialBalance uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if isReservedKey(key) {
		return ledgererr.New(ledgererr.CodeReservedKeyCollision, "coin: account key collides with a reserved sentinel")
	}
	if m.accountExists(key) {
		if _, ok := m.accounts[key]; ok {
			return ledgererr.New(ledgererr.CodeAlreadyRegisteredPermanent, "coin: account already registered")
		}
		return ledgererr.New(ledgererr.CodeAlreadyRegisteredEphemeral, "coin: account pending registration")
	}
	d := m.journal.Current()
	d.newAccounts[key] = initialBalance
	d.newAccountsOrder = append(d.newAccountsOrder, key)
	return nil
}

// RegisterContract registers id with initial_balance; allocs_sum starts
// at 0 with an empty shadow space.
func (m *Manager) RegisterContract(id [32]byte, initialBalance uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if isReservedKey(id) {
		return ledgererr.New(ledgererr.CodeReservedKeyCollision, "coin: contract id collides with a reserved sentinel")
	}
	if m.contractExists(id) {
		if _, ok := m.contracts[id]; ok {
			return ledgererr.New(ledgererr.CodeAlreadyRegisteredPermanent, "coin: contract already registered")
		}
		return ledgererr.New(ledgererr.CodeAlreadyRegisteredEphemeral, "coin: contract pending registration")
	}
	d := m.journal.Current()
	d.newContracts[id] = initialBalance
	d.newContractsOrder = append(d.newContractsOrder, id)
	return nil
}

// --- balances -----------------------------------------------------------

func (m *Manager) effectiveAccountBalance(key [32]byte) (uint64, bool) {
	d := m.journal.Current()
	var base uint64
	found := false
	if b, ok := m.accounts[key]; ok {
		base, found = b.Balance, true
	} else if ib, ok := d.newAccounts[key]; ok {
		base, found = ib, true
	}
	if !found {
		return 0, false
	}
	return uint64(int64(base) + d.accountBalanceDelta[key]), true
}

func (m *Manager) effectiveContractBalance(id [32]byte) (uint64, bool) {
	d := m.journal.Current()
	var base uint64
	found := false
	if b, ok := m.contracts[id]; ok {
		base, found = b.Balance, true
	} else if ib, ok := d.newContracts[id]; ok {
		base, found = ib, true
	}
	if !found {
		return 0, false
	}
	return uint64(int64(base) + d.contractBalanceDelta[id]), true
}

// GetAccountBalance returns the effective (pending-aware) balance of key.
func (m *Manager) GetAccountBalance(key [32]byte) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.effectiveAccountBalance(key)
}

// GetContractBalance returns the effective balance of id.
func (m *Manager) GetContractBalance(id [32]byte) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.effectiveContractBalance(id)
}

// AccountBalanceUp credits v satoshis to key's balance.
func (m *Manager) AccountBalanceUp(key [32]byte, v uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.effectiveAccountBalance(key)
	if !ok {
		return ledgererr.New(ledgererr.CodeUnknownPrincipal, "coin: unknown account")
	}
	_ = bal
	m.journal.Current().accountBalanceDelta[key] += int64(v)
	return nil
}

// AccountBalanceDown debits v satoshis from key's balance, failing on underflow.
func (m *Manager) AccountBalanceDown(key [32]byte, v uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.effectiveAccountBalance(key)
	if !ok {
		return ledgererr.New(ledgererr.CodeUnknownPrincipal, "coin: unknown account")
	}
	if v > bal {
		return ledgererr.New(ledgererr.CodeBalanceUnderflow, "coin: account balance underflow")
	}
	m.journal.Current().accountBalanceDelta[key] -= int64(v)
	return nil
}

// ContractBalanceUp credits v satoshis to id's balance.
func (m *Manager) ContractBalanceUp(id [32]byte, v uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.effectiveContractBalance(id)
	if !ok {
		return ledgererr.New(ledgererr.CodeUnknownPrincipal, "coin: unknown contract")
	}
	m.journal.Current().contractBalanceDelta[id] += int64(v)
	return nil
}

// ContractBalanceDown debits v satoshis from id's balance, failing on
// underflow or if the result would fall below allocs_sum (invariant I1).
func (m *Manager) ContractBalanceDown(id [32]byte, v uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.effectiveContractBalance(id)
	if !ok {
		return ledgererr.New(ledgererr.CodeUnknownPrincipal, "coin: unknown contract")
	}
	if v > bal {
		return ledgererr.New(ledgererr.CodeBalanceUnderflow, "coin: contract balance underflow")
	}
	newBal := bal - v
	sum := m.effectiveAllocsSum(id)
	if newBal < sum {
		return ledgererr.New(ledgererr.CodeBelowAllocsSum, "coin: contract balance would fall below allocs_sum")
	}
	m.journal.Current().contractBalanceDelta[id] -= int64(v)
	return nil
}

// --- shadow allocation base accessors -----------------------------------

func (m *Manager) effectiveAllocsSum(id [32]byte) uint64 {
	d := m.journal.Current()
	var base uint64
	if c, ok := m.contracts[id]; ok {
		base = c.Shadow.AllocsSum
	}
	return uint64(int64(base) + d.contractAllocsSumDelta[id])
}

func (m *Manager) isAllocated(id, key [32]byte) bool {
	d := m.journal.Current()
	if c, ok := m.contracts[id]; ok {
		if _, ok := c.Shadow.Allocs[key]; ok {
			if !inSet(d.contractRemovedAllocs, id, key) {
				return true
			}
		}
	}
	return inSet(d.contractNewAllocs, id, key)
}

// baseAllocValue returns a_0, the base (pre-deferred-projection) sati-
// satoshi alloc value for (id, key).
func (m *Manager) baseAllocValue(id, key [32]byte) *big.Int {
	base := big.NewInt(0)
	if c, ok := m.contracts[id]; ok {
		if v, ok := c.Shadow.Allocs[key]; ok && !inSet(m.journal.Current().contractRemovedAllocs, id, key) {
			base = new(big.Int).Set(v)
		}
	}
	d := m.journal.Current()
	if accs, ok := d.contractAllocBaseDelta[id]; ok {
		if delta, ok := accs[key]; ok {
			base = new(big.Int).Add(base, delta)
		}
	}
	return base
}

func (m *Manager) addAllocBaseDelta(id, key [32]byte, delta *big.Int) {
	d := m.journal.Current()
	if d.contractAllocBaseDelta[id] == nil {
		d.contractAllocBaseDelta[id] = make(map[[32]byte]*big.Int)
	}
	cur, ok := d.contractAllocBaseDelta[id][key]
	if !ok {
		cur = big.NewInt(0)
	}
	d.contractAllocBaseDelta[id][key] = new(big.Int).Add(cur, delta)
}

// GetShadowAllocValueBaseSatiSatoshis returns a_0 for (id, key).
func (m *Manager) GetShadowAllocValueBaseSatiSatoshis(id, key [32]byte) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baseAllocValue(id, key)
}

// GetShadowAllocValueEffectiveSatiSatoshis projects a_0 through any
// pending deferred proportional delta (spec.md §4.4 formula).
func (m *Manager) GetShadowAllocValueEffectiveSatiSatoshis(id, key [32]byte) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	a0 := m.baseAllocValue(id, key)
	return m.projectEffective(id, a0)
}

// projectEffective applies the deferred-delta formula of spec.md §4.4 to
// base value a0 for contract id.
func (m *Manager) projectEffective(id [32]byte, a0 *big.Int) *big.Int {
	d := m.journal.Current()
	deferred := d.contractDeferredDelta[id]
	if deferred == 0 {
		return a0
	}
	effSum := m.effectiveAllocsSum(id)
	baseSum := int64(effSum) - deferred
	if baseSum <= 0 {
		return a0
	}
	baseSS := new(big.Int).Mul(big.NewInt(baseSum), satiPerSatoshi)
	absDeferred := deferred
	if absDeferred < 0 {
		absDeferred = -absDeferred
	}
	deltaSS := new(big.Int).Mul(big.NewInt(absDeferred), satiPerSatoshi)
	shareSS := new(big.Int).Mul(a0, deltaSS)
	shareSS.Quo(shareSS, baseSS)

	if deferred > 0 {
		return new(big.Int).Add(a0, shareSS)
	}
	eff := new(big.Int).Sub(a0, shareSS)
	if eff.Sign() < 0 {
		return big.NewInt(0)
	}
	return eff
}

// --- shadow alloc/dealloc -------------------------------------------------

// ShadowAllocAccount establishes an entry with base value 0 in id's shadow
// space for key.
func (m *Manager) ShadowAllocAccount(id, key [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.journal.Current()
	if inSet(d.contractJustAllocated, id, key) {
		return ledgererr.New(ledgererr.CodeJustAllocatedEphemeral, "coin: account just allocated in this execution")
	}
	if inSet(d.contractJustDealloc, id, key) {
		return ledgererr.New(ledgererr.CodeJustDeallocatedEphemeral, "coin: account just deallocated in this execution")
	}
	if m.isAllocated(id, key) {
		return ledgererr.New(ledgererr.CodeAlreadyAllocated, "coin: account already allocated in this shadow space")
	}
	addToSet(d.contractNewAllocs, id, key)
	addToSet(d.contractJustAllocated, id, key)
	return nil
}

// ShadowDeallocAccount removes key's entry from id's shadow space, which
// must currently hold a zero base allocation.
func (m *Manager) ShadowDeallocAccount(id, key [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.journal.Current()
	if inSet(d.contractJustAllocated, id, key) {
		return ledgererr.New(ledgererr.CodeJustAllocatedEphemeral, "coin: account just allocated in this execution")
	}
	if inSet(d.contractJustDealloc, id, key) {
		return ledgererr.New(ledgererr.CodeJustDeallocatedEphemeral, "coin: account just deallocated in this execution")
	}
	if !m.isAllocated(id, key) {
		return ledgererr.New(ledgererr.CodeUnknownPrincipal, "coin: account not allocated in this shadow space")
	}
	if m.baseAllocValue(id, key).Sign() != 0 {
		return ledgererr.New(ledgererr.CodeAllocNonZeroOnDealloc, "coin: cannot deallocate a nonzero allocation")
	}
	if inSet(d.contractNewAllocs, id, key) {
		delete(d.contractNewAllocs[id], key)
	} else {
		addToSet(d.contractRemovedAllocs, id, key)
	}
	addToSet(d.contractJustDealloc, id, key)
	return nil
}

// --- shadow up/down (direct) -----------------------------------------

// ShadowUp adds v satoshis (v*10^8 sati-satoshis) to key's base allocation
// in id's shadow space, updates allocs_sum eagerly, and increments key's
// global_shadow_allocs_sum.
func (m *Manager) ShadowUp(id, key [32]byte, v uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isAllocated(id, key) {
		return ledgererr.New(ledgererr.CodeUnknownPrincipal, "coin: account not allocated in this shadow space")
	}
	newSum := m.effectiveAllocsSum(id) + v
	bal, ok := m.effectiveContractBalance(id)
	if !ok {
		return ledgererr.New(ledgererr.CodeUnknownPrincipal, "coin: unknown contract")
	}
	if newSum > bal {
		return ledgererr.New(ledgererr.CodeAllocsSumExceedsBalance, "coin: shadow_up would push allocs_sum above balance")
	}
	m.addAllocBaseDelta(id, key, satiFromSatoshis(v))
	d := m.journal.Current()
	d.contractAllocsSumDelta[id] += int64(v)
	m.addGlobalSumDelta(key, satiFromSatoshis(v))
	return nil
}

// ShadowDown subtracts v satoshis from key's base allocation, failing on
// underflow.
func (m *Manager) ShadowDown(id, key [32]byte, v uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isAllocated(id, key) {
		return ledgererr.New(ledgererr.CodeUnknownPrincipal, "coin: account not allocated in this shadow space")
	}
	cur := m.baseAllocValue(id, key)
	vss := satiFromSatoshis(v)
	if cur.Cmp(vss) < 0 {
		return ledgererr.New(ledgererr.CodeAllocUnderflow, "coin: shadow allocation underflow")
	}
	m.addAllocBaseDelta(id, key, new(big.Int).Neg(vss))
	d := m.journal.Current()
	d.contractAllocsSumDelta[id] -= int64(v)
	m.addGlobalSumDelta(key, new(big.Int).Neg(vss))
	return nil
}

func (m *Manager) addGlobalSumDelta(key [32]byte, delta *big.Int) {
	d := m.journal.Current()
	cur, ok := d.accountGlobalSumDelta[key]
	if !ok {
		cur = big.NewInt(0)
	}
	d.accountGlobalSumDelta[key] = new(big.Int).Add(cur, delta)
}

// --- shadow up_all/down_all (proportional) -------------------------------

func (m *Manager) allocatedAccountCount(id [32]byte) int {
	d := m.journal.Current()
	seen := make(map[[32]byte]struct{})
	if c, ok := m.contracts[id]; ok {
		for a := range c.Shadow.Allocs {
			if !inSet(d.contractRemovedAllocs, id, a) {
				seen[a] = struct{}{}
			}
		}
	}
	for a := range d.contractNewAllocs[id] {
		seen[a] = struct{}{}
	}
	return len(seen)
}

// ShadowUpAll distributes v satoshis proportionally across all of id's
// allocations, deferring the per-account rewrite to ApplyChanges. It
// returns the number of accounts that will be affected.
func (m *Manager) ShadowUpAll(id [32]byte, v uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := m.effectiveAllocsSum(id)
	if sum == 0 {
		return 0, ledgererr.New(ledgererr.CodeOperationOnZeroSum, "coin: shadow_up_all on a zero-sum shadow space")
	}
	newSum := sum + v
	bal, ok := m.effectiveContractBalance(id)
	if !ok {
		return 0, ledgererr.New(ledgererr.CodeUnknownPrincipal, "coin: unknown contract")
	}
	if newSum > bal {
		return 0, ledgererr.New(ledgererr.CodeAllocsSumExceedsBalance, "coin: shadow_up_all would push allocs_sum above balance")
	}
	d := m.journal.Current()
	d.contractAllocsSumDelta[id] += int64(v)
	d.contractDeferredDelta[id] += int64(v)
	return m.allocatedAccountCount(id), nil
}

// ShadowDownAll is the symmetric proportional decrease.
func (m *Manager) ShadowDownAll(id [32]byte, v uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := m.effectiveAllocsSum(id)
	if sum == 0 {
		return 0, ledgererr.New(ledgererr.CodeOperationOnZeroSum, "coin: shadow_down_all on a zero-sum shadow space")
	}
	if v > sum {
		return 0, ledgererr.New(ledgererr.CodeAllocsSumWouldGoBelowZero, "coin: shadow_down_all would push allocs_sum below zero")
	}
	newSum := sum - v
	bal, ok := m.effectiveContractBalance(id)
	if !ok {
		return 0, ledgererr.New(ledgererr.CodeUnknownPrincipal, "coin: unknown contract")
	}
	if newSum > bal {
		return 0, ledgererr.New(ledgererr.CodeAllocsSumExceedsBalance, "coin: shadow_down_all would leave allocs_sum above balance")
	}
	d := m.journal.Current()
	d.contractAllocsSumDelta[id] -= int64(v)
	d.contractDeferredDelta[id] -= int64(v)
	return m.allocatedAccountCount(id), nil
}

// --- global sum read ------------------------------------------------------

// GetAccountGlobalShadowAllocsSum returns the effective (pending-aware)
// global_shadow_allocs_sum for key.
func (m *Manager) GetAccountGlobalShadowAllocsSum(key [32]byte) (*big.Int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.journal.Current()
	var base *big.Int
	found := false
	if b, ok := m.accounts[key]; ok {
		base, found = new(big.Int).Set(b.GlobalShadowAllocsSum), true
	} else if _, ok := d.newAccounts[key]; ok {
		base, found = big.NewInt(0), true
	}
	if !found {
		return nil, false
	}
	if pend, ok := d.accountGlobalSumDelta[key]; ok {
		base = new(big.Int).Add(base, pend)
	}
	return base, true
}

// --- transactional boundary -----------------------------------------------

// PreExecution snapshots the delta.
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

// FlushDelta discards the delta without promoting it.
func (m *Manager) FlushDelta() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal.Flush(zeroDelta())
}
