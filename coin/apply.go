package coin

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/cube-rollup/ledgernode/ledgererr"
)

func sortedKeys32(m map[[32]byte]struct{}) [][32]byte {
	out := make([][32]byte, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// ApplyChanges commits the pending delta to permanent memory and the
// persistent trees, in the strict eight-step order of spec.md §4.4.
// Persistence errors are fatal: the caller must halt the node rather than
// let in-memory and on-disk state diverge.
func (m *Manager) ApplyChanges() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.journal.Current()

	// Step 1: register new accounts.
	for _, key := range d.newAccountsOrder {
		bal := d.newAccounts[key]
		tree, err := m.trees.OpenCoinAccountTree(key)
		if err != nil {
			return ledgererr.FatalPersistence(err)
		}
		if err := tree.PutBalance(bal); err != nil {
			return ledgererr.FatalPersistence(err)
		}
		if err := tree.PutGlobalShadowAllocsSum(bigToSati16LE(big.NewInt(0))); err != nil {
			return ledgererr.FatalPersistence(err)
		}
		m.accounts[key] = AccountBody{Balance: bal, GlobalShadowAllocsSum: big.NewInt(0)}
	}

	// Step 2: register new contracts.
	for _, id := range d.newContractsOrder {
		bal := d.newContracts[id]
		tree, err := m.trees.OpenCoinContractTree(id)
		if err != nil {
			return ledgererr.FatalPersistence(err)
		}
		if err := tree.PutBalance(bal); err != nil {
			return ledgererr.FatalPersistence(err)
		}
		if err := tree.PutAllocsSum(0); err != nil {
			return ledgererr.FatalPersistence(err)
		}
		m.contracts[id] = ContractBody{Balance: bal, Shadow: newShadowSpace()}
	}

	// Step 3: apply account balance updates, on-disk then in-memory.
	for key, delta := range d.accountBalanceDelta {
		if delta == 0 {
			continue
		}
		body := m.accounts[key]
		newBal := uint64(int64(body.Balance) + delta)
		tree, err := m.trees.OpenCoinAccountTree(key)
		if err != nil {
			return ledgererr.FatalPersistence(err)
		}
		if err := tree.PutBalance(newBal); err != nil {
			return ledgererr.FatalPersistence(err)
		}
		body.Balance = newBal
		m.accounts[key] = body
	}

	// Step 4: apply contract balance updates, on-disk then in-memory.
	for id, delta := range d.contractBalanceDelta {
		if delta == 0 {
			continue
		}
		body := m.contracts[id]
		newBal := uint64(int64(body.Balance) + delta)
		tree, err := m.trees.OpenCoinContractTree(id)
		if err != nil {
			return ledgererr.FatalPersistence(err)
		}
		if err := tree.PutBalance(newBal); err != nil {
			return ledgererr.FatalPersistence(err)
		}
		body.Balance = newBal
		m.contracts[id] = body
	}

	// Step 5: resolve deferred proportional deltas per shadow space,
	// computing final per-account base values and accumulating global
	// sum adjustments. Contracts are visited in deterministic (sorted)
	// order so the cumulative global-sum map is read in order.
	finalAllocs := make(map[[32]byte]map[[32]byte]*big.Int)
	contractIDs := make(map[[32]byte]struct{})
	for id := range d.contractDeferredDelta {
		contractIDs[id] = struct{}{}
	}
	for id := range d.contractAllocBaseDelta {
		contractIDs[id] = struct{}{}
	}
	for id := range d.contractNewAllocs {
		contractIDs[id] = struct{}{}
	}
	for _, id := range sortedKeys32(contractIDs) {
		deferred := d.contractDeferredDelta[id]
		accounts := make(map[[32]byte]struct{})
		if deferred != 0 {
			if c, ok := m.contracts[id]; ok {
				for a := range c.Shadow.Allocs {
					if !inSet(d.contractRemovedAllocs, id, a) {
						accounts[a] = struct{}{}
					}
				}
			}
			for a := range d.contractNewAllocs[id] {
				accounts[a] = struct{}{}
			}
		} else {
			for a := range d.contractAllocBaseDelta[id] {
				accounts[a] = struct{}{}
			}
			for a := range d.contractNewAllocs[id] {
				accounts[a] = struct{}{}
			}
		}
		if len(accounts) == 0 {
			continue
		}
		finalAllocs[id] = make(map[[32]byte]*big.Int, len(accounts))
		for _, acc := range sortedKeys32(accounts) {
			priorBase := m.baseAllocValue(id, acc)
			final := m.projectEffective(id, priorBase)
			finalAllocs[id][acc] = final
			if diff := new(big.Int).Sub(final, priorBase); diff.Sign() != 0 {
				m.addGlobalSumDelta(acc, diff)
			}
		}
	}

	// Step 6: apply pending per-account global_shadow_allocs_sum updates
	// accumulated in step 5 and by shadow_up/shadow_down, on-disk then
	// in-memory.
	globalDeltaKeys := make(map[[32]byte]struct{}, len(d.accountGlobalSumDelta))
	for k := range d.accountGlobalSumDelta {
		globalDeltaKeys[k] = struct{}{}
	}
	for _, key := range sortedKeys32(globalDeltaKeys) {
		delta := d.accountGlobalSumDelta[key]
		if delta.Sign() == 0 {
			continue
		}
		body, ok := m.accounts[key]
		if !ok {
			continue // account registered but balance not yet promoted; unreachable in a well-formed call
		}
		newSum := new(big.Int).Add(body.GlobalShadowAllocsSum, delta)
		if newSum.Sign() < 0 {
			newSum = big.NewInt(0)
		}
		tree, err := m.trees.OpenCoinAccountTree(key)
		if err != nil {
			return ledgererr.FatalPersistence(err)
		}
		if err := tree.PutGlobalShadowAllocsSum(bigToSati16LE(newSum)); err != nil {
			return ledgererr.FatalPersistence(err)
		}
		body.GlobalShadowAllocsSum = newSum
		m.accounts[key] = body
	}

	// Step 7: apply shadow-space updates — rewrite each alloc on-disk
	// first, then the allocs_sum sentinel, then mirror in-memory.
	touchedContracts := make(map[[32]byte]struct{}, len(finalAllocs))
	for id := range finalAllocs {
		touchedContracts[id] = struct{}{}
	}
	for id := range d.contractAllocsSumDelta {
		touchedContracts[id] = struct{}{}
	}
	for _, id := range sortedKeys32(touchedContracts) {
		contractBody := m.contracts[id]
		tree, err := m.trees.OpenCoinContractTree(id)
		if err != nil {
			return ledgererr.FatalPersistence(err)
		}
		if accs, ok := finalAllocs[id]; ok {
			for _, acc := range sortedKeys32(toSet(accs)) {
				v := accs[acc]
				if err := tree.PutAlloc(acc, bigToSati16LE(v)); err != nil {
					return ledgererr.FatalPersistence(err)
				}
				if contractBody.Shadow.Allocs == nil {
					contractBody.Shadow.Allocs = make(map[[32]byte]*big.Int)
				}
				contractBody.Shadow.Allocs[acc] = v
			}
		}
		newSum := uint64(int64(contractBody.Shadow.AllocsSum) + d.contractAllocsSumDelta[id])
		if err := tree.PutAllocsSum(newSum); err != nil {
			return ledgererr.FatalPersistence(err)
		}
		contractBody.Shadow.AllocsSum = newSum
		m.contracts[id] = contractBody
	}

	// Step 8: apply deallocations — on-disk remove, then in-memory
	// remove; a missing in-memory entry at this point is an internal
	// inconsistency and is treated as fatal.
	for id, accs := range d.contractRemovedAllocs {
		tree, err := m.trees.OpenCoinContractTree(id)
		if err != nil {
			return ledgererr.FatalPersistence(err)
		}
		contractBody := m.contracts[id]
		for acc := range accs {
			if err := tree.DeleteAlloc(acc); err != nil {
				return ledgererr.FatalPersistence(err)
			}
			if _, ok := contractBody.Shadow.Allocs[acc]; !ok {
				return ledgererr.FatalPersistence(ledgererr.New(ledgererr.CodeInvariantViolatedAtLoad, "coin: in-memory alloc removal found no entry"))
			}
			delete(contractBody.Shadow.Allocs, acc)
		}
		m.contracts[id] = contractBody
	}

	m.journal.Flush(zeroDelta())
	return nil
}

func toSet(m map[[32]byte]*big.Int) map[[32]byte]struct{} {
	out := make(map[[32]byte]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
