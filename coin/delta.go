package coin

import "math/big"

// delta is the ephemeral, per-block mutation set for the coin manager. It
// is deep-copied on PreExecution and restored on RollbackLast
// (deltakind.Journal), and promoted to permanent state plus persistent
// trees by ApplyChanges.
type delta struct {
	newAccounts      map[[32]byte]uint64 // key -> initial balance, pending registration
	newAccountsOrder [][32]byte

	newContracts      map[[32]byte]uint64
	newContractsOrder [][32]byte

	accountBalanceDelta  map[[32]byte]int64
	contractBalanceDelta map[[32]byte]int64

	// accountGlobalSumDelta accumulates both shadow_up/shadow_down direct
	// contributions and the deferred per-account resolution computed at
	// ApplyChanges step 5, summed per account. Step 5 visits contracts in
	// sorted id order and adds each contract's adjustment for an account
	// onto any earlier contract's adjustment for the same account within
	// the same ApplyChanges call (spec.md §4.4 step 5).
	accountGlobalSumDelta map[[32]byte]*big.Int

	contractAllocsSumDelta map[[32]byte]int64 // eager, satoshis
	contractDeferredDelta  map[[32]byte]int64 // satoshis, signed; up_all positive, down_all negative

	// contractAllocBaseDelta[contract][account] is the pending change (in
	// sati-satoshis) to that account's base allocation from direct
	// shadow_up/shadow_down calls this block (NOT from up_all/down_all,
	// which only touch contractDeferredDelta/contractAllocsSumDelta and
	// are resolved per-account at ApplyChanges).
	contractAllocBaseDelta map[[32]byte]map[[32]byte]*big.Int

	contractNewAllocs      map[[32]byte]map[[32]byte]struct{} // allocated this block, base 0 until shadow_up
	contractJustAllocated  map[[32]byte]map[[32]byte]struct{}
	contractJustDealloc    map[[32]byte]map[[32]byte]struct{}
	contractRemovedAllocs  map[[32]byte]map[[32]byte]struct{} // deallocated this block
}

func zeroDelta() delta {
	return delta{
		newAccounts:            make(map[[32]byte]uint64),
		newContracts:           make(map[[32]byte]uint64),
		accountBalanceDelta:    make(map[[32]byte]int64),
		contractBalanceDelta:   make(map[[32]byte]int64),
		accountGlobalSumDelta:  make(map[[32]byte]*big.Int),
		contractAllocsSumDelta: make(map[[32]byte]int64),
		contractDeferredDelta:  make(map[[32]byte]int64),
		contractAllocBaseDelta: make(map[[32]byte]map[[32]byte]*big.Int),
		contractNewAllocs:      make(map[[32]byte]map[[32]byte]struct{}),
		contractJustAllocated:  make(map[[32]byte]map[[32]byte]struct{}),
		contractJustDealloc:    make(map[[32]byte]map[[32]byte]struct{}),
		contractRemovedAllocs:  make(map[[32]byte]map[[32]byte]struct{}),
	}
}

func cloneSetMap(m map[[32]byte]map[[32]byte]struct{}) map[[32]byte]map[[32]byte]struct{} {
	out := make(map[[32]byte]map[[32]byte]struct{}, len(m))
	for k, set := range m {
		ns := make(map[[32]byte]struct{}, len(set))
		for a := range set {
			ns[a] = struct{}{}
		}
		out[k] = ns
	}
	return out
}

func cloneDelta(d delta) delta {
	nd := zeroDelta()
	nd.newAccountsOrder = append([][32]byte(nil), d.newAccountsOrder...)
	nd.newContractsOrder = append([][32]byte(nil), d.newContractsOrder...)
	for k, v := range d.newAccounts {
		nd.newAccounts[k] = v
	}
	for k, v := range d.newContracts {
		nd.newContracts[k] = v
	}
	for k, v := range d.accountBalanceDelta {
		nd.accountBalanceDelta[k] = v
	}
	for k, v := range d.contractBalanceDelta {
		nd.contractBalanceDelta[k] = v
	}
	for k, v := range d.accountGlobalSumDelta {
		nd.accountGlobalSumDelta[k] = new(big.Int).Set(v)
	}
	for k, v := range d.contractAllocsSumDelta {
		nd.contractAllocsSumDelta[k] = v
	}
	for k, v := range d.contractDeferredDelta {
		nd.contractDeferredDelta[k] = v
	}
	for cid, accs := range d.contractAllocBaseDelta {
		m := make(map[[32]byte]*big.Int, len(accs))
		for a, v := range accs {
			m[a] = new(big.Int).Set(v)
		}
		nd.contractAllocBaseDelta[cid] = m
	}
	nd.contractNewAllocs = cloneSetMap(d.contractNewAllocs)
	nd.contractJustAllocated = cloneSetMap(d.contractJustAllocated)
	nd.contractJustDealloc = cloneSetMap(d.contractJustDealloc)
	nd.contractRemovedAllocs = cloneSetMap(d.contractRemovedAllocs)
	return nd
}

func addToSet(m map[[32]byte]map[[32]byte]struct{}, cid, acc [32]byte) {
	if m[cid] == nil {
		m[cid] = make(map[[32]byte]struct{})
	}
	m[cid][acc] = struct{}{}
}

func inSet(m map[[32]byte]map[[32]byte]struct{}, cid, acc [32]byte) bool {
	s, ok := m[cid]
	if !ok {
		return false
	}
	_, ok = s[acc]
	return ok
}
