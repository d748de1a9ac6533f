package registry

import (
	"errors"
	"testing"
)

type fakeTree struct {
	index   uint32
	counter uint64
}

func (t *fakeTree) PutRegistryIndex(index uint32) error {
	t.index = index
	return nil
}

func (t *fakeTree) PutCallCounter(counter uint64) error {
	t.counter = counter
	return nil
}

type fakeTreeOpener struct {
	accounts  map[key32]*fakeTree
	contracts map[key32]*fakeTree
	failOpen  bool
}

func newFakeTreeOpener() *fakeTreeOpener {
	return &fakeTreeOpener{accounts: make(map[key32]*fakeTree), contracts: make(map[key32]*fakeTree)}
}

func (o *fakeTreeOpener) OpenRegistryAccountTree(k key32) (Tree, error) {
	if o.failOpen {
		return nil, errors.New("open failed")
	}
	t, ok := o.accounts[k]
	if !ok {
		t = &fakeTree{}
		o.accounts[k] = t
	}
	return t, nil
}

func (o *fakeTreeOpener) OpenRegistryContractTree(k key32) (Tree, error) {
	if o.failOpen {
		return nil, errors.New("open failed")
	}
	t, ok := o.contracts[k]
	if !ok {
		t = &fakeTree{}
		o.contracts[k] = t
	}
	return t, nil
}

func key(b byte) key32 {
	var k key32
	k[0] = b
	return k
}

func TestRegisterAccount_RejectsDoubleRegistration(t *testing.T) {
	m := New(newFakeTreeOpener(), nil, nil)
	k := key(1)
	if err := m.RegisterAccount(k); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := m.RegisterAccount(k); err == nil {
		t.Fatalf("expected ephemeral double-registration rejection")
	}
	if err := m.ApplyChanges(10); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}
	if err := m.RegisterAccount(k); err == nil {
		t.Fatalf("expected permanent double-registration rejection")
	}
}

func TestApplyChanges_AssignsRegistryIndexFromHeight(t *testing.T) {
	m := New(newFakeTreeOpener(), nil, nil)
	k1, k2 := key(1), key(2)
	if err := m.RegisterAccount(k1); err != nil {
		t.Fatalf("register k1: %v", err)
	}
	if err := m.RegisterAccount(k2); err != nil {
		t.Fatalf("register k2: %v", err)
	}
	if err := m.ApplyChanges(99); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}
	b1, ok := m.AccountBody(k1)
	if !ok || b1.RegistryIndex != 100 {
		t.Fatalf("k1 body = %+v, %v, want index 100", b1, ok)
	}
	b2, ok := m.AccountBody(k2)
	if !ok || b2.RegistryIndex != 101 {
		t.Fatalf("k2 body = %+v, %v, want index 101", b2, ok)
	}
}

func TestRankOrdering_ByCallCounterDescThenIndexAsc(t *testing.T) {
	m := New(newFakeTreeOpener(), nil, nil)
	k1, k2, k3 := key(1), key(2), key(3)
	for _, k := range []key32{k1, k2, k3} {
		if err := m.RegisterAccount(k); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	if err := m.ApplyChanges(0); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}
	// k2 gets 2 calls, k3 gets 1, k1 gets 0 -- rank order should be k2, k3, k1.
	if err := m.IncrementAccountCallCounter(k2); err != nil {
		t.Fatalf("increment k2: %v", err)
	}
	if err := m.IncrementAccountCallCounter(k2); err != nil {
		t.Fatalf("increment k2: %v", err)
	}
	if err := m.IncrementAccountCallCounter(k3); err != nil {
		t.Fatalf("increment k3: %v", err)
	}
	if err := m.ApplyChanges(1); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}
	rank2, _ := m.RankOfAccount(k2)
	rank3, _ := m.RankOfAccount(k3)
	rank1, _ := m.RankOfAccount(k1)
	if !(rank2 < rank3 && rank3 < rank1) {
		t.Fatalf("rank order = k1:%d k2:%d k3:%d, want k2<k3<k1", rank1, rank2, rank3)
	}
	gotKey, ok := m.AccountKeyOfRank(rank2)
	if !ok || gotKey != k2 {
		t.Fatalf("AccountKeyOfRank(%d) = %x, %v, want k2", rank2, gotKey, ok)
	}
}

func TestIncrementCallCounter_RequiresRegistration(t *testing.T) {
	m := New(newFakeTreeOpener(), nil, nil)
	if err := m.IncrementAccountCallCounter(key(9)); err == nil {
		t.Fatalf("expected not-registered error")
	}
}

func TestRollbackLast_DiscardsPendingRegistration(t *testing.T) {
	m := New(newFakeTreeOpener(), nil, nil)
	k := key(1)
	m.PreExecution()
	if err := m.RegisterAccount(k); err != nil {
		t.Fatalf("register: %v", err)
	}
	m.RollbackLast()
	if m.IsRegisteredAccount(k) {
		t.Fatalf("expected registration rolled back")
	}
}

func TestFlushDelta_DiscardsPendingRegistration(t *testing.T) {
	m := New(newFakeTreeOpener(), nil, nil)
	k := key(1)
	if err := m.RegisterAccount(k); err != nil {
		t.Fatalf("register: %v", err)
	}
	m.FlushDelta()
	if m.IsRegisteredAccount(k) {
		t.Fatalf("expected registration discarded, not committed")
	}
}

func TestApplyChanges_PersistsToTree(t *testing.T) {
	opener := newFakeTreeOpener()
	m := New(opener, nil, nil)
	k := key(1)
	if err := m.RegisterAccount(k); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.ApplyChanges(5); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}
	tree := opener.accounts[k]
	if tree.index != 6 {
		t.Fatalf("tree.index = %d, want 6", tree.index)
	}
	if err := m.IncrementAccountCallCounter(k); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := m.ApplyChanges(6); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}
	if tree.counter != 1 {
		t.Fatalf("tree.counter = %d, want 1", tree.counter)
	}
}

func TestApplyChanges_PropagatesTreeOpenFailure(t *testing.T) {
	opener := newFakeTreeOpener()
	m := New(opener, nil, nil)
	k := key(1)
	if err := m.RegisterAccount(k); err != nil {
		t.Fatalf("register: %v", err)
	}
	opener.failOpen = true
	if err := m.ApplyChanges(0); err == nil {
		t.Fatalf("expected persistence error")
	}
}
