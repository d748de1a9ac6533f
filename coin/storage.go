package coin

// AccountTree is the persistence interface for one account's coin tree
// (spec.md §6: key 0x00 -> balance, key 0x01 -> global shadow allocs
// sum). Implemented in package storage by the tree that
// storage.DB.OpenCoinAccountTree returns.
type AccountTree interface {
	PutBalance(satoshis uint64) error
	PutGlobalShadowAllocsSum(satiSatoshis [16]byte) error
}

// ContractTree is the persistence interface for one contract's coin tree
// (spec.md §6: balance/allocs_sum sentinels plus one entry per allocated
// account). Implemented in package storage by the tree that
// storage.DB.OpenCoinContractTree returns.
type ContractTree interface {
	PutBalance(satoshis uint64) error
	PutAllocsSum(satoshis uint64) error
	PutAlloc(account [32]byte, satiSatoshis [16]byte) error
	DeleteAlloc(account [32]byte) error
}

// TreeOpener opens (or creates) the persistent coin trees for a principal.
type TreeOpener interface {
	OpenCoinAccountTree(key [32]byte) (AccountTree, error)
	OpenCoinContractTree(id [32]byte) (ContractTree, error)
}
