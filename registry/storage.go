package registry

// Tree is the persistence surface one principal's registry tree exposes
// (spec.md §6: "Registry account tree... keys 0x00 -> registry_index;
// 0x01 -> call_counter", and the contract tree analogue — identical
// shape, so one interface serves both).
type Tree interface {
	PutRegistryIndex(index uint32) error
	PutCallCounter(counter uint64) error
}

// TreeOpener opens the per-principal registry tree a Manager persists
// registrations and call-counter increments into.
type TreeOpener interface {
	OpenRegistryAccountTree(key [32]byte) (Tree, error)
	OpenRegistryContractTree(id [32]byte) (Tree, error)
}
