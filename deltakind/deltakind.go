// Package deltakind provides the generic ephemeral-delta shape shared by
// every manager in this repository: a pending mutation set that is
// deep-copied on pre_execution, restored on rollback, and discarded on
// flush. The registry, state, and coin managers each instantiate it with
// their own value type; a future graveyard, flame, or privileges manager
// (out of scope here, see SPEC_FULL.md §4.7) would do the same.
package deltakind

// Journal holds one ephemeral delta of type D plus a snapshot taken at the
// last pre_execution call. Managers embed a Journal and define their own D.
type Journal[D any] struct {
	current  D
	snapshot *D
	cloneFn  func(D) D
}

// NewJournal constructs a Journal with an initial (zero) delta and the
// clone function the owning manager uses to deep-copy its delta shape.
func NewJournal[D any](zero D, clone func(D) D) *Journal[D] {
	return &Journal[D]{current: zero, cloneFn: clone}
}

// Current returns the live, mutable delta.
func (j *Journal[D]) Current() *D { return &j.current }

// PreExecution snapshots the current delta; a subsequent RollbackLast
// restores exactly this snapshot.
func (j *Journal[D]) PreExecution() {
	snap := j.cloneFn(j.current)
	j.snapshot = &snap
}

// RollbackLast restores the most recent PreExecution snapshot. It is a
// no-op if PreExecution was never called (nothing to roll back to).
func (j *Journal[D]) RollbackLast() {
	if j.snapshot == nil {
		return
	}
	j.current = j.cloneFn(*j.snapshot)
	j.snapshot = nil
}

// Flush discards the delta and any pending snapshot, leaving a zero delta
// in place. Callers supply the zero value since D may not be nil-able.
func (j *Journal[D]) Flush(zero D) {
	j.current = zero
	j.snapshot = nil
}
