package coin

// Op identifies which coin manager entry point an opcode binds to. The
// values exist so a future opcode dispatch table (out of scope here, per
// spec.md §1) has an unambiguous, non-colliding binding for the balance
// family of opcodes, resolving the BalanceOp/ExtBalanceOp collision
// SPEC_FULL.md §9 calls out.
type Op uint8

const (
	// BalanceOp reads an account's or contract's own balance.
	BalanceOp Op = 0x20
	// ExtBalanceOp reads another principal's balance (cross-contract
	// read), kept at a distinct value from BalanceOp.
	ExtBalanceOp Op = 0x21
)
