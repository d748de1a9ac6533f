// Package ledgererr defines the typed error-kind taxonomy shared by the
// registry, state, coin, execution, and codec packages, following the
// consensus.ErrorCode / consensus.TxError pattern.
package ledgererr

import "fmt"

// Code identifies a category of failure. Codes are stable strings so that
// they remain meaningful in logs across binary versions.
type Code string

const (
	// Construction.
	CodeTreeOpen             Code = "TREE_OPEN"
	CodeTreeIteration        Code = "TREE_ITERATION"
	CodeMalformedSentinel    Code = "MALFORMED_SENTINEL"
	CodeInvariantViolatedAtLoad Code = "INVARIANT_VIOLATED_AT_LOAD"

	// Registration.
	CodeAlreadyRegisteredEphemeral Code = "ALREADY_REGISTERED_EPHEMERAL"
	CodeAlreadyRegisteredPermanent Code = "ALREADY_REGISTERED_PERMANENT"
	CodeReservedKeyCollision       Code = "RESERVED_KEY_COLLISION"
	CodeNotRegistered              Code = "NOT_REGISTERED"

	// Balance arithmetic.
	CodeBalanceUnderflow       Code = "BALANCE_UNDERFLOW"
	CodeBelowAllocsSum         Code = "BELOW_ALLOCS_SUM"
	CodeUnknownPrincipal       Code = "UNKNOWN_PRINCIPAL"

	// Shadow ops.
	CodeJustAllocatedEphemeral    Code = "JUST_ALLOCATED_EPHEMERAL"
	CodeJustDeallocatedEphemeral  Code = "JUST_DEALLOCATED_EPHEMERAL"
	CodeAllocNonZeroOnDealloc     Code = "ALLOC_NONZERO_ON_DEALLOC"
	CodeAllocUnderflow            Code = "ALLOC_UNDERFLOW"
	CodeAllocsSumExceedsBalance   Code = "ALLOCS_SUM_EXCEEDS_BALANCE"
	CodeOperationOnZeroSum        Code = "OPERATION_ON_ZERO_SUM"
	CodeAlreadyAllocated          Code = "ALREADY_ALLOCATED"
	CodeAllocsSumWouldGoBelowZero Code = "ALLOCS_SUM_WOULD_GO_BELOW_ZERO"

	// State.
	CodeContractNotRegistered  Code = "CONTRACT_NOT_REGISTERED"
	CodeStateNotFoundOnRemove  Code = "STATE_NOT_FOUND_ON_REMOVE"

	// Codec.
	CodeUnderflow              Code = "CODEC_UNDERFLOW"
	CodeInvalidPoint           Code = "CODEC_INVALID_POINT"
	CodeInvalidLength          Code = "CODEC_INVALID_LENGTH"
	CodeAtomicRangeViolation   Code = "CODEC_ATOMIC_RANGE_VIOLATION"
	CodeSignatureVerification  Code = "CODEC_SIGNATURE_VERIFICATION_FAILED"

	// Execution.
	CodeBaseOpsPriceMismatch Code = "BASE_OPS_PRICE_MISMATCH"
	CodeOpsBudgetExceeded    Code = "OPS_BUDGET_EXCEEDED"
	CodeInvalidStackEnding   Code = "INVALID_STACK_ENDING"
	CodeReturnErrorFromStack Code = "RETURN_ERROR_FROM_STACK"

	// Fatal.
	CodeFatalPersistence Code = "FATAL_PERSISTENCE"
)

// Error is the concrete error type carried across manager boundaries. It
// always carries a Code so callers can switch on category without string
// matching, and an optional wrapped cause for %w chains.
type Error struct {
	Code  Code
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Cause)
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, ledgererr.New(CodeX, "")) to match on Code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New builds a typed error with no wrapped cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Msg: msg}
}

// Wrap builds a typed error wrapping cause.
func Wrap(code Code, msg string, cause error) error {
	return &Error{Code: code, Msg: msg, Cause: cause}
}

// Sentinel returns a zero-message error usable as an errors.Is target.
func Sentinel(code Code) error { return &Error{Code: code} }

// CodeOf extracts the Code from err, if it is (or wraps) a *Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	for err != nil {
		if as, ok := err.(*Error); ok {
			e = as
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.Code, true
}

// FatalPersistence wraps a persistence-layer error that apply_changes
// encountered; callers (node operative code, out of scope here) are
// expected to halt the process rather than let in-memory and on-disk
// state diverge.
func FatalPersistence(cause error) error {
	return Wrap(CodeFatalPersistence, "persistence failed during apply_changes; node must halt", cause)
}
