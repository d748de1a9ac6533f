// Package exec implements the Execution Context described in
// SPEC_FULL.md §4.5: two-tier ops-budget accounting, pre-execution
// snapshotting, and per-call commit/rollback across the registry, state,
// and coin managers as one atomic bundle.
package exec

import (
	"context"

	"github.com/cube-rollup/ledgernode/ledgererr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// RegistryManager is the subset of *registry.Manager the context needs.
type RegistryManager interface {
	PreExecution()
	RollbackLast()
	FlushDelta()
}

// StateManager is the subset of *state.Manager the context needs.
type StateManager interface {
	PreExecution()
	RollbackLast()
	FlushDelta()
}

// CoinManager is the subset of *coin.Manager the context needs.
type CoinManager interface {
	PreExecution()
	RollbackLast()
	FlushDelta()
}

// StackItem is one entry of the interpreter's return stack. A call
// succeeds only if the stack ends with exactly one boolean-true item.
type StackItem struct {
	IsBool    bool
	BoolValue bool
	// ErrValue holds an opaque error payload when the stack item encodes
	// an explicit error return rather than a boolean.
	ErrValue []byte
}

// Call is a decoded call entry (spec.md §3), reduced to the fields the
// execution context needs; the full decode (including calldata elements)
// lives in package entry.
type Call struct {
	Caller           [32]byte
	Contract         [32]byte
	MethodIndex      uint32
	Args             []any // opaque stack items handed to the interpreter
	OpsBudget        *uint32
	BaseOpsPrice     uint32
	OpsPriceOverhead *uint32
}

// InterpreterResult is what Interpreter.Run returns.
type InterpreterResult struct {
	ReturnStack          []StackItem
	OpsSpent             uint32
	NewExternalOpsCounter uint32
}

// Interpreter is the opcode dispatch table, an external collaborator per
// spec.md §1; the execution context only needs to invoke it and inspect
// its return stack.
type Interpreter interface {
	Run(ctx context.Context, caller, contract [32]byte, methodIndex uint32, args []any,
		timestamp uint64, opsBudget *uint32, opsPrice uint32, internalOpsCounter, externalOpsCounter uint32,
	) (InterpreterResult, error)
}

// PassedCall records one successfully committed call (spec.md §4.5).
type PassedCall struct {
	Call      Call
	OpsSpent  uint32
	FeesSpent uint64
}

// Metrics is the Prometheus surface the execution context updates on
// every exec_insert_call (SPEC_FULL.md §1.1 domain stack).
type Metrics struct {
	CallsPassed prometheus.Counter
	CallsFailed prometheus.Counter
	OpsSpent    prometheus.Counter
	Rollbacks   prometheus.Counter
}

// NewMetrics constructs a Metrics bundle named under the given
// namespace/subsystem (registering it is left to the caller), following the counter-per-outcome pattern common to
// Prometheus-instrumented Go services.
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		CallsPassed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "calls_passed_total",
			Help: "Number of calls successfully committed by exec_insert_call.",
		}),
		CallsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "calls_failed_total",
			Help: "Number of calls that failed and were rolled back.",
		}),
		OpsSpent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "ops_spent_total",
			Help: "Cumulative ops spent across committed calls.",
		}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "rollbacks_total",
			Help: "Number of manager rollbacks performed after a failed call.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.CallsPassed.Describe(ch)
	m.CallsFailed.Describe(ch)
	m.OpsSpent.Describe(ch)
	m.Rollbacks.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.CallsPassed.Collect(ch)
	m.CallsFailed.Collect(ch)
	m.OpsSpent.Collect(ch)
	m.Rollbacks.Collect(ch)
}

// Context coordinates the registry, state, and coin managers under one
// commit/rollback boundary (spec.md §4.5).
type Context struct {
	Registry RegistryManager
	State    StateManager
	Coin     CoinManager

	Interpreter Interpreter

	externalOpsCounter uint32
	baseOpsPrice       uint32
	timestamp          uint64

	passedCalls []PassedCall

	metrics *Metrics
	log     *logrus.Entry
}

// New constructs a Context. metrics and log may be nil.
func New(registry RegistryManager, state StateManager, coin CoinManager, interpreter Interpreter, baseOpsPrice uint32, timestamp uint64, metrics *Metrics, log *logrus.Entry) *Context {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Context{
		Registry:     registry,
		State:        state,
		Coin:         coin,
		Interpreter:  interpreter,
		baseOpsPrice: baseOpsPrice,
		timestamp:    timestamp,
		metrics:      metrics,
		log:          log,
	}
}

// ExternalOpsCounter reports the across-block external ops counter.
func (c *Context) ExternalOpsCounter() uint32 { return c.externalOpsCounter }

// PassedCalls returns the calls committed since the last FlushAll.
func (c *Context) PassedCalls() []PassedCall { return c.passedCalls }

// ExecInsertCall runs one call against the three managers, committing all
// of them on success or rolling all of them back (registry, then coin,
// then state, per spec.md §4.5 step 6) on any failure.
func (c *Context) ExecInsertCall(ctx context.Context, call Call) error {
	if call.BaseOpsPrice != c.baseOpsPrice {
		if c.metrics != nil {
			c.metrics.CallsFailed.Inc()
		}
		return ledgererr.New(ledgererr.CodeBaseOpsPriceMismatch, "exec: call base_ops_price does not match envelope")
	}

	c.Registry.PreExecution()
	c.State.PreExecution()
	c.Coin.PreExecution()

	opsPrice := c.baseOpsPrice
	if call.OpsPriceOverhead != nil {
		opsPrice += *call.OpsPriceOverhead
	}

	result, err := c.Interpreter.Run(ctx, call.Caller, call.Contract, call.MethodIndex, call.Args,
		c.timestamp, call.OpsBudget, opsPrice, 0, c.externalOpsCounter)
	if err == nil {
		err = validateReturnStack(result.ReturnStack)
	}
	if err != nil {
		c.rollbackAll()
		if c.metrics != nil {
			c.metrics.CallsFailed.Inc()
			c.metrics.Rollbacks.Inc()
		}
		c.log.WithError(err).Warn("exec: call failed, rolled back")
		return err
	}

	c.externalOpsCounter = result.NewExternalOpsCounter
	c.passedCalls = append(c.passedCalls, PassedCall{
		Call:      call,
		OpsSpent:  result.OpsSpent,
		FeesSpent: uint64(result.OpsSpent) * uint64(c.baseOpsPrice),
	})
	if c.metrics != nil {
		c.metrics.CallsPassed.Inc()
		c.metrics.OpsSpent.Add(float64(result.OpsSpent))
	}
	return nil
}

// rollbackAll rolls back registry, coin, then state. No manager lock is
// held across the call; each RollbackLast takes its own manager's lock.
func (c *Context) rollbackAll() {
	c.Registry.RollbackLast()
	c.Coin.RollbackLast()
	c.State.RollbackLast()
}

func validateReturnStack(stack []StackItem) error {
	if len(stack) != 1 {
		return ledgererr.New(ledgererr.CodeInvalidStackEnding, "exec: return stack did not end with exactly one item")
	}
	item := stack[0]
	if item.IsBool {
		if item.BoolValue {
			return nil
		}
		return ledgererr.New(ledgererr.CodeInvalidStackEnding, "exec: return stack ended with boolean false")
	}
	return ledgererr.Wrap(ledgererr.CodeReturnErrorFromStack, "exec: stack returned an explicit error item", errFromStackItem(item))
}

type stackError struct{ payload []byte }

func (e *stackError) Error() string { return "stack error item" }

func errFromStackItem(item StackItem) error {
	return &stackError{payload: item.ErrValue}
}

// FlushAll flushes all three managers' deltas and resets block-scoped
// state, matching the block/batch boundary described in spec.md §4.5.
func (c *Context) FlushAll() {
	c.Registry.FlushDelta()
	c.State.FlushDelta()
	c.Coin.FlushDelta()
	c.externalOpsCounter = 0
	c.passedCalls = nil
}
