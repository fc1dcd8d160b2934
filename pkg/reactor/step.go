package reactor

import "time"

// RunOutcomeKind tags the variant of a RunOutcome.
type RunOutcomeKind int

const (
	runOk RunOutcomeKind = iota
	runOkEmit
	runError
	runRetry
	runHalt
)

// RunOutcome is the result of a step's Run call: success (optionally with
// dynamically emitted steps), failure routed to compensation, a request to
// re-enqueue, or a voluntary halt.
type RunOutcome struct {
	kind     RunOutcomeKind
	value    interface{}
	newSteps []*Step
	err      error
}

// RunOk reports a successful run.
func RunOk(value interface{}) RunOutcome { return RunOutcome{kind: runOk, value: value} }

// RunOkEmit reports a successful run that also injects newSteps into the
// plan.
func RunOkEmit(value interface{}, newSteps []*Step) RunOutcome {
	return RunOutcome{kind: runOkEmit, value: value, newSteps: newSteps}
}

// RunError reports a failed run; the engine routes it to Compensate.
func RunError(err error) RunOutcome { return RunOutcome{kind: runError, err: err} }

// RunRetry requests the step be re-enqueued, counting against max_retries.
func RunRetry() RunOutcome { return RunOutcome{kind: runRetry} }

// RunRetryWith is RunRetry carrying a reason, surfaced if retries exhaust.
func RunRetryWith(reason error) RunOutcome { return RunOutcome{kind: runRetry, err: reason} }

// RunHalt stashes reason as the step's partial result and transitions the
// reactor to Halted.
func RunHalt(reason error) RunOutcome { return RunOutcome{kind: runHalt, err: reason} }

func (o RunOutcome) isRetry() bool { return o.kind == runRetry }

// CompensationOutcomeKind tags the variant of a CompensationOutcome.
type CompensationOutcomeKind int

const (
	compensateOk CompensationOutcomeKind = iota
	compensateContinue
	compensateRetry
	compensateError
)

// CompensationOutcome is the result of a step's Compensate call.
type CompensationOutcome struct {
	kind  CompensationOutcomeKind
	value interface{}
	err   error
}

// CompensateOk proceeds with rollback: undo earlier successful steps and
// propagate the original error.
func CompensateOk() CompensationOutcome { return CompensationOutcome{kind: compensateOk} }

// CompensateContinue substitutes value as if Run had succeeded with it.
func CompensateContinue(value interface{}) CompensationOutcome {
	return CompensationOutcome{kind: compensateContinue, value: value}
}

// CompensateRetry re-attempts Run; it counts toward MaxRetries using the
// same counter as a Run-level retry. The failing Run does not itself
// increment the counter; this retry increments it once.
func CompensateRetry() CompensationOutcome { return CompensationOutcome{kind: compensateRetry} }

// CompensateRetryWith is CompensateRetry carrying a reason.
func CompensateRetryWith(reason error) CompensationOutcome {
	return CompensationOutcome{kind: compensateRetry, err: reason}
}

// CompensateError replaces the error before rollback begins.
func CompensateError(err error) CompensationOutcome {
	return CompensationOutcome{kind: compensateError, err: err}
}

// UndoOutcomeKind tags the variant of an UndoOutcome.
type UndoOutcomeKind int

const (
	undoOk UndoOutcomeKind = iota
	undoRetry
	undoError
)

// UndoOutcome is the result of a step's Undo call during rollback.
type UndoOutcome struct {
	kind UndoOutcomeKind
	err  error
}

// UndoOk pops the step off the undo stack and continues unwinding.
func UndoOk() UndoOutcome { return UndoOutcome{kind: undoOk} }

// UndoRetry re-attempts Undo, bounded by MaxUndoRetries.
func UndoRetry() UndoOutcome { return UndoOutcome{kind: undoRetry} }

// UndoError collects err into the rollback's error list; unwinding always
// continues to the next stack entry regardless.
func UndoError(err error) UndoOutcome { return UndoOutcome{kind: undoError, err: err} }

// MaxUndoRetries bounds Undo retries during rollback before
// UndoRetriesExceededError is surfaced for that step.
const MaxUndoRetries = 5

// Impl is the behavior surface of a step implementation. Everything else
// about a step (arguments, retries, guards) is opaque engine bookkeeping;
// Impl is the only part a user provides.
type Impl interface {
	// Run executes the step body given its resolved arguments, the
	// reactor's runtime context, and impl-specific options.
	Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome

	// Compensate reacts to a Run failure: retry, substitute a value, or
	// escalate to rollback.
	Compensate(rc *RuntimeContext, cause error, args map[string]interface{}, opts interface{}) CompensationOutcome

	// Undo reverses a previously successful Run during rollback.
	Undo(rc *RuntimeContext, value interface{}, args map[string]interface{}, opts interface{}) UndoOutcome

	// Backoff returns a delay to wait before the next retry attempt, if
	// any.
	Backoff(attempt int, args map[string]interface{}, opts interface{}) (time.Duration, bool)
}

// Undoable is an optional capability a step Impl may implement to mark
// that its Undo is a real compensating action rather than the inert
// default; only undoable steps are pushed onto the rollback undo stack.
type Undoable interface {
	Undoable() bool
}

// BaseImpl supplies the default behavior: Compensate returns Ok
// (escalate to rollback), Undo is a no-op, Backoff returns no delay, and
// the step is not undoable. Embed it in a concrete Impl and override
// what differs.
type BaseImpl struct{}

func (BaseImpl) Compensate(*RuntimeContext, error, map[string]interface{}, interface{}) CompensationOutcome {
	return CompensateOk()
}

func (BaseImpl) Undo(*RuntimeContext, interface{}, map[string]interface{}, interface{}) UndoOutcome {
	return UndoOk()
}

func (BaseImpl) Backoff(int, map[string]interface{}, interface{}) (time.Duration, bool) {
	return 0, false
}

func (BaseImpl) Undoable() bool { return false }

// UndoableImpl is BaseImpl for steps that want their Undo honored; embed
// this instead of BaseImpl once Undo is overridden.
type UndoableImpl struct{ BaseImpl }

func (UndoableImpl) Undoable() bool { return true }

// GuardOutcomeKind tags the variant of a GuardOutcome.
type GuardOutcomeKind int

const (
	guardProceed GuardOutcomeKind = iota
	guardSubstitute
	guardSkip
)

// GuardOutcome is returned by a Guard predicate evaluated before a step
// runs: proceed normally, short-circuit with a substitute result, or
// skip the step entirely (as if it had produced no result).
type GuardOutcome struct {
	kind  GuardOutcomeKind
	value interface{}
}

// GuardProceed lets the step run normally.
func GuardProceed() GuardOutcome { return GuardOutcome{kind: guardProceed} }

// GuardSubstituteResult short-circuits Run with value as if it had
// succeeded.
func GuardSubstituteResult(value interface{}) GuardOutcome {
	return GuardOutcome{kind: guardSubstitute, value: value}
}

// GuardSkip short-circuits the step without producing a result.
func GuardSkip() GuardOutcome { return GuardOutcome{kind: guardSkip} }

// Guard is a predicate evaluated before a step is invoked.
type Guard func(rc *RuntimeContext, args map[string]interface{}) GuardOutcome

// AsyncPredicate decides, given the executor's options, whether a step
// should run asynchronously.
type AsyncPredicate func(opts Options) bool

// Async returns an AsyncPredicate constant at b.
func Async(b bool) AsyncPredicate { return func(Options) bool { return b } }

// InfiniteRetries marks a step as retryable without bound.
const InfiniteRetries = -1

// Step is the engine's view of one unit of work: opaque Impl plus the
// bookkeeping the planner, runner, and saga engine need.
type Step struct {
	// Name uniquely identifies the step within one reactor.
	Name string
	// Impl is the step's behavior.
	Impl Impl
	// Opts is an opaque value handed back to Impl's methods.
	Opts interface{}
	// Arguments binds named inputs to value sources.
	Arguments []Argument
	// Async decides sync/async scheduling; nil means synchronous.
	Async AsyncPredicate
	// MaxRetries is the retry budget, or InfiniteRetries.
	MaxRetries int
	// ContextPatch is merged into the runtime context for this step's
	// invocation only.
	ContextPatch map[string]interface{}
	// Ref is the retry-counter key, stable across retries. Defaults to
	// Name when empty.
	Ref string
	// Guards run, in order, before Run; the first non-Proceed outcome
	// short-circuits invocation.
	Guards []Guard
	// Transform, if set, receives the assembled arguments map and its
	// result (which MUST be a map) replaces it.
	Transform func(map[string]interface{}) (map[string]interface{}, error)

	// Elements binds enclosing map/iterator scope names to the current
	// element value, consumed by Element() templates in this step's
	// arguments. Set by the Map/Iterator primitive when it emits a
	// per-element subgraph; nested scopes accumulate entries.
	Elements map[string]interface{}

	// synthetic keeps a step off the undo stack. Nothing in this package
	// sets it: argument and step-wide transforms run inline during
	// argument resolution, not as separate engine-generated steps.
	synthetic bool
}

func (s *Step) ref() string {
	if s.Ref != "" {
		return s.Ref
	}
	return s.Name
}

func (s *Step) isAsync(opts Options) bool {
	if s.Async == nil {
		return false
	}
	return s.Async(opts)
}

func (s *Step) isUndoable() bool {
	if s.synthetic || s.Impl == nil {
		return false
	}
	if u, ok := s.Impl.(Undoable); ok {
		return u.Undoable()
	}
	return false
}

// NewStep builds a Step, the same constructor available to dynamically
// emitted steps from a running step's OkEmit.
func NewStep(name string, impl Impl, arguments []Argument, opts ...StepOption) *Step {
	s := &Step{Name: name, Impl: impl, Arguments: arguments, MaxRetries: 0}
	for _, o := range opts {
		o(s)
	}
	return s
}

// StepOption configures optional Step fields at construction time.
type StepOption func(*Step)

func WithOpts(opts interface{}) StepOption  { return func(s *Step) { s.Opts = opts } }
func WithAsync(p AsyncPredicate) StepOption { return func(s *Step) { s.Async = p } }
func WithMaxRetries(n int) StepOption       { return func(s *Step) { s.MaxRetries = n } }
func WithContextPatch(p map[string]interface{}) StepOption {
	return func(s *Step) { s.ContextPatch = p }
}
func WithRef(ref string) StepOption    { return func(s *Step) { s.Ref = ref } }
func WithGuards(g ...Guard) StepOption { return func(s *Step) { s.Guards = g } }
func WithTransform(fn func(map[string]interface{}) (map[string]interface{}, error)) StepOption {
	return func(s *Step) { s.Transform = fn }
}
