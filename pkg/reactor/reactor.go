package reactor

import (
	"github.com/google/uuid"
)

// State is the reactor's lifecycle phase.
type State int

const (
	Pending State = iota
	Executing
	Halted
	Failed
	Successful
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Executing:
		return "executing"
	case Halted:
		return "halted"
	case Failed:
		return "failed"
	case Successful:
		return "successful"
	default:
		return "unknown"
	}
}

// undoEntry is one successful, undoable step retained for rollback, with
// its originally resolved arguments snapshotted so undo does not depend
// on intermediate results that may since have been purged.
type undoEntry struct {
	step  *Step
	args  map[string]interface{}
	ctx   map[string]interface{}
	value interface{}
}

// RuntimeContext is the mutable execution context carried across one
// Run invocation and visible to step Impls, guards, middleware, and the
// builtin control-flow primitives. It is read/written only by the
// driving executor goroutine (and, for a field's own nested map, by the
// step body it was handed to), so no locking is needed.
type RuntimeContext struct {
	data             map[string]interface{}
	inputs           map[string]interface{}
	composedReactors map[string]bool
	concurrencyKey   string
	currentStep      string
}

// NewRuntimeContext builds an empty runtime context seeded with user data.
func NewRuntimeContext(user map[string]interface{}) *RuntimeContext {
	data := make(map[string]interface{}, len(user))
	for k, v := range user {
		data[k] = v
	}
	return &RuntimeContext{data: data, composedReactors: map[string]bool{}}
}

func (c *RuntimeContext) clone() *RuntimeContext {
	nc := &RuntimeContext{
		data:           make(map[string]interface{}, len(c.data)),
		inputs:         c.inputs,
		concurrencyKey: c.concurrencyKey,
		currentStep:    c.currentStep,
	}
	for k, v := range c.data {
		nc.data[k] = v
	}
	nc.composedReactors = make(map[string]bool, len(c.composedReactors))
	for k, v := range c.composedReactors {
		nc.composedReactors[k] = v
	}
	return nc
}

// Get reads a user context value.
func (c *RuntimeContext) Get(key string) (interface{}, bool) {
	v, ok := c.data[key]
	return v, ok
}

// Set writes a user context value.
func (c *RuntimeContext) Set(key string, value interface{}) {
	c.data[key] = value
}

// CurrentStep is the name of the step currently being invoked.
func (c *RuntimeContext) CurrentStep() string { return c.currentStep }

// ConcurrencyKey is the shared concurrency pool key for this execution,
// threaded into nested reactors by Compose/Group/Around so their combined
// parallelism honors one limit.
func (c *RuntimeContext) ConcurrencyKey() string { return c.concurrencyKey }

func (c *RuntimeContext) isComposed(reactorID string) bool {
	return c.composedReactors[reactorID]
}

func (c *RuntimeContext) withComposed(reactorID string) *RuntimeContext {
	nc := c.clone()
	nc.composedReactors[reactorID] = true
	return nc
}

func (c *RuntimeContext) patched(patch map[string]interface{}) *RuntimeContext {
	if len(patch) == 0 {
		return c
	}
	nc := c.clone()
	for k, v := range patch {
		nc.data[k] = v
	}
	return nc
}

// Reactor aggregates a workflow's inputs, not-yet-planned steps, the
// planned DAG, retained intermediate results, the undo stack, the
// designated return step, and lifecycle state.
type Reactor struct {
	id         string
	inputNames []string
	steps      []*Step // unplanned, including dynamically emitted ones
	graph      *planGraph
	results    map[string]interface{}
	undoStack  []undoEntry
	returnName string
	state      State
	middleware []Middleware

	inputTransforms map[string]Fn1

	// stashedExec is populated when Halted, letting Resume pick the executor
	// back up where it left off.
	stashedExec *execState
}

// New builds an empty, Pending reactor with a fresh stable identity.
func New() *Reactor {
	return &Reactor{
		id:      uuid.New().String(),
		results: map[string]interface{}{},
		state:   Pending,
	}
}

// ID is the reactor's stable identity, used to detect composition
// recursion.
func (r *Reactor) ID() string { return r.id }

// State reports the reactor's current lifecycle phase.
func (r *Reactor) State() State { return r.state }

// AddInput declares a reactor-level input name.
func (r *Reactor) AddInput(name string) *Reactor {
	r.inputNames = append(r.inputNames, name)
	return r
}

// AddInputT declares an input whose supplied value is passed through
// transform before any step observes it.
func (r *Reactor) AddInputT(name string, transform Fn1) *Reactor {
	r.inputNames = append(r.inputNames, name)
	if r.inputTransforms == nil {
		r.inputTransforms = map[string]Fn1{}
	}
	r.inputTransforms[name] = transform
	return r
}

// AddStep appends a step to the not-yet-planned set.
func (r *Reactor) AddStep(s *Step) *Reactor {
	r.steps = append(r.steps, s)
	return r
}

// Return designates which step's result becomes the reactor's overall
// return value.
func (r *Reactor) Return(name string) *Reactor {
	r.returnName = name
	return r
}

// AddMiddleware appends a lifecycle/event handler, dispatched in the
// order added.
func (r *Reactor) AddMiddleware(m Middleware) *Reactor {
	r.middleware = append(r.middleware, m)
	return r
}

// clone produces a fresh Reactor with the same declared shape (inputs,
// steps, return, middleware) but Pending state and no plan/results/undo
// stack — used by Compose/Group/Around to run a throwaway or nested
// child reactor without mutating the parent's builder-time definition.
func (r *Reactor) clone() *Reactor {
	nr := New()
	nr.inputNames = append([]string(nil), r.inputNames...)
	nr.steps = append([]*Step(nil), r.steps...)
	nr.returnName = r.returnName
	nr.middleware = append([]Middleware(nil), r.middleware...)
	if len(r.inputTransforms) > 0 {
		nr.inputTransforms = make(map[string]Fn1, len(r.inputTransforms))
		for k, v := range r.inputTransforms {
			nr.inputTransforms[k] = v
		}
	}
	return nr
}
