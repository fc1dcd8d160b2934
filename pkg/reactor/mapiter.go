package reactor

import "fmt"

// ElementBuilder constructs the step that processes one element of a
// Map/Iterator, given its index and value. The returned step's own
// Arguments may reference Element(scopeName) (set by the engine before
// the step is planned) to read the current element.
type ElementBuilder func(index int, element interface{}) *Step

// ElementRef names, for a given index, the step ElementBuilder produced
// for that element — used to gather results once every element has run.
type ElementRef func(index int) string

const mapItemsArg = "__map_items"

// Map builds a map/iterator step: given a slice-valued argument it
// drives Initialise -> Generating -> Finalising by self-recursively
// emitting one driver step per remaining element (RunOkEmit), each
// carrying that element's subgraph, until every element has been
// dispatched, then emits a Finalising step that gathers every element's
// retained result into the slice returned by this step. Self-requeue
// through the planner keeps deep iterations off the call stack.
func Map(name string, items Template, scopeName string, build ElementBuilder, ref ElementRef, opts ...StepOption) *Step {
	impl := &mapIterImpl{scopeName: scopeName, build: build, ref: ref}
	return NewStep(name, impl, []Argument{Arg(mapItemsArg, items)}, opts...)
}

// MapResult names the step whose retained result is the aggregated
// slice produced by the Map step named name — the name to pass to
// Reactor.Return or reference with Result() to consume a Map's output.
func MapResult(name string) string { return name + "/finalise" }

type mapIterImpl struct {
	BaseImpl
	scopeName string
	build     ElementBuilder
	ref       ElementRef
}

func (m *mapIterImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	items, ok := toSlice(args[mapItemsArg])
	if !ok {
		return RunError(&InvalidIteratorStateError{Step: rc.CurrentStep(), Phase: "initialise-non-slice-items"})
	}
	return m.advance(rc.CurrentStep(), items, 0)
}

// advance emits the index'th element's subgraph plus its own
// self-recursive continuation (Generating), or — once index reaches the
// end — the Finalising aggregation step.
func (m *mapIterImpl) advance(driverName string, items []interface{}, index int) RunOutcome {
	if index >= len(items) {
		refs := make([]string, len(items))
		for i := range items {
			refs[i] = m.ref(i)
		}
		finalise := NewStep(driverName+"/finalise", &mapFinaliseImpl{count: len(refs)}, argsForRefs(refs))
		return RunOkEmit(nil, []*Step{finalise})
	}

	elemStep := m.build(index, items[index])
	if elemStep.Elements == nil {
		elemStep.Elements = map[string]interface{}{}
	}
	elemStep.Elements[m.scopeName] = items[index]

	// The continuation references every element result emitted so far.
	// Result retention is reference-driven, so without these the purge
	// after an element completes would drop its result before the
	// Finalising step exists to claim it.
	retained := make([]Argument, 0, index+1)
	for j := 0; j <= index; j++ {
		retained = append(retained, Drop(Result(m.ref(j))))
	}
	next := NewStep(fmt.Sprintf("%s/gen/%d", driverName, index+1),
		&mapContinueImpl{parent: m, driverName: driverName, items: items, index: index + 1}, retained)

	return RunOkEmit(nil, []*Step{elemStep, next})
}

// mapContinueImpl is the Generating phase's self-recursive driver: a
// fresh Impl value per emitted step, since per-step context writes do
// not persist across dynamically emitted steps. driverName is
// threaded through unchanged (rather than re-read from rc.CurrentStep,
// which would be this continuation's own generated name) so the final
// Finalising step's name stays derivable from the original Map step's
// name alone.
type mapContinueImpl struct {
	BaseImpl
	parent     *mapIterImpl
	driverName string
	items      []interface{}
	index      int
}

func (c *mapContinueImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	return c.parent.advance(c.driverName, c.items, c.index)
}

func argsForRefs(refs []string) []Argument {
	args := make([]Argument, len(refs))
	for i, ref := range refs {
		args[i] = Arg(fmt.Sprintf("e%d", i), Result(ref))
	}
	return args
}

// mapFinaliseImpl gathers every element's result, in index order, into
// the slice this Map step ultimately returns.
type mapFinaliseImpl struct {
	BaseImpl
	count int
}

func (f *mapFinaliseImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	out := make([]interface{}, f.count)
	for i := range out {
		out[i] = args[fmt.Sprintf("e%d", i)]
	}
	return RunOk(out)
}

func toSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case nil:
		return nil, true
	default:
		return nil, false
	}
}
