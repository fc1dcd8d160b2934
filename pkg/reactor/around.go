package reactor

import "context"

// Next invokes the wrapped reactor with the step's resolved arguments as
// its inputs, returning its return value or its error.
type Next func() (interface{}, error)

// AroundFn wraps a nested reactor's execution, given its resolved
// arguments and a Next callback that actually runs it — deciding
// whether/when to call next, and what to do with its result or error.
type AroundFn func(rc *RuntimeContext, args map[string]interface{}, next Next) (interface{}, error)

// Around builds a step that lets a user-supplied function wrap a nested
// reactor's execution, e.g. to add timing, retries local to just this
// composition, or conditional short-circuiting, without inner needing
// to know it is wrapped — the same shape as HTTP middleware calling
// through an engine-provided next.
func Around(name string, inner *Reactor, arguments []Argument, wrap AroundFn, opts ...StepOption) *Step {
	impl := &aroundImpl{inner: inner, wrap: wrap}
	return NewStep(name, impl, arguments, opts...)
}

type aroundImpl struct {
	BaseImpl
	inner *Reactor
	wrap  AroundFn
}

func (a *aroundImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	composed := make(map[string]bool, len(rc.composedReactors)+1)
	for id := range rc.composedReactors {
		composed[id] = true
	}
	composed[a.inner.id] = true

	childOpts := DefaultOptions()
	if o, ok := opts.(Options); ok {
		childOpts = o
	}
	childOpts.ConcurrencyKey = rc.ConcurrencyKey()

	next := func() (interface{}, error) {
		value, halted, err := runSeeded(context.Background(), a.inner.clone(), args, childOpts, composed)
		if halted != nil {
			return nil, &InvalidIteratorStateError{Step: rc.CurrentStep(), Phase: "around-halt-unsupported"}
		}
		return value, err
	}

	value, err := a.wrap(rc, args, next)
	if err != nil {
		return RunError(err)
	}
	return RunOk(value)
}
