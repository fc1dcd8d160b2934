package reactor

import (
	"context"
	"fmt"
)

// GroupHook runs once before the grouped reactor, sharing the outer
// step's runtime context and the resolved arguments it is about to run
// with.
type GroupHook func(rc *RuntimeContext, args map[string]interface{}) error

// AfterHook runs once after the grouped reactor completes successfully,
// given the inner reactor's result map.
type AfterHook func(rc *RuntimeContext, result map[string]interface{}) error

// Group builds a step that wraps inner with a before/after hook pair:
// beforeAll runs first and can veto the group entirely by returning an
// error (routed to Compensate like any other Run failure); inner then
// runs to completion; afterAll runs only once inner succeeds, against
// inner's result map, and an afterAll failure fails the group step in
// turn.
func Group(name string, inner *Reactor, arguments []Argument, beforeAll GroupHook, afterAll AfterHook, opts ...StepOption) *Step {
	impl := &groupImpl{inner: inner, before: beforeAll, after: afterAll}
	return NewStep(name, impl, arguments, opts...)
}

type groupImpl struct {
	BaseImpl
	inner  *Reactor
	before GroupHook
	after  AfterHook
}

func (g *groupImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	if g.before != nil {
		if err := g.before(rc, args); err != nil {
			return RunError(fmt.Errorf("reactor: group %q before_all: %w", rc.CurrentStep(), err))
		}
	}

	composed := make(map[string]bool, len(rc.composedReactors)+1)
	for id := range rc.composedReactors {
		composed[id] = true
	}
	composed[g.inner.id] = true

	childOpts := DefaultOptions()
	if o, ok := opts.(Options); ok {
		childOpts = o
	}
	childOpts.ConcurrencyKey = rc.ConcurrencyKey()

	value, halted, err := runSeeded(context.Background(), g.inner.clone(), args, childOpts, composed)
	if halted != nil {
		return RunError(&InvalidIteratorStateError{Step: rc.CurrentStep(), Phase: "group-halt-unsupported"})
	}
	if err != nil {
		return RunError(err)
	}

	if g.after != nil {
		result, ok := asStringMap(value)
		if !ok {
			return RunError(&MissingArgumentError{Step: rc.CurrentStep(), Name: "after_all result map"})
		}
		if err := g.after(rc, result); err != nil {
			return RunError(fmt.Errorf("reactor: group %q after_all: %w", rc.CurrentStep(), err))
		}
	}
	return RunOk(value)
}
