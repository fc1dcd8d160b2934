package reactor

import "time"

// constImpl is a Run-only step that ignores its arguments and returns a
// fixed value, used throughout the test suite as filler for steps whose
// own behavior is not under test.
type constImpl struct {
	BaseImpl
	value interface{}
}

func (c *constImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	return RunOk(c.value)
}

// fnImpl adapts a plain function into an Impl, for tests that want
// bespoke Run behavior without declaring a new named type each time.
type fnImpl struct {
	BaseImpl
	run func(rc *RuntimeContext, args map[string]interface{}) RunOutcome
}

func (f *fnImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	return f.run(rc, args)
}

// failNTimesImpl fails its first n-1 runs with RunRetry, then succeeds.
type failNTimesImpl struct {
	BaseImpl
	n       int
	attempt int
	value   interface{}
}

func (f *failNTimesImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	f.attempt++
	if f.attempt < f.n {
		return RunRetry()
	}
	return RunOk(f.value)
}

func (f *failNTimesImpl) Backoff(attempt int, args map[string]interface{}, opts interface{}) (time.Duration, bool) {
	return time.Millisecond, true
}

// alwaysFailImpl fails Run every time with a fixed error and escalates to
// rollback on Compensate.
type alwaysFailImpl struct {
	BaseImpl
	err error
}

func (a *alwaysFailImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	return RunError(a.err)
}

// undoableImpl is a Run-only step, undoable, recording whether Undo ran.
type undoableImpl struct {
	UndoableImpl
	value  interface{}
	undone *bool
}

func (u *undoableImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	return RunOk(u.value)
}

func (u *undoableImpl) Undo(rc *RuntimeContext, value interface{}, args map[string]interface{}, opts interface{}) UndoOutcome {
	if u.undone != nil {
		*u.undone = true
	}
	return UndoOk()
}
