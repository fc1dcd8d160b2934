package reactor

import (
	"fmt"
	"runtime/debug"
)

// invocation is the outcome of resolving a step's arguments and invoking
// its Impl, computed off the driving goroutine (possibly inside a worker
// goroutine for async steps) and handed back for the driver to interpret
// sequentially — the driver is the only goroutine that mutates
// reactor/exec state.
type invocation struct {
	step    *Step
	args    map[string]interface{}
	ctxData map[string]interface{}
	outcome RunOutcome
	guarded bool
}

func cloneStringMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// resolveArguments resolves every Argument of a step against the given
// scope, applies per-argument transforms, drops the "_" placeholder, and
// returns the assembled arguments map.
func resolveArguments(s *Step, sc scope) (map[string]interface{}, error) {
	args := make(map[string]interface{}, len(s.Arguments))
	for _, a := range s.Arguments {
		v, err := sc.resolve(a.Source)
		if err != nil {
			return nil, err
		}
		if a.Transform != nil {
			tv, terr := a.Transform(v)
			if terr != nil {
				return nil, &TransformError{Step: s.Name, Input: v, Cause: terr}
			}
			v = tv
		}
		if a.Name == dropArgument {
			continue
		}
		args[a.Name] = v
	}
	return args, nil
}

// invokeStep resolves arguments, applies any step-wide transform and
// guards, and — unless a guard short-circuited — invokes Impl.Run.
func invokeStep(s *Step, rc *RuntimeContext, results map[string]interface{}) invocation {
	sc := scope{inputs: rc.inputs, results: results, elements: s.Elements}
	args, err := resolveArguments(s, sc)
	if err != nil {
		return invocation{step: s, outcome: RunError(err)}
	}

	if s.Transform != nil {
		out, terr := s.Transform(args)
		if terr != nil {
			return invocation{step: s, args: args, outcome: RunError(&TransformError{Step: s.Name, Input: args, Cause: terr})}
		}
		args = out
	}

	stepRC := rc.clone()
	stepRC.currentStep = s.Name
	stepRC = stepRC.patched(s.ContextPatch)

	for _, g := range s.Guards {
		switch outcome := g(stepRC, args); outcome.kind {
		case guardSubstitute:
			return invocation{step: s, args: args, ctxData: cloneStringMap(stepRC.data), outcome: RunOk(outcome.value), guarded: true}
		case guardSkip:
			return invocation{step: s, args: args, ctxData: cloneStringMap(stepRC.data), outcome: RunOk(nil), guarded: true}
		}
	}

	outcome := safeRun(stepRC, s, args)
	return invocation{step: s, args: args, ctxData: cloneStringMap(stepRC.data), outcome: outcome}
}

// safeRun invokes Impl.Run, converting a panic into a RunStepError
// rather than letting it unwind the executor.
func safeRun(rc *RuntimeContext, s *Step, args map[string]interface{}) (outcome RunOutcome) {
	defer func() {
		if p := recover(); p != nil {
			outcome = RunError(&RunStepError{Step: s.Name, Cause: fmt.Errorf("%v", p), Stacktrace: string(debug.Stack())})
		}
	}()
	return s.Impl.Run(rc, args, s.Opts)
}

// safeCompensate invokes Impl.Compensate, converting a panic into a
// CompensateStepError.
func safeCompensate(rc *RuntimeContext, s *Step, cause error, args map[string]interface{}) (outcome CompensationOutcome) {
	defer func() {
		if p := recover(); p != nil {
			outcome = CompensateError(&CompensateStepError{Step: s.Name, Cause: fmt.Errorf("%v", p)})
		}
	}()
	return s.Impl.Compensate(rc, cause, args, s.Opts)
}

// safeUndo invokes Impl.Undo, converting a panic into an UndoStepError.
func safeUndo(rc *RuntimeContext, s *Step, value interface{}, args map[string]interface{}) (outcome UndoOutcome) {
	defer func() {
		if p := recover(); p != nil {
			outcome = UndoError(&UndoStepError{Step: s.Name, Cause: fmt.Errorf("%v", p)})
		}
	}()
	return s.Impl.Undo(rc, value, args, s.Opts)
}
