package reactor

import (
	"context"
	"sync"
	"time"
)

// Compose builds a step that embeds inner as a nested saga. By default
// inner is inlined: its steps are renamed to the tuple (compose, outer
// step name, inner step name), its Input references are substituted
// with the outer step's already-resolved arguments, its Result
// references are rewritten to the renamed step names, and a synthetic
// finalise step exposes inner's own return value under
// ComposeResult(name). Composing a reactor into a graph it is already
// (statically or dynamically) embedded in would unroll forever if
// inlined again, so the engine instead falls back to running inner at
// runtime via Run, sharing the concurrency key.
func Compose(name string, inner *Reactor, arguments []Argument, opts ...StepOption) *Step {
	impl := &composeImpl{inner: inner}
	return NewStep(name, impl, arguments, opts...)
}

// ComposeResult names the step whose retained result becomes the
// compose step named name's output once inlined — mirrors MapResult and
// SwitchResult. Wrapped (runtime) composition instead returns its value
// directly under name, since it never rewrites the plan.
func ComposeResult(name string) string { return name + "/finalise" }

type composeImpl struct {
	inner *Reactor

	// ancestry is the set of reactor ids already being inlined along the
	// static rewrite chain that produced this step; a nil/empty ancestry
	// marks a step the caller built directly with Compose.
	ancestry map[string]bool

	mu        sync.Mutex
	lastInner *Reactor
}

func (c *composeImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	if rc.isComposed(c.inner.id) || c.ancestry[c.inner.id] {
		return c.runWrapped(rc, args, opts)
	}
	return c.runInline(rc, args, opts)
}

// runInline performs the static compose rewrite: rename, rewrite
// references, validate, and emit inner's steps into the outer plan via
// RunOkEmit rather than executing inner as a nested run.
func (c *composeImpl) runInline(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	driver := rc.CurrentStep()

	var missing, extra []string
	required := make(map[string]bool, len(c.inner.inputNames))
	for _, n := range c.inner.inputNames {
		required[n] = true
		if _, ok := args[n]; !ok {
			missing = append(missing, n)
		}
	}
	for n := range args {
		if !required[n] {
			extra = append(extra, n)
		}
	}
	if len(missing) > 0 {
		return RunError(&ComposeError{Step: driver, Missing: missing})
	}
	if len(extra) > 0 {
		return RunError(&ComposeError{Step: driver, Extra: extra})
	}
	if c.inner.returnName == "" {
		return RunError(&ComposeError{Step: driver, NoReturn: true})
	}

	childAncestry := make(map[string]bool, len(c.ancestry)+1)
	for id := range c.ancestry {
		childAncestry[id] = true
	}
	childAncestry[c.inner.id] = true

	rewritten := make([]*Step, 0, len(c.inner.steps)+1)
	for _, s := range c.inner.steps {
		rewritten = append(rewritten, rewriteComposedStep(driver, s, args, childAncestry))
	}
	finalise := NewStep(ComposeResult(driver), &composeFinaliseImpl{}, []Argument{
		Arg("value", Result(composedName(driver, c.inner.returnName))),
	})
	rewritten = append(rewritten, finalise)

	return RunOkEmit(nil, rewritten)
}

// composedName renders the (compose, outer name, inner name) tuple as
// the flat step-name path the rest of the engine already keys on.
func composedName(driver, innerName string) string { return driver + "/" + innerName }

// rewriteComposedStep copies s under its renamed identity, substituting
// inner Input references with the outer step's resolved argument values
// and rewriting inner Result references to the renamed step names.
// Nested Compose steps are rewired to carry the growing ancestry set so
// a self-referential chain falls back to runtime composition instead of
// inlining forever.
func rewriteComposedStep(driver string, s *Step, outerArgs map[string]interface{}, ancestry map[string]bool) *Step {
	cp := *s
	cp.Name = composedName(driver, s.Name)
	cp.Arguments = make([]Argument, len(s.Arguments))
	for i, a := range s.Arguments {
		cp.Arguments[i] = rewriteComposedArgument(driver, a, outerArgs)
	}
	if nested, ok := s.Impl.(*composeImpl); ok {
		merged := make(map[string]bool, len(ancestry))
		for id := range ancestry {
			merged[id] = true
		}
		cp.Impl = &composeImpl{inner: nested.inner, ancestry: merged}
	}
	return &cp
}

// composeFinaliseImpl surfaces the inlined inner reactor's own return
// value, once resolved, as this compose step's result.
type composeFinaliseImpl struct{ BaseImpl }

func (f *composeFinaliseImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	return RunOk(args["value"])
}

func rewriteComposedArgument(driver string, a Argument, outerArgs map[string]interface{}) Argument {
	switch a.Source.Kind {
	case TemplateInput:
		return Argument{Name: a.Name, Source: Val(outerArgs[a.Source.Name]), Transform: a.Transform}
	case TemplateResult:
		return Argument{Name: a.Name, Source: Result(composedName(driver, a.Source.Name), a.Source.SubPath...), Transform: a.Transform}
	default:
		return a
	}
}

// runWrapped executes inner as a dynamically invoked nested reactor —
// the runtime-composition fallback, used once this step's inner reactor
// is already present, directly or via an ancestor inlining chain, in
// the current execution, so inlining it again would unroll forever.
func (c *composeImpl) runWrapped(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	composed := make(map[string]bool, len(rc.composedReactors)+1)
	for id := range rc.composedReactors {
		composed[id] = true
	}
	composed[c.inner.id] = true

	childOpts := DefaultOptions()
	if o, ok := opts.(Options); ok {
		childOpts = o
	}
	childOpts.ConcurrencyKey = rc.ConcurrencyKey()

	child := c.inner.clone()
	value, halted, err := runSeeded(context.Background(), child, args, childOpts, composed)
	if halted != nil {
		return RunError(&InvalidIteratorStateError{Step: rc.CurrentStep(), Phase: "compose-halt-unsupported"})
	}
	if err != nil {
		return RunError(err)
	}

	c.mu.Lock()
	c.lastInner = child
	c.mu.Unlock()
	return RunOk(value)
}

func (c *composeImpl) Compensate(rc *RuntimeContext, cause error, args map[string]interface{}, opts interface{}) CompensationOutcome {
	// Inlined children already carry their own undo entries; a wrapped
	// inner reactor already unwound its own undo stack before surfacing
	// cause. Either way there is nothing further to compensate here.
	return CompensateOk()
}

// Undo re-triggers the inner reactor's own rollback for a wrapped
// (runtime-composed) run; inlined composition never reaches here since
// its children are rolled back individually by the engine.
func (c *composeImpl) Undo(rc *RuntimeContext, value interface{}, args map[string]interface{}, opts interface{}) UndoOutcome {
	c.mu.Lock()
	child := c.lastInner
	c.mu.Unlock()
	if child == nil {
		return UndoOk()
	}
	if err := Undo(child); err != nil {
		return UndoError(err)
	}
	return UndoOk()
}

func (c *composeImpl) Backoff(int, map[string]interface{}, interface{}) (time.Duration, bool) {
	return 0, false
}

// Undoable reports true only once a wrapped run has happened: an inlined
// compose has nothing of its own to undo, so pushing the driver step
// onto the undo stack would just add a no-op entry.
func (c *composeImpl) Undoable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastInner != nil
}
