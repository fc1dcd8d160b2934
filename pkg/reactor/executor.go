package reactor

import (
	"context"
	"runtime"
	"time"
)

// Options configures one Run invocation.
//
// The zero value disables async scheduling (Go's bool zero value is
// false) and leaves MaxConcurrency/HaltTimeout at zero, which Run
// normalizes to runtime.NumCPU() and 5s respectively. Most callers
// should start from DefaultOptions and override only what they need.
type Options struct {
	MaxConcurrency int
	Timeout        time.Duration
	MaxIterations  uint64
	HaltTimeout    time.Duration
	AsyncEnabled   bool
	ConcurrencyKey string
}

// DefaultOptions is the standard configuration: concurrency capped at
// the host's hardware threads, no timeout or iteration cap, a 5s halt
// grace period, async scheduling on, and an auto-allocated concurrency
// pool.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency: runtime.NumCPU(),
		HaltTimeout:    5 * time.Second,
		AsyncEnabled:   true,
	}
}

func (o Options) normalized() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = runtime.NumCPU()
	}
	if o.HaltTimeout <= 0 {
		o.HaltTimeout = 5 * time.Second
	}
	return o
}

type execMode int

const (
	modeExecuting execMode = iota
	modeUndoRequested
	modeHalting
)

// execState is the executor state held outside the reactor for one
// invocation, persisted onto a Halted reactor so Resume can continue
// the same retry/backoff bookkeeping.
type execState struct {
	opts          Options
	rc            *RuntimeContext
	ownsPool      bool
	poolCancel    context.CancelFunc
	retries       map[string]int
	backoffs      map[string]time.Time
	running       map[string]bool
	resultsCh     chan invocation
	mode          execMode
	rollbackCause error
	iterations    uint64
	deadline      time.Time
}

func newExecState(opts Options, rc *RuntimeContext) *execState {
	return &execState{
		opts:      opts,
		rc:        rc,
		retries:   map[string]int{},
		backoffs:  map[string]time.Time{},
		running:   map[string]bool{},
		resultsCh: make(chan invocation, 64),
	}
}

// Run drives a reactor to completion: it plans (if unplanned), then
// loops picking ready steps, launching as many async as policy and the
// shared concurrency pool allow, running one synchronously when nothing
// is in flight, and interpreting completions. It
// returns exactly one of a value, a Halted reactor (to Resume later), or
// an error (including a rolled-back FailedError).
func Run(ctx context.Context, r *Reactor, inputs map[string]interface{}, opts Options) (interface{}, *Reactor, error) {
	return runSeeded(ctx, r, inputs, opts, nil)
}

// runSeeded is Run plus a composedReactors seed, letting Compose/Group/
// Around carry the enclosing composition chain into a nested reactor's
// RuntimeContext so recursive composition is still detected even though
// the nested run builds its own fresh context.
func runSeeded(ctx context.Context, r *Reactor, inputs map[string]interface{}, opts Options, composed map[string]bool) (interface{}, *Reactor, error) {
	opts = opts.normalized()
	if inputs == nil {
		inputs = map[string]interface{}{}
	}
	if len(r.inputTransforms) > 0 {
		transformed := make(map[string]interface{}, len(inputs))
		for k, v := range inputs {
			transformed[k] = v
		}
		for name, fn := range r.inputTransforms {
			v, ok := transformed[name]
			if !ok {
				continue
			}
			nv, err := fn(v)
			if err != nil {
				return nil, nil, &TransformError{Step: name, Input: v, Cause: err}
			}
			transformed[name] = nv
		}
		inputs = transformed
	}

	if err := r.Plan(); err != nil {
		return nil, nil, err
	}
	if r.returnName == "" {
		return nil, nil, &MissingReturnError{}
	}

	rc := NewRuntimeContext(nil)
	rc.inputs = inputs
	for id := range composed {
		rc.composedReactors[id] = true
	}

	key := opts.ConcurrencyKey
	poolCtx, poolCancel := context.WithCancel(ctx)
	ownsPool := key == ""
	if ownsPool {
		key = allocatePool(poolCtx, opts.MaxConcurrency)
	} else {
		poolCancel()
	}
	rc.concurrencyKey = key

	r.state = Executing
	if err := r.dispatchInit(rc); err != nil {
		poolCancel()
		return nil, nil, err
	}

	es := newExecState(opts, rc)
	es.ownsPool = ownsPool
	es.poolCancel = poolCancel
	if opts.Timeout > 0 {
		es.deadline = time.Now().Add(opts.Timeout)
	}

	return r.drive(ctx, es)
}

// Resume re-invokes the executor on a previously Halted reactor, merging
// any additional inputs and continuing with the stashed retry/backoff
// state.
func Resume(ctx context.Context, r *Reactor, inputs map[string]interface{}) (interface{}, *Reactor, error) {
	if r.state != Halted || r.stashedExec == nil {
		return nil, nil, &InvalidIteratorStateError{Step: "", Phase: "resume-on-non-halted-reactor"}
	}
	es := r.stashedExec
	r.stashedExec = nil
	if es.rc.inputs == nil {
		es.rc.inputs = map[string]interface{}{}
	}
	for k, v := range inputs {
		es.rc.inputs[k] = v
	}
	es.iterations = 0
	if es.opts.Timeout > 0 {
		es.deadline = time.Now().Add(es.opts.Timeout)
	}
	// A step-level Halt stashes es with mode still Halting; left as-is,
	// drive's mode check would re-halt before rescheduling anything.
	es.mode = modeExecuting
	r.state = Executing
	return r.drive(ctx, es)
}

// drive is the main scheduling loop, shared by Run and Resume.
func (r *Reactor) drive(ctx context.Context, es *execState) (interface{}, *Reactor, error) {
	rc := es.rc
	opts := es.opts

	for {
		r.drainCompletions(es)

		if es.mode == modeUndoRequested {
			r.awaitInFlight(es)
			err := r.rollback(rc, es)
			if es.ownsPool {
				es.poolCancel()
			}
			return nil, nil, err
		}
		if es.mode == modeHalting {
			return r.haltAndStash(ctx, es)
		}

		if r.graph.empty() && len(es.running) == 0 && len(r.steps) == 0 {
			return r.finish(es)
		}

		es.iterations++
		if opts.MaxIterations > 0 && es.iterations > opts.MaxIterations {
			return r.haltAndStash(ctx, es)
		}
		if !es.deadline.IsZero() && time.Now().After(es.deadline) {
			return r.haltAndStash(ctx, es)
		}

		skip := r.skipSet(es)
		readyNames := r.graph.readyNames(skip)

		launched := r.launchAsync(es, readyNames)

		ranSync := false
		if len(es.running) == 0 {
			if name, ok := firstSyncCandidate(r.graph, readyNames, opts); ok {
				step := r.graph.steps[name]
				r.dispatchEvent(Event{Kind: EventRunStart, Step: name}, step, rc)
				inv := invokeStep(step, rc, cloneStringMap(r.results))
				r.handleCompletion(es, inv)
				ranSync = true
			}
		}
		if ranSync || launched > 0 {
			continue
		}

		if len(es.running) > 0 {
			r.blockForCompletion(ctx, es)
			continue
		}
		if len(readyNames) > 0 {
			// Every ready step is async but none could obtain a slot
			// (shared pool exhausted by another executor). Wait briefly
			// for capacity or a completion.
			select {
			case inv := <-es.resultsCh:
				r.handleCompletion(es, inv)
			case <-time.After(10 * time.Millisecond):
			case <-ctx.Done():
				return r.haltAndStash(ctx, es)
			}
			continue
		}
		if len(es.backoffs) > 0 {
			r.sleepUntilBackoff(ctx, es)
			continue
		}
		return nil, nil, &StuckError{Remaining: remainingNames(r.graph)}
	}
}

// sleepUntilBackoff idles until the earliest backoff deadline passes,
// bounded by the run deadline. Only reached when nothing is ready,
// running, or pending beyond backed-off steps.
func (r *Reactor) sleepUntilBackoff(ctx context.Context, es *execState) {
	var earliest time.Time
	for _, d := range es.backoffs {
		if earliest.IsZero() || d.Before(earliest) {
			earliest = d
		}
	}
	wait := time.Until(earliest)
	if !es.deadline.IsZero() {
		if remaining := time.Until(es.deadline); remaining < wait {
			wait = remaining
		}
	}
	if wait <= 0 {
		return
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
		es.mode = modeHalting
	}
}

// skipSet names steps not eligible for the ready set this iteration:
// already in flight, or backed off.
func (r *Reactor) skipSet(es *execState) map[string]bool {
	skip := map[string]bool{}
	for name := range es.running {
		skip[name] = true
	}
	now := time.Now()
	for name, s := range r.graph.steps {
		if deadline, ok := es.backoffs[s.ref()]; ok {
			if now.Before(deadline) {
				skip[name] = true
			} else {
				delete(es.backoffs, s.ref())
			}
		}
	}
	return skip
}

func firstSyncCandidate(g *planGraph, readyNames []string, opts Options) (string, bool) {
	for _, name := range readyNames {
		s := g.steps[name]
		if s.isAsync(opts) && opts.AsyncEnabled {
			continue
		}
		return name, true
	}
	return "", false
}

func (r *Reactor) launchAsync(es *execState, readyNames []string) int {
	rc := es.rc
	launched := 0
	for _, name := range readyNames {
		step := r.graph.steps[name]
		if !(step.isAsync(es.opts) && es.opts.AsyncEnabled) {
			continue
		}
		if len(es.running) >= es.opts.MaxConcurrency {
			break
		}
		if !acquirePool(rc.concurrencyKey) {
			break
		}
		es.running[name] = true
		launched++
		r.dispatchEvent(Event{Kind: EventProcessStart, Step: name}, step, rc)
		r.dispatchEvent(Event{Kind: EventRunStart, Step: name}, step, rc)
		resultsSnapshot := cloneStringMap(r.results)
		key := rc.concurrencyKey
		go func(s *Step) {
			inv := invokeStep(s, rc, resultsSnapshot)
			_ = releasePool(key)
			es.resultsCh <- inv
		}(step)
	}
	return launched
}

func (r *Reactor) drainCompletions(es *execState) {
	for {
		select {
		case inv := <-es.resultsCh:
			r.handleCompletion(es, inv)
		default:
			return
		}
	}
}

func (r *Reactor) blockForCompletion(ctx context.Context, es *execState) {
	wait := 200 * time.Millisecond
	if !es.deadline.IsZero() {
		if remaining := time.Until(es.deadline); remaining < wait {
			wait = remaining
		}
	}
	select {
	case inv := <-es.resultsCh:
		r.handleCompletion(es, inv)
	case <-time.After(wait):
	case <-ctx.Done():
		es.mode = modeHalting
	}
}

// awaitInFlight drains in-flight async tasks up to HaltTimeout:
// already-started tasks run to completion; the engine never forcibly
// cancels a step body.
func (r *Reactor) awaitInFlight(es *execState) {
	deadline := time.Now().Add(es.opts.HaltTimeout)
	for len(es.running) > 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		select {
		case inv := <-es.resultsCh:
			r.handleCompletion(es, inv)
		case <-time.After(remaining):
			return
		}
	}
}

func (r *Reactor) haltAndStash(ctx context.Context, es *execState) (interface{}, *Reactor, error) {
	r.awaitInFlight(es)
	r.dispatchHalt(es.rc)
	r.state = Halted
	r.stashedExec = es
	return nil, r, nil
}

func (r *Reactor) finish(es *execState) (interface{}, *Reactor, error) {
	value := r.results[r.returnName]
	value = r.dispatchComplete(value, es.rc)
	if es.ownsPool {
		es.poolCancel()
	}
	r.state = Successful
	return value, nil, nil
}

func remainingNames(g *planGraph) []string {
	names := make([]string, 0, len(g.steps))
	for name := range g.steps {
		names = append(names, name)
	}
	return names
}
