package reactor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithoutReturnFails(t *testing.T) {
	r := New()
	r.AddStep(NewStep("a", &constImpl{value: 1}, nil))

	_, _, err := Run(context.Background(), r, nil, DefaultOptions())
	require.Error(t, err)
	var mre *MissingReturnError
	assert.ErrorAs(t, err, &mre)
}

func TestMaxIterationsHaltsAndResumes(t *testing.T) {
	r := New()
	r.AddStep(NewStep("one", &constImpl{value: 1}, nil))
	r.AddStep(NewStep("two", &fnImpl{run: func(rc *RuntimeContext, args map[string]interface{}) RunOutcome {
		return RunOk(args["a"].(int) + 1)
	}}, []Argument{Arg("a", Result("one"))}))
	r.Return("two")

	opts := DefaultOptions()
	opts.MaxIterations = 1

	value, halted, err := Run(context.Background(), r, nil, opts)
	require.NoError(t, err)
	assert.Nil(t, value)
	require.NotNil(t, halted)
	assert.Equal(t, Halted, halted.State())

	value, halted, err = Resume(context.Background(), halted, nil)
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Equal(t, 2, value)
	assert.Equal(t, Successful, r.State())
}

// haltOnceImpl halts its first run and succeeds on resume.
type haltOnceImpl struct {
	BaseImpl
	halted bool
}

func (h *haltOnceImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	if !h.halted {
		h.halted = true
		return RunHalt(errors.New("pausing"))
	}
	return RunOk("resumed")
}

func TestStepHaltStashesAndResumeCompletes(t *testing.T) {
	r := New()
	r.AddStep(NewStep("pause", &haltOnceImpl{}, nil))
	r.Return("pause")

	value, halted, err := Run(context.Background(), r, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, value)
	require.NotNil(t, halted)
	assert.Equal(t, Halted, halted.State())

	value, halted, err = Resume(context.Background(), halted, nil)
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Equal(t, "resumed", value)
}

func TestResumeOnNonHaltedReactorFails(t *testing.T) {
	r := New()
	r.AddStep(NewStep("a", &constImpl{value: 1}, nil))
	r.Return("a")

	_, _, err := Resume(context.Background(), r, nil)
	require.Error(t, err)
}

func TestMaxRetriesZeroFailsImmediately(t *testing.T) {
	r := New()
	r.AddStep(NewStep("flappy", &fnImpl{run: func(rc *RuntimeContext, args map[string]interface{}) RunOutcome {
		return RunRetry()
	}}, nil))
	r.Return("flappy")

	_, halted, err := Run(context.Background(), r, nil, DefaultOptions())
	require.Nil(t, halted)
	require.Error(t, err)

	var fe *FailedError
	require.ErrorAs(t, err, &fe)
	var re *RetriesExceededError
	require.ErrorAs(t, fe.Cause, &re)
	assert.Equal(t, 1, re.RetryCount)
}

func TestBackoffDelaysRetryUntilSuccess(t *testing.T) {
	r := New()
	r.AddStep(NewStep("flaky", &failNTimesImpl{n: 3, value: "eventually"}, nil, WithMaxRetries(5)))
	r.Return("flaky")

	value, halted, err := Run(context.Background(), r, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Equal(t, "eventually", value)
}

// parallelProbeImpl tracks the peak number of concurrent Run calls.
type parallelProbeImpl struct {
	BaseImpl
	cur  *int32
	peak *int32
}

func (p *parallelProbeImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	n := atomic.AddInt32(p.cur, 1)
	for {
		old := atomic.LoadInt32(p.peak)
		if n <= old || atomic.CompareAndSwapInt32(p.peak, old, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(p.cur, -1)
	return RunOk(nil)
}

func parallelProbeReactor(probe *parallelProbeImpl, workers int) *Reactor {
	r := New()
	gather := make([]Argument, 0, workers)
	names := []string{"w0", "w1", "w2", "w3", "w4", "w5"}[:workers]
	for _, name := range names {
		r.AddStep(NewStep(name, probe, nil, WithAsync(Async(true))))
		gather = append(gather, Drop(Result(name)))
	}
	r.AddStep(NewStep("done", &constImpl{value: "done"}, gather))
	r.Return("done")
	return r
}

func TestAsyncRespectsMaxConcurrency(t *testing.T) {
	var cur, peak int32
	probe := &parallelProbeImpl{cur: &cur, peak: &peak}

	opts := DefaultOptions()
	opts.MaxConcurrency = 2

	value, halted, err := Run(context.Background(), parallelProbeReactor(probe, 6), nil, opts)
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Equal(t, "done", value)
	assert.LessOrEqual(t, peak, int32(2))
}

func TestAsyncDisabledDegeneratesToSequential(t *testing.T) {
	var cur, peak int32
	probe := &parallelProbeImpl{cur: &cur, peak: &peak}

	opts := DefaultOptions()
	opts.AsyncEnabled = false

	value, halted, err := Run(context.Background(), parallelProbeReactor(probe, 4), nil, opts)
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Equal(t, "done", value)
	assert.Equal(t, int32(1), peak)
}

func TestMaxConcurrencyOneIsSequential(t *testing.T) {
	var cur, peak int32
	probe := &parallelProbeImpl{cur: &cur, peak: &peak}

	opts := DefaultOptions()
	opts.MaxConcurrency = 1

	value, halted, err := Run(context.Background(), parallelProbeReactor(probe, 4), nil, opts)
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Equal(t, "done", value)
	assert.Equal(t, int32(1), peak)
}

// orderedUndoImpl records the order in which Undo runs across steps.
type orderedUndoImpl struct {
	UndoableImpl
	name  string
	order *[]string
}

func (o *orderedUndoImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	return RunOk(o.name)
}

func (o *orderedUndoImpl) Undo(rc *RuntimeContext, value interface{}, args map[string]interface{}, opts interface{}) UndoOutcome {
	*o.order = append(*o.order, o.name)
	return UndoOk()
}

func TestRollbackUndoesInReverseCompletionOrder(t *testing.T) {
	var order []string

	r := New()
	r.AddStep(NewStep("a", &orderedUndoImpl{name: "a", order: &order}, nil))
	r.AddStep(NewStep("b", &orderedUndoImpl{name: "b", order: &order}, []Argument{Drop(Result("a"))}))
	r.AddStep(NewStep("boom", &alwaysFailImpl{err: errors.New("late failure")}, []Argument{Drop(Result("b"))}))
	r.Return("boom")

	_, halted, err := Run(context.Background(), r, nil, DefaultOptions())
	require.Nil(t, halted)
	require.Error(t, err)
	assert.Equal(t, []string{"b", "a"}, order)
	assert.Equal(t, Failed, r.State())
}

func TestGuardSubstituteShortCircuitsRun(t *testing.T) {
	var ran bool
	guard := func(rc *RuntimeContext, args map[string]interface{}) GuardOutcome {
		return GuardSubstituteResult("substituted")
	}

	r := New()
	r.AddStep(NewStep("guarded", &fnImpl{run: func(rc *RuntimeContext, args map[string]interface{}) RunOutcome {
		ran = true
		return RunOk("real")
	}}, nil, WithGuards(guard)))
	r.Return("guarded")

	value, halted, err := Run(context.Background(), r, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Equal(t, "substituted", value)
	assert.False(t, ran)
}

func TestGuardSkipProducesNoResult(t *testing.T) {
	var ran bool
	guard := func(rc *RuntimeContext, args map[string]interface{}) GuardOutcome {
		return GuardSkip()
	}

	r := New()
	r.AddStep(NewStep("guarded", &fnImpl{run: func(rc *RuntimeContext, args map[string]interface{}) RunOutcome {
		ran = true
		return RunOk("real")
	}}, nil, WithGuards(guard)))
	r.Return("guarded")

	value, halted, err := Run(context.Background(), r, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Nil(t, value)
	assert.False(t, ran)
}

func TestStepTransformReplacesArguments(t *testing.T) {
	transform := func(args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"sum": args["a"].(int) + args["b"].(int)}, nil
	}

	r := New()
	r.AddStep(NewStep("sum", &fnImpl{run: func(rc *RuntimeContext, args map[string]interface{}) RunOutcome {
		return RunOk(args["sum"])
	}}, []Argument{Arg("a", Val(2)), Arg("b", Val(3))}, WithTransform(transform)))
	r.Return("sum")

	value, halted, err := Run(context.Background(), r, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Equal(t, 5, value)
}

func TestInputTransformAppliesBeforeAnyStep(t *testing.T) {
	trim := func(v interface{}) (interface{}, error) { return len(v.(string)), nil }

	r := New()
	r.AddInputT("name", trim)
	r.AddStep(NewStep("echo", &fnImpl{run: func(rc *RuntimeContext, args map[string]interface{}) RunOutcome {
		return RunOk(args["n"])
	}}, []Argument{Arg("n", Input("name"))}))
	r.Return("echo")

	value, halted, err := Run(context.Background(), r, map[string]interface{}{"name": "Einstein"}, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Equal(t, 8, value)
}

func TestArgumentTransformAppliesAfterResolution(t *testing.T) {
	double := func(v interface{}) (interface{}, error) { return v.(int) * 2, nil }

	r := New()
	r.AddStep(NewStep("doubled", &fnImpl{run: func(rc *RuntimeContext, args map[string]interface{}) RunOutcome {
		return RunOk(args["n"])
	}}, []Argument{ArgT("n", Val(21), double)}))
	r.Return("doubled")

	value, halted, err := Run(context.Background(), r, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Equal(t, 42, value)
}

func TestContextPatchVisibleToStepOnly(t *testing.T) {
	r := New()
	r.AddStep(NewStep("patched", &fnImpl{run: func(rc *RuntimeContext, args map[string]interface{}) RunOutcome {
		tenant, _ := rc.Get("tenant")
		return RunOk(tenant)
	}}, nil, WithContextPatch(map[string]interface{}{"tenant": "acme"})))
	r.AddStep(NewStep("unpatched", &fnImpl{run: func(rc *RuntimeContext, args map[string]interface{}) RunOutcome {
		_, ok := rc.Get("tenant")
		return RunOk(ok)
	}}, []Argument{Drop(Result("patched"))}))
	r.Return("unpatched")

	value, halted, err := Run(context.Background(), r, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Equal(t, false, value)
}

func TestIntermediateResultsPurgedOnceUnreferenced(t *testing.T) {
	r := New()
	r.AddStep(NewStep("a", &constImpl{value: 1}, nil))
	r.AddStep(NewStep("b", &constImpl{value: 2}, []Argument{Drop(Result("a"))}))
	r.AddStep(NewStep("c", &constImpl{value: 3}, []Argument{Drop(Result("b"))}))
	r.Return("c")

	value, halted, err := Run(context.Background(), r, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Equal(t, 3, value)
	assert.Equal(t, map[string]interface{}{"c": 3}, r.results)
}

func TestPanicInStepBecomesRunStepError(t *testing.T) {
	r := New()
	r.AddStep(NewStep("bomb", &fnImpl{run: func(rc *RuntimeContext, args map[string]interface{}) RunOutcome {
		panic("kaboom")
	}}, nil))
	r.Return("bomb")

	_, halted, err := Run(context.Background(), r, nil, DefaultOptions())
	require.Nil(t, halted)
	require.Error(t, err)

	var fe *FailedError
	require.ErrorAs(t, err, &fe)
	var rse *RunStepError
	require.ErrorAs(t, fe.Cause, &rse)
	assert.Equal(t, "bomb", rse.Step)
	assert.NotEmpty(t, rse.Stacktrace)
}

func TestCompensateContinueSubstitutesValue(t *testing.T) {
	r := New()
	r.AddStep(NewStep("optimist", &continueImpl{}, nil))
	r.Return("optimist")

	value, halted, err := Run(context.Background(), r, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Equal(t, "fallback", value)
}

// continueImpl always fails Run and recovers locally via Continue.
type continueImpl struct{ BaseImpl }

func (continueImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	return RunError(errors.New("primary path down"))
}

func (continueImpl) Compensate(rc *RuntimeContext, cause error, args map[string]interface{}, opts interface{}) CompensationOutcome {
	return CompensateContinue("fallback")
}
