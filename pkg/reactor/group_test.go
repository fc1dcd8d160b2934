package reactor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupRunsBeforeAndAfterAroundInnerResult(t *testing.T) {
	var beforeArgs, afterResult map[string]interface{}

	inner := New()
	inner.AddInput("n")
	inner.AddStep(NewStep("build", &fnImpl{run: func(rc *RuntimeContext, args map[string]interface{}) RunOutcome {
		return RunOk(map[string]interface{}{"doubled": args["n"].(int) * 2})
	}}, []Argument{Arg("n", Input("n"))}))
	inner.Return("build")

	before := func(rc *RuntimeContext, args map[string]interface{}) error {
		beforeArgs = args
		return nil
	}
	after := func(rc *RuntimeContext, result map[string]interface{}) error {
		afterResult = result
		return nil
	}

	r := New()
	r.AddInput("n")
	r.AddStep(Group("group", inner, []Argument{Arg("n", Input("n"))}, before, after))
	r.Return("group")

	value, halted, err := Run(context.Background(), r, map[string]interface{}{"n": 5}, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Equal(t, map[string]interface{}{"doubled": 10}, value)
	assert.Equal(t, map[string]interface{}{"n": 5}, beforeArgs)
	assert.Equal(t, map[string]interface{}{"doubled": 10}, afterResult)
}

func TestGroupBeforeAllVetoesWithoutRunningInner(t *testing.T) {
	var innerRan bool

	inner := New()
	inner.AddStep(NewStep("build", &fnImpl{run: func(rc *RuntimeContext, args map[string]interface{}) RunOutcome {
		innerRan = true
		return RunOk(map[string]interface{}{})
	}}, nil))
	inner.Return("build")

	before := func(rc *RuntimeContext, args map[string]interface{}) error {
		return assertErrVeto
	}

	r := New()
	r.AddStep(Group("group", inner, nil, before, nil))
	r.Return("group")

	_, halted, err := Run(context.Background(), r, nil, DefaultOptions())
	require.Nil(t, halted)
	require.Error(t, err)
	assert.False(t, innerRan)
}

var assertErrVeto = &ForcedFailureError{Reason: "before_all veto"}
