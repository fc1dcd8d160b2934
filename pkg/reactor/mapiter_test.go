package reactor

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAggregatesInOrderWithPerElementScoping(t *testing.T) {
	items := []interface{}{"uno", "dos", "tres"}

	build := func(index int, element interface{}) *Step {
		name := fmt.Sprintf("upper/%d", index)
		return NewStep(name, &fnImpl{run: func(rc *RuntimeContext, args map[string]interface{}) RunOutcome {
			s := args["item"].(string)
			return RunOk(fmt.Sprintf("%s-%d", s, len(s)))
		}}, []Argument{Arg("item", Element("item"))})
	}
	ref := func(index int) string { return fmt.Sprintf("upper/%d", index) }

	r := New()
	r.AddStep(Map("iter", Val(items), "item", build, ref))
	r.Return(MapResult("iter"))

	value, halted, err := Run(context.Background(), r, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Equal(t, []interface{}{"uno-3", "dos-3", "tres-4"}, value)
}

func TestMapOverEmptySliceReturnsEmptyResult(t *testing.T) {
	build := func(index int, element interface{}) *Step {
		return NewStep(fmt.Sprintf("noop/%d", index), &constImpl{value: element}, nil)
	}
	ref := func(index int) string { return fmt.Sprintf("noop/%d", index) }

	r := New()
	r.AddStep(Map("iter", Val([]interface{}{}), "item", build, ref))
	r.Return(MapResult("iter"))

	value, halted, err := Run(context.Background(), r, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, halted)
	assert.Equal(t, []interface{}{}, value)
}
