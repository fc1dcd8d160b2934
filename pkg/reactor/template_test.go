package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateResolve(t *testing.T) {
	cases := []struct {
		name    string
		sc      scope
		tmpl    Template
		want    interface{}
		wantErr interface{}
	}{
		{
			name: "input hit",
			sc:   scope{inputs: map[string]interface{}{"x": 42}},
			tmpl: Input("x"),
			want: 42,
		},
		{
			name:    "input miss",
			sc:      scope{inputs: map[string]interface{}{}},
			tmpl:    Input("missing"),
			wantErr: &MissingInputError{},
		},
		{
			name: "result hit",
			sc:   scope{results: map[string]interface{}{"step_a": "value"}},
			tmpl: Result("step_a"),
			want: "value",
		},
		{
			name:    "result miss",
			sc:      scope{results: map[string]interface{}{}},
			tmpl:    Result("missing"),
			wantErr: &MissingResultError{},
		},
		{
			name: "result subpath",
			sc: scope{results: map[string]interface{}{
				"step_a": map[string]interface{}{"nested": map[string]interface{}{"key": "deep"}},
			}},
			tmpl: Result("step_a", "nested", "key"),
			want: "deep",
		},
		{
			name: "result subpath missing key",
			sc: scope{results: map[string]interface{}{
				"step_a": map[string]interface{}{"nested": map[string]interface{}{}},
			}},
			tmpl:    Result("step_a", "nested", "key"),
			wantErr: &ArgumentSubpathError{},
		},
		{
			name: "result subpath non-map",
			sc: scope{results: map[string]interface{}{
				"step_a": "not-a-map",
			}},
			tmpl:    Result("step_a", "nested"),
			wantErr: &ArgumentSubpathError{},
		},
		{
			name: "static value",
			sc:   scope{},
			tmpl: Val(7),
			want: 7,
		},
		{
			name: "element hit",
			sc:   scope{elements: map[string]interface{}{"item": "banana"}},
			tmpl: Element("item"),
			want: "banana",
		},
		{
			name:    "element miss",
			sc:      scope{elements: map[string]interface{}{}},
			tmpl:    Element("item"),
			wantErr: &MissingElementError{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.sc.resolve(tc.tmpl)
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.IsType(t, tc.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTemplateStringVariants(t *testing.T) {
	assert.Equal(t, "input(x)", Input("x").String())
	assert.Equal(t, "result(y)", Result("y").String())
	assert.Equal(t, "result(y, [a b])", Result("y", "a", "b").String())
	assert.Equal(t, "value(3)", Val(3).String())
	assert.Equal(t, "element(item)", Element("item").String())
}

func TestAsStringMapAcceptsGenericMap(t *testing.T) {
	generic := map[interface{}]interface{}{"a": 1}
	m, ok := asStringMap(generic)
	require.True(t, ok)
	assert.Equal(t, 1, m["a"])

	_, ok = asStringMap(map[interface{}]interface{}{1: "not-a-string-key"})
	assert.False(t, ok)

	_, ok = asStringMap(42)
	assert.False(t, ok)
}
