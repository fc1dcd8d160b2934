// Package reactor implements a dynamic, concurrent, dependency-resolving
// saga orchestrator: a planner, a hybrid sync/async executor, and saga-style
// compensation/undo recovery built around a small step contract.
package reactor

import "fmt"

// TemplateKind tags the variant of a Template reference.
type TemplateKind int

const (
	// TemplateInput resolves to a reactor-level input by name.
	TemplateInput TemplateKind = iota
	// TemplateResult resolves to another step's result, optionally walking
	// a sub-path of nested map keys.
	TemplateResult
	// TemplateValue is an embedded static value.
	TemplateValue
	// TemplateElement resolves to the current element of an enclosing
	// map/iterator scope.
	TemplateElement
)

// Template is a reference to a value source: a reactor input, a prior
// step's result (optionally navigating a nested sub-path), a static
// value, or the current element of an enclosing map/iterator scope.
type Template struct {
	Kind    TemplateKind
	Name    string
	SubPath []string
	Value   interface{}
}

// Input builds a Template referencing a reactor-level input.
func Input(name string) Template {
	return Template{Kind: TemplateInput, Name: name}
}

// Result builds a Template referencing another step's result, optionally
// navigating nested map keys via subPath.
func Result(name string, subPath ...string) Template {
	return Template{Kind: TemplateResult, Name: name, SubPath: subPath}
}

// Val builds a Template that carries an embedded static value.
func Val(value interface{}) Template {
	return Template{Kind: TemplateValue, Value: value}
}

// Element builds a Template referencing the current element of an
// enclosing map/iterator scope.
func Element(name string) Template {
	return Template{Kind: TemplateElement, Name: name}
}

func (t Template) String() string {
	switch t.Kind {
	case TemplateInput:
		return fmt.Sprintf("input(%s)", t.Name)
	case TemplateResult:
		if len(t.SubPath) == 0 {
			return fmt.Sprintf("result(%s)", t.Name)
		}
		return fmt.Sprintf("result(%s, %v)", t.Name, t.SubPath)
	case TemplateValue:
		return fmt.Sprintf("value(%v)", t.Value)
	case TemplateElement:
		return fmt.Sprintf("element(%s)", t.Name)
	default:
		return "template(?)"
	}
}

// scope carries the state needed to resolve templates for one step
// invocation: the reactor's inputs, its currently retained intermediate
// results, and — when the step sits inside a map/iterator subgraph — the
// current element value for each enclosing scope name.
type scope struct {
	inputs   map[string]interface{}
	results  map[string]interface{}
	elements map[string]interface{}
}

// resolve resolves a single Template to a concrete value.
func (s scope) resolve(t Template) (interface{}, error) {
	switch t.Kind {
	case TemplateInput:
		v, ok := s.inputs[t.Name]
		if !ok {
			return nil, &MissingInputError{Name: t.Name}
		}
		return v, nil
	case TemplateResult:
		v, ok := s.results[t.Name]
		if !ok {
			return nil, &MissingResultError{Name: t.Name}
		}
		if len(t.SubPath) == 0 {
			return v, nil
		}
		return walkSubPath(t.Name, v, t.SubPath)
	case TemplateValue:
		return t.Value, nil
	case TemplateElement:
		v, ok := s.elements[t.Name]
		if !ok {
			return nil, &MissingElementError{Name: t.Name}
		}
		return v, nil
	default:
		return nil, fmt.Errorf("reactor: unknown template kind %d", t.Kind)
	}
}

// walkSubPath navigates an ordered list of map keys into a nested value,
// failing with ArgumentSubpathError on a non-map or a missing key.
func walkSubPath(stepName string, v interface{}, path []string) (interface{}, error) {
	cur := v
	for i, key := range path {
		m, ok := asStringMap(cur)
		if !ok {
			return nil, &ArgumentSubpathError{Step: stepName, Path: path[:i+1], Reason: "value is not a map"}
		}
		next, ok := m[key]
		if !ok {
			return nil, &ArgumentSubpathError{Step: stepName, Path: path[:i+1], Reason: "key not found"}
		}
		cur = next
	}
	return cur, nil
}

// asStringMap accepts both map[string]interface{} and the generic
// map[interface{}]interface{} shapes that decoders sometimes produce.
func asStringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}
