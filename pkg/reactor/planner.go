package reactor

// planGraph is an adjacency representation keyed by step name: an
// in-degree map plus forward edges, rather than a pointer graph, so
// steps stay addressable in a flat arena and the structure is trivial
// to merge incrementally.
type planGraph struct {
	steps      map[string]*Step
	inEdges    map[string]map[string]bool // step -> set of unresolved dependency names
	dependents map[string]map[string]bool // step -> set of steps that depend on it
}

func newPlanGraph() *planGraph {
	return &planGraph{
		steps:      map[string]*Step{},
		inEdges:    map[string]map[string]bool{},
		dependents: map[string]map[string]bool{},
	}
}

func (g *planGraph) empty() bool { return len(g.steps) == 0 }

// dependencyNames returns the set of step names a step's arguments
// reference via Result sources.
func dependencyNames(s *Step) []string {
	var deps []string
	seen := map[string]bool{}
	for _, a := range s.Arguments {
		if a.Source.Kind == TemplateResult && !seen[a.Source.Name] {
			seen[a.Source.Name] = true
			deps = append(deps, a.Source.Name)
		}
	}
	return deps
}

// Plan merges the reactor's not-yet-planned steps into its plan graph.
// Re-planning is idempotent and incremental: already-planned vertices
// are never re-sorted, new steps are cycle-checked against the whole
// graph, and validation covers both Input and Result references.
func (r *Reactor) Plan() error {
	if r.graph == nil {
		r.graph = newPlanGraph()
	}
	if len(r.steps) == 0 {
		return nil
	}

	g := r.graph

	pending := r.steps
	r.steps = nil

	inputSet := make(map[string]bool, len(r.inputNames))
	for _, n := range r.inputNames {
		inputSet[n] = true
	}

	// Every name that will exist once this batch is merged: already
	// planned steps, retained results from completed-but-depended-on
	// steps, and the new batch itself.
	known := map[string]bool{}
	for name := range g.steps {
		known[name] = true
	}
	for name := range r.results {
		known[name] = true
	}
	for _, s := range pending {
		if known[s.Name] {
			return &PlanError{Step: s.Name, Missing: "duplicate step name"}
		}
		known[s.Name] = true
	}

	for _, s := range pending {
		for _, a := range s.Arguments {
			if a.Source.Kind == TemplateInput && !inputSet[a.Source.Name] {
				return &PlanError{Step: s.Name, Missing: a.Source.Name}
			}
		}
		for _, dep := range dependencyNames(s) {
			if !known[dep] {
				return &PlanError{Step: s.Name, Missing: dep}
			}
		}
	}

	// Insert the whole batch before wiring edges so dependencies between
	// steps of one batch resolve regardless of declaration order.
	for _, s := range pending {
		g.steps[s.Name] = s
	}
	for _, s := range pending {
		in := map[string]bool{}
		for _, dep := range dependencyNames(s) {
			// A dependency already completed (its result retained) needs
			// no edge: it is satisfied.
			if _, done := r.results[dep]; done {
				continue
			}
			if _, stillPlanned := g.steps[dep]; !stillPlanned {
				continue
			}
			in[dep] = true
			if g.dependents[dep] == nil {
				g.dependents[dep] = map[string]bool{}
			}
			g.dependents[dep][s.Name] = true
		}
		g.inEdges[s.Name] = in
	}

	if cycle := findCycle(g); cycle != nil {
		return &PlanError{Cycle: cycle}
	}

	r.graph = g
	return nil
}

// findCycle runs a DFS over the whole graph looking for a back-edge,
// returning the cycle's step names in order if found.
func findCycle(g *planGraph) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.steps))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		stack = append(stack, name)
		for dep := range g.inEdges[name] {
			switch color[dep] {
			case white:
				if visit(dep) {
					return true
				}
			case gray:
				// Found the back-edge; extract the cycle from the stack.
				for i := len(stack) - 1; i >= 0; i-- {
					cycle = append(cycle, stack[i])
					if stack[i] == dep {
						break
					}
				}
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return false
	}

	for name := range g.steps {
		if color[name] == white {
			if visit(name) {
				return cycle
			}
		}
	}
	return nil
}

// readyNames returns the names of steps with zero remaining in-edges that are
// not already tracked as running or backed off by the caller.
func (g *planGraph) readyNames(skip map[string]bool) []string {
	var out []string
	for name, in := range g.inEdges {
		if skip[name] {
			continue
		}
		if len(in) == 0 {
			out = append(out, name)
		}
	}
	return out
}

// remove deletes a completed step from the graph and clears it from its
// dependents' in-edge sets, making them ready if that was their last
// dependency.
func (g *planGraph) remove(name string) {
	delete(g.steps, name)
	delete(g.inEdges, name)
	for dependent := range g.dependents[name] {
		delete(g.inEdges[dependent], name)
	}
	delete(g.dependents, name)
}
