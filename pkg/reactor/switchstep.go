package reactor

// SwitchBranch is one candidate arm of a Switch step: Match decides
// whether this branch handles the resolved `on` value; if chosen, Steps
// are emitted dynamically into the plan, and Result names the step
// among them whose value becomes the switch step's own result, read
// back through SwitchResult(name).
type SwitchBranch struct {
	Match  func(on interface{}) bool
	Steps  []*Step
	Result string
}

const switchOnArg = "__switch_on"

// SwitchResult names the step whose retained result becomes the switch
// step named name's output — mirrors MapResult/ComposeResult, since the
// switch step itself only drives emission and never retains a value of
// its own.
func SwitchResult(name string) string { return name + "/finalise" }

// Switch builds a step that evaluates on, finds the first branch whose
// Match accepts it (or falls back to defaultBranch), and emits that
// branch's steps into the plan; with no match and no default it fails
// with NoDefaultBranchError. When allowAsync is false, every emitted
// step is rewritten to run synchronously, regardless of how its own
// Async predicate was configured.
// arguments add further dependencies for the switch step beyond on
// (e.g. Drop references for ordering); branch steps resolve their own
// Input/Result references against the surrounding reactor as usual.
func Switch(name string, on Template, branches []SwitchBranch, defaultBranch *SwitchBranch, arguments []Argument, allowAsync bool, opts ...StepOption) *Step {
	args := append([]Argument{Arg(switchOnArg, on)}, arguments...)
	impl := &switchImpl{branches: branches, def: defaultBranch, allowAsync: allowAsync}
	return NewStep(name, impl, args, opts...)
}

type switchImpl struct {
	BaseImpl
	branches   []SwitchBranch
	def        *SwitchBranch
	allowAsync bool
}

func (s *switchImpl) choose(on interface{}) *SwitchBranch {
	for i := range s.branches {
		if s.branches[i].Match(on) {
			return &s.branches[i]
		}
	}
	return s.def
}

func (s *switchImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	on := args[switchOnArg]
	chosen := s.choose(on)
	if chosen == nil {
		return RunError(&NoDefaultBranchError{Step: rc.CurrentStep()})
	}
	if len(chosen.Steps) == 0 || chosen.Result == "" {
		return RunError(&InvalidIteratorStateError{Step: rc.CurrentStep(), Phase: "switch-empty-branch"})
	}

	driver := rc.CurrentStep()
	emitted := make([]*Step, len(chosen.Steps), len(chosen.Steps)+1)
	for i, st := range chosen.Steps {
		cp := *st
		if !s.allowAsync {
			cp.Async = nil
		}
		emitted[i] = &cp
	}
	finalise := NewStep(SwitchResult(driver), &switchFinaliseImpl{}, []Argument{
		Arg("value", Result(chosen.Result)),
	})
	emitted = append(emitted, finalise)

	return RunOkEmit(nil, emitted)
}

// switchFinaliseImpl surfaces the chosen branch's designated result step
// as this switch step's own retained value.
type switchFinaliseImpl struct{ BaseImpl }

func (f *switchFinaliseImpl) Run(rc *RuntimeContext, args map[string]interface{}, opts interface{}) RunOutcome {
	return RunOk(args["value"])
}
