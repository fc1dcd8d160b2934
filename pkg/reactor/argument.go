package reactor

// dropArgument is the reserved argument name meaning "satisfy the
// dependency but do not pass the resolved value to the step."
const dropArgument = "_"

// Fn1 is a single-argument transform applied either to one Argument's
// resolved value or to a reactor input's supplied value (AddInputT).
// Step-wide transforms use Step.Transform's own map-to-map signature.
type Fn1 func(interface{}) (interface{}, error)

// Argument binds one named step input to a value source, with an
// optional transform applied after resolution.
type Argument struct {
	Name      string
	Source    Template
	Transform Fn1
}

// Arg builds an Argument with no transform.
func Arg(name string, source Template) Argument {
	return Argument{Name: name, Source: source}
}

// ArgT builds an Argument with a resolution-time transform.
func ArgT(name string, source Template, transform Fn1) Argument {
	return Argument{Name: name, Source: source, Transform: transform}
}

// Drop builds an Argument that only contributes a dependency edge: it is
// resolved (so the step's plan waits on it) but dropped from the final
// arguments map passed to the step body.
func Drop(source Template) Argument {
	return Argument{Name: dropArgument, Source: source}
}
