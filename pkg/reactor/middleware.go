package reactor

// EventKind names one point in the per-step lifecycle.
type EventKind string

const (
	EventRunStart           EventKind = "run_start"
	EventRunComplete        EventKind = "run_complete"
	EventRunError           EventKind = "run_error"
	EventRunRetry           EventKind = "run_retry"
	EventRunHalt            EventKind = "run_halt"
	EventCompensateStart    EventKind = "compensate_start"
	EventCompensateComplete EventKind = "compensate_complete"
	EventCompensateRetry    EventKind = "compensate_retry"
	EventCompensateContinue EventKind = "compensate_continue"
	EventCompensateError    EventKind = "compensate_error"
	EventUndoStart          EventKind = "undo_start"
	EventUndoComplete       EventKind = "undo_complete"
	EventUndoRetry          EventKind = "undo_retry"
	EventUndoError          EventKind = "undo_error"
	EventProcessStart       EventKind = "process_start"
	EventProcessTerminate   EventKind = "process_terminate"
)

// Event is one lifecycle notification fired exactly once per
// transition.
type Event struct {
	Kind EventKind
	Step string
	Data interface{}
}

// Middleware is an ordered lifecycle/event handler. Each hook is
// optional: embed BaseMiddleware and override only what you need, the
// same default-method pattern BaseImpl gives the step contract.
type Middleware interface {
	Init(rc *RuntimeContext) error
	Halt(rc *RuntimeContext) error
	Complete(value interface{}, rc *RuntimeContext) (interface{}, error)
	OnError(errs []error, rc *RuntimeContext) error
	OnEvent(ev Event, step *Step, rc *RuntimeContext)
}

// BaseMiddleware is a no-op Middleware; embed it and override selectively.
type BaseMiddleware struct{}

func (BaseMiddleware) Init(*RuntimeContext) error                         { return nil }
func (BaseMiddleware) Halt(*RuntimeContext) error                         { return nil }
func (BaseMiddleware) Complete(v interface{}, _ *RuntimeContext) (interface{}, error) { return v, nil }
func (BaseMiddleware) OnError(errs []error, _ *RuntimeContext) error {
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}
func (BaseMiddleware) OnEvent(Event, *Step, *RuntimeContext) {}

func (r *Reactor) dispatchInit(rc *RuntimeContext) error {
	for _, m := range r.middleware {
		if err := m.Init(rc); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reactor) dispatchHalt(rc *RuntimeContext) {
	for _, m := range r.middleware {
		_ = m.Halt(rc)
	}
}

func (r *Reactor) dispatchComplete(value interface{}, rc *RuntimeContext) interface{} {
	for _, m := range r.middleware {
		if v, err := m.Complete(value, rc); err == nil {
			value = v
		}
	}
	return value
}

func (r *Reactor) dispatchErrors(errs []error, rc *RuntimeContext) {
	for _, m := range r.middleware {
		_ = m.OnError(errs, rc)
	}
}

func (r *Reactor) dispatchEvent(ev Event, step *Step, rc *RuntimeContext) {
	for _, m := range r.middleware {
		m.OnEvent(ev, step, rc)
	}
}
