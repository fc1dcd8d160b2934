package reactor

// eventChannelSink is a Middleware that forwards every lifecycle event
// onto a caller-supplied buffered channel, letting tests and the demo
// command observe the exact ordered event sequence without writing a
// bespoke Middleware each time.
type eventChannelSink struct {
	BaseMiddleware
	ch chan Event
}

func (s *eventChannelSink) OnEvent(ev Event, step *Step, rc *RuntimeContext) {
	select {
	case s.ch <- ev:
	default:
		// Never block the driver goroutine on a slow or full consumer;
		// a dropped event is observable by gap in the sequence.
	}
}

// WithEventChannel attaches a Middleware that forwards every dispatched
// Event onto ch (non-blocking; a full channel drops the event rather
// than stalling execution) and returns the reactor for chaining with the
// other builder methods.
func WithEventChannel(r *Reactor, ch chan Event) *Reactor {
	return r.AddMiddleware(&eventChannelSink{ch: ch})
}
