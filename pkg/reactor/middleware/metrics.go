package middleware

import (
	"time"

	"github.com/reactorrun/reactor/internal/platform/metrics"
	"github.com/reactorrun/reactor/pkg/reactor"
)

// Metrics is a reactor.Middleware counting step lifecycle events and
// observing run durations against a metrics.Metrics registry: start a
// timer on run_start, record on the way out.
type Metrics struct {
	reactor.BaseMiddleware
	m     *metrics.Metrics
	start map[string]time.Time
}

// NewMetrics builds a Metrics middleware recording against m.
func NewMetrics(m *metrics.Metrics) *Metrics {
	return &Metrics{m: m, start: map[string]time.Time{}}
}

func (mw *Metrics) Init(rc *reactor.RuntimeContext) error {
	mw.m.ReactorsInFlight.Inc()
	return nil
}

func (mw *Metrics) Complete(value interface{}, rc *reactor.RuntimeContext) (interface{}, error) {
	mw.m.ReactorsInFlight.Dec()
	return value, nil
}

func (mw *Metrics) Halt(rc *reactor.RuntimeContext) error {
	mw.m.ReactorsInFlight.Dec()
	return nil
}

func (mw *Metrics) OnEvent(ev reactor.Event, step *reactor.Step, rc *reactor.RuntimeContext) {
	switch ev.Kind {
	case reactor.EventRunStart:
		mw.start[ev.Step] = time.Now()
		mw.m.RunsTotal.WithLabelValues(ev.Step, "start").Inc()
	case reactor.EventRunComplete:
		mw.m.RunsTotal.WithLabelValues(ev.Step, "complete").Inc()
		mw.observe(ev.Step)
	case reactor.EventRunError:
		mw.m.RunsTotal.WithLabelValues(ev.Step, "error").Inc()
		mw.observe(ev.Step)
	case reactor.EventRunRetry:
		mw.m.RunRetries.WithLabelValues(ev.Step).Inc()
	case reactor.EventCompensateComplete:
		mw.m.CompensationsTotal.WithLabelValues(ev.Step, "ok").Inc()
	case reactor.EventCompensateContinue:
		mw.m.CompensationsTotal.WithLabelValues(ev.Step, "continue").Inc()
	case reactor.EventCompensateError:
		mw.m.CompensationsTotal.WithLabelValues(ev.Step, "error").Inc()
	case reactor.EventUndoComplete:
		mw.m.UndosTotal.WithLabelValues(ev.Step, "ok").Inc()
	case reactor.EventUndoRetry:
		mw.m.UndosTotal.WithLabelValues(ev.Step, "retry").Inc()
	case reactor.EventUndoError:
		mw.m.UndosTotal.WithLabelValues(ev.Step, "error").Inc()
	case reactor.EventProcessStart, reactor.EventProcessTerminate:
		if st, ok := reactor.Status(rc.ConcurrencyKey()); ok {
			mw.m.ConcurrencyPoolUsed.WithLabelValues(rc.ConcurrencyKey()).Set(float64(st.Limit - st.Available))
		}
	}
}

func (mw *Metrics) observe(step string) {
	if started, ok := mw.start[step]; ok {
		mw.m.RunDuration.WithLabelValues(step).Observe(time.Since(started).Seconds())
		delete(mw.start, step)
	}
}
