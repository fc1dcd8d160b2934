// Package middleware provides reactor.Middleware adapters wiring the
// platform packages (structured logging, metrics, tracing) into the
// engine's event-hook dispatch, kept in a dedicated package so
// pkg/reactor itself stays free of anything beyond context/sync/uuid.
package middleware

import (
	"github.com/reactorrun/reactor/internal/platform/logger"
	"github.com/reactorrun/reactor/pkg/reactor"
)

// Logging is a reactor.Middleware that logs every lifecycle event
// through the platform Logger interface: step-scoped fields, leveled by
// event kind.
type Logging struct {
	reactor.BaseMiddleware
	log logger.Logger
}

// NewLogging builds a Logging middleware writing through log.
func NewLogging(log logger.Logger) *Logging {
	return &Logging{log: log}
}

func (l *Logging) Init(rc *reactor.RuntimeContext) error {
	l.log.Info("reactor run starting")
	return nil
}

func (l *Logging) Halt(rc *reactor.RuntimeContext) error {
	l.log.Info("reactor run halted")
	return nil
}

func (l *Logging) Complete(value interface{}, rc *reactor.RuntimeContext) (interface{}, error) {
	l.log.Info("reactor run completed")
	return value, nil
}

func (l *Logging) OnError(errs []error, rc *reactor.RuntimeContext) error {
	for _, err := range errs {
		l.log.Error("reactor run failed", "error", err)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}

func (l *Logging) OnEvent(ev reactor.Event, step *reactor.Step, rc *reactor.RuntimeContext) {
	fields := map[string]interface{}{"step": ev.Step, "event": string(ev.Kind)}
	switch ev.Kind {
	case reactor.EventRunError, reactor.EventCompensateError, reactor.EventUndoError:
		l.log.WithFields(fields).Error("step event")
	case reactor.EventRunRetry, reactor.EventCompensateRetry, reactor.EventUndoRetry:
		l.log.WithFields(fields).Warn("step event")
	default:
		l.log.WithFields(fields).Debug("step event")
	}
}
