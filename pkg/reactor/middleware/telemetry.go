package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/reactorrun/reactor/pkg/reactor"
)

// Telemetry is a reactor.Middleware that opens one span per step
// run/compensate/undo call and records retries as span events, driven
// by step lifecycle events rather than RPC interceptors.
type Telemetry struct {
	reactor.BaseMiddleware
	tracer trace.Tracer
	spans  map[string]trace.Span
	ctxs   map[string]context.Context
}

// NewTelemetry builds a Telemetry middleware emitting spans via tracer.
func NewTelemetry(tracer trace.Tracer) *Telemetry {
	return &Telemetry{
		tracer: tracer,
		spans:  map[string]trace.Span{},
		ctxs:   map[string]context.Context{},
	}
}

func (t *Telemetry) OnEvent(ev reactor.Event, step *reactor.Step, rc *reactor.RuntimeContext) {
	switch ev.Kind {
	case reactor.EventRunStart:
		t.start(ev.Step, "run")
	case reactor.EventRunComplete:
		t.end(ev.Step, nil)
	case reactor.EventRunError:
		t.end(ev.Step, errFromData(ev.Data))
	case reactor.EventRunRetry, reactor.EventCompensateRetry:
		// The retried Run is a new call with its own span.
		t.event(ev.Step, "retry")
		t.end(ev.Step, nil)
	case reactor.EventCompensateStart:
		t.start(ev.Step, "compensate")
	case reactor.EventCompensateComplete, reactor.EventCompensateContinue:
		t.end(ev.Step, nil)
	case reactor.EventCompensateError:
		t.end(ev.Step, errFromData(ev.Data))
	case reactor.EventUndoStart:
		t.start(ev.Step, "undo")
	case reactor.EventUndoComplete:
		t.end(ev.Step, nil)
	case reactor.EventUndoError:
		t.end(ev.Step, errFromData(ev.Data))
	case reactor.EventUndoRetry:
		t.event(ev.Step, "retry")
	}
}

func (t *Telemetry) start(step, phase string) {
	ctx, span := t.tracer.Start(context.Background(), "reactor.step."+phase,
		trace.WithAttributes(attribute.String("step", step)))
	t.spans[step] = span
	t.ctxs[step] = ctx
}

func (t *Telemetry) event(step, name string) {
	if span, ok := t.spans[step]; ok {
		span.AddEvent(name)
	}
}

func (t *Telemetry) end(step string, err error) {
	span, ok := t.spans[step]
	if !ok {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
	delete(t.spans, step)
	delete(t.ctxs, step)
}

func errFromData(data interface{}) error {
	if err, ok := data.(error); ok {
		return err
	}
	return nil
}
