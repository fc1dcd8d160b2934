package reactor

// rollback unwinds the undo stack LIFO, never short-circuiting on an
// undo error: every completed step is attempted regardless of earlier
// failures, and whatever went wrong along the way is joined into the
// terminal error.
func (r *Reactor) rollback(rc *RuntimeContext, es *execState) error {
	var errs []error

outer:
	for len(r.undoStack) > 0 {
		entry := r.undoStack[len(r.undoStack)-1]
		r.undoStack = r.undoStack[:len(r.undoStack)-1]

		s := entry.step
		stepRC := rc.clone()
		for k, v := range entry.ctx {
			stepRC.data[k] = v
		}
		stepRC.currentStep = s.Name

		r.dispatchEvent(Event{Kind: EventUndoStart, Step: s.Name}, s, rc)

		for attempt := 0; ; attempt++ {
			outcome := safeUndo(stepRC, s, entry.value, entry.args)
			switch outcome.kind {
			case undoOk:
				r.dispatchEvent(Event{Kind: EventUndoComplete, Step: s.Name}, s, rc)
				continue outer
			case undoRetry:
				r.dispatchEvent(Event{Kind: EventUndoRetry, Step: s.Name, Data: outcome.err}, s, rc)
				if attempt+1 >= MaxUndoRetries {
					err := &UndoRetriesExceededError{Step: s.Name, RetryCount: attempt + 1, Cause: outcome.err}
					errs = append(errs, err)
					r.dispatchEvent(Event{Kind: EventUndoError, Step: s.Name, Data: err}, s, rc)
					continue outer
				}
			case undoError:
				err := &UndoStepError{Step: s.Name, Cause: outcome.err}
				errs = append(errs, err)
				r.dispatchEvent(Event{Kind: EventUndoError, Step: s.Name, Data: err}, s, rc)
				continue outer
			}
		}
	}

	var all []error
	if es.rollbackCause != nil {
		all = append(all, es.rollbackCause)
	}
	all = append(all, errs...)
	if len(all) == 0 {
		return nil
	}
	r.state = Failed
	r.dispatchErrors(all, rc)
	return &FailedError{Cause: es.rollbackCause, Errors: errs}
}

// Undo walks a Successful reactor's undo stack without it having
// failed, reusing the same rollback machinery the engine runs
// internally after a failure; a clean unwind leaves the reactor
// Successful and returns nil.
func Undo(r *Reactor) error {
	if r.state != Successful {
		return &ForcedFailureError{Reason: "Undo called on a reactor that is not Successful"}
	}
	rc := NewRuntimeContext(nil)
	es := &execState{}
	return r.rollback(rc, es)
}
