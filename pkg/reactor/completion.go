package reactor

import "time"

// handleCompletion interprets one step invocation's outcome — the only
// place that mutates reactor/exec state for a finished step, whether it
// ran synchronously or was drained off es.resultsCh.
func (r *Reactor) handleCompletion(es *execState, inv invocation) {
	s := inv.step
	_, wasAsync := es.running[s.Name]
	delete(es.running, s.Name)
	rc := es.rc

	switch inv.outcome.kind {
	case runOk, runOkEmit:
		if !inv.guarded {
			r.dispatchEvent(Event{Kind: EventRunComplete, Step: s.Name, Data: inv.outcome.value}, s, rc)
		}
		r.finishStepSuccess(es, inv)
	case runError:
		r.dispatchEvent(Event{Kind: EventRunError, Step: s.Name, Data: inv.outcome.err}, s, rc)
		r.handleStepError(es, inv, inv.outcome.err)
	case runRetry:
		r.dispatchEvent(Event{Kind: EventRunRetry, Step: s.Name}, s, rc)
		r.scheduleRetry(es, s, inv.args, inv.outcome.err)
	case runHalt:
		r.dispatchEvent(Event{Kind: EventRunHalt, Step: s.Name, Data: inv.outcome.err}, s, rc)
		r.results[s.Name] = inv.outcome.err
		es.mode = modeHalting
	}

	if wasAsync {
		r.dispatchEvent(Event{Kind: EventProcessTerminate, Step: s.Name}, s, rc)
	}
}

// finishStepSuccess records a successful (or guard-substituted, or
// compensate-Continue) result: retains it if still depended upon, pushes
// it onto the undo stack if undoable, merges any dynamically emitted
// steps, and removes the step from the plan.
func (r *Reactor) finishStepSuccess(es *execState, inv invocation) {
	s := inv.step
	v := inv.outcome.value

	if deps := r.graph.dependents[s.Name]; len(deps) > 0 || s.Name == r.returnName {
		r.results[s.Name] = v
	}
	if s.isUndoable() {
		r.undoStack = append(r.undoStack, undoEntry{step: s, args: inv.args, ctx: inv.ctxData, value: v})
	}
	if inv.outcome.kind == runOkEmit && len(inv.outcome.newSteps) > 0 {
		r.steps = append(r.steps, inv.outcome.newSteps...)
	}

	r.graph.remove(s.Name)
	delete(es.retries, s.ref())
	delete(es.backoffs, s.ref())

	if len(r.steps) > 0 {
		if err := r.Plan(); err != nil {
			es.mode = modeUndoRequested
			es.rollbackCause = err
			return
		}
	}
	r.purgeUnreferencedResults()
}

// purgeUnreferencedResults drops any retained result no longer
// referenced by an unresolved step. The return step's result is kept
// until the reactor actually completes.
func (r *Reactor) purgeUnreferencedResults() {
	referenced := map[string]bool{r.returnName: true}
	for _, s := range r.graph.steps {
		for _, a := range s.Arguments {
			if a.Source.Kind == TemplateResult {
				referenced[a.Source.Name] = true
			}
		}
	}
	for _, s := range r.steps {
		for _, a := range s.Arguments {
			if a.Source.Kind == TemplateResult {
				referenced[a.Source.Name] = true
			}
		}
	}
	for name := range r.results {
		if !referenced[name] {
			delete(r.results, name)
		}
	}
}

// handleStepError routes a Run failure to Impl.Compensate and interprets
// its outcome.
func (r *Reactor) handleStepError(es *execState, inv invocation, cause error) {
	s := inv.step
	rc := es.rc
	stepRC := rc.clone()
	stepRC.currentStep = s.Name
	stepRC = stepRC.patched(s.ContextPatch)

	r.dispatchEvent(Event{Kind: EventCompensateStart, Step: s.Name, Data: cause}, s, rc)
	comp := safeCompensate(stepRC, s, cause, inv.args)

	switch comp.kind {
	case compensateContinue:
		r.dispatchEvent(Event{Kind: EventCompensateContinue, Step: s.Name, Data: comp.value}, s, rc)
		inv.outcome = RunOk(comp.value)
		r.finishStepSuccess(es, inv)
	case compensateOk:
		r.dispatchEvent(Event{Kind: EventCompensateComplete, Step: s.Name}, s, rc)
		es.mode = modeUndoRequested
		es.rollbackCause = cause
	case compensateRetry:
		r.dispatchEvent(Event{Kind: EventCompensateRetry, Step: s.Name}, s, rc)
		r.scheduleRetry(es, s, inv.args, comp.err)
	case compensateError:
		r.dispatchEvent(Event{Kind: EventCompensateError, Step: s.Name, Data: comp.err}, s, rc)
		es.mode = modeUndoRequested
		es.rollbackCause = comp.err
	}
}

// scheduleRetry increments the ref's shared retry counter (not reset
// between a failing run and a compensate-driven retry) and either
// schedules a backoff or fails with RetriesExceededError. args are the
// arguments the failed attempt resolved, handed to Backoff.
func (r *Reactor) scheduleRetry(es *execState, s *Step, args map[string]interface{}, reason error) {
	ref := s.ref()
	es.retries[ref]++
	if s.MaxRetries != InfiniteRetries && es.retries[ref] > s.MaxRetries {
		es.mode = modeUndoRequested
		es.rollbackCause = &RetriesExceededError{Step: s.Name, RetryCount: es.retries[ref], Cause: reason}
		return
	}
	if delay, ok := s.Impl.Backoff(es.retries[ref], args, s.Opts); ok && delay > 0 {
		es.backoffs[ref] = time.Now().Add(delay)
	}
}
