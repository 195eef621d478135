package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/finadvisor/stepflow/internal/models"
)

// Resume rebuilds an interpreter from a persisted flow-state snapshot so a
// participant continues where they left off. Flows that already reached a
// final status are not resumable. A run persisted mid-submission comes back
// as AwaitingRetry: the original in-flight call is lost, but the ledger
// snapshot is intact and a retry re-submits it without re-asking anything.
func Resume(ctx context.Context, reg *Registry, sm StateManager, session models.SessionContext, flowID models.FlowID, opts ...InterpreterOption) (*Interpreter, error) {
	state, err := sm.GetFlowState(ctx, session.PhoneNumber, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow state: %w", err)
	}
	if state == nil {
		return nil, models.ErrFlowNotResumable
	}
	switch state.Status {
	case models.FlowStatusSucceeded, models.FlowStatusFailed:
		return nil, fmt.Errorf("%w: flow already %s", models.ErrFlowNotResumable, state.Status)
	}
	bundle, ok := reg.Get(state.FlowID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNoFollowUpFlow, state.FlowID)
	}

	opts = append(opts, WithFlowRegistry(reg), WithStateManager(sm))
	i := NewInterpreter(bundle, session, opts...)

	i.mu.Lock()
	i.runID = state.RunID
	if i.runID == "" {
		i.runID = uuid.NewString()
	}
	i.seed = copySeed(state.Seed)
	i.createdAt = state.CreatedAt
	for _, e := range state.Ledger {
		if err := i.ledger.Record(e.StepID, e.Value); err != nil {
			i.mu.Unlock()
			return nil, fmt.Errorf("corrupt flow state for %s: %w", state.FlowID, err)
		}
	}
	if _, ok := i.def.Step(state.CurrentStepID); ok {
		i.current = state.CurrentStepID
	} else {
		slog.Warn("Resume found unknown step in persisted state, restarting at initial step", "flow", state.FlowID, "step", state.CurrentStepID)
		i.current = i.def.InitialStepID()
	}
	switch state.Status {
	case models.FlowStatusSubmitting, models.FlowStatusAwaitingRetry:
		i.status = models.FlowStatusAwaitingRetry
		i.pendingSubmit = i.ledger.Snapshot()
		i.failureReason = state.FailureReason
	default:
		i.status = models.FlowStatusInProgress
	}
	i.launchLoadersLocked(ctx)
	slog.Info("Resume restored flow", "flow", state.FlowID, "run_id", i.runID, "step", i.current, "status", i.status, "answers", i.ledger.Len())
	i.mu.Unlock()
	return i, nil
}
