package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/finadvisor/stepflow/internal/models"
	"github.com/finadvisor/stepflow/internal/store"
)

// StateManager persists flow-run snapshots so an interrupted flow can be
// inspected or resumed. It is optional; the interpreter works without one.
type StateManager interface {
	// SaveFlowState stores a snapshot of a participant's flow run.
	SaveFlowState(ctx context.Context, state models.FlowState) error

	// GetFlowState retrieves the stored snapshot, or nil if none exists.
	GetFlowState(ctx context.Context, participantID string, flowID models.FlowID) (*models.FlowState, error)

	// ResetFlowState removes the stored snapshot for a participant's flow.
	ResetFlowState(ctx context.Context, participantID string, flowID models.FlowID) error
}

// StoreBasedStateManager implements StateManager using a store backend.
type StoreBasedStateManager struct {
	store store.Store
}

// NewStoreBasedStateManager creates a StateManager backed by a Store.
func NewStoreBasedStateManager(st store.Store) *StoreBasedStateManager {
	slog.Debug("Creating StoreBasedStateManager")
	return &StoreBasedStateManager{store: st}
}

// SaveFlowState stores a snapshot of a participant's flow run.
func (sm *StoreBasedStateManager) SaveFlowState(ctx context.Context, state models.FlowState) error {
	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now()
	}
	state.UpdatedAt = time.Now()
	if err := sm.store.SaveFlowState(state); err != nil {
		slog.Error("StateManager SaveFlowState error", "error", err, "participant", state.ParticipantID, "flow", state.FlowID)
		return err
	}
	slog.Debug("StateManager SaveFlowState succeeded", "participant", state.ParticipantID, "flow", state.FlowID, "step", state.CurrentStepID, "status", state.Status)
	return nil
}

// GetFlowState retrieves the stored snapshot, or nil if none exists.
func (sm *StoreBasedStateManager) GetFlowState(ctx context.Context, participantID string, flowID models.FlowID) (*models.FlowState, error) {
	state, err := sm.store.GetFlowState(participantID, string(flowID))
	if err != nil {
		slog.Error("StateManager GetFlowState error", "error", err, "participant", participantID, "flow", flowID)
		return nil, err
	}
	if state == nil {
		slog.Debug("StateManager GetFlowState not found", "participant", participantID, "flow", flowID)
		return nil, nil
	}
	slog.Debug("StateManager GetFlowState found", "participant", participantID, "flow", flowID, "step", state.CurrentStepID)
	return state, nil
}

// ResetFlowState removes the stored snapshot for a participant's flow.
func (sm *StoreBasedStateManager) ResetFlowState(ctx context.Context, participantID string, flowID models.FlowID) error {
	if err := sm.store.DeleteFlowState(participantID, string(flowID)); err != nil {
		slog.Error("StateManager ResetFlowState error", "error", err, "participant", participantID, "flow", flowID)
		return err
	}
	slog.Info("StateManager ResetFlowState succeeded", "participant", participantID, "flow", flowID)
	return nil
}
