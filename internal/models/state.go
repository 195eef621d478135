// Package models defines state management structures for flow runs.
package models

import "time"

// FlowStatus represents the lifecycle state of a flow run.
type FlowStatus string

const (
	// FlowStatusInProgress means the flow is waiting for an answer to the current step.
	FlowStatusInProgress FlowStatus = "IN_PROGRESS"
	// FlowStatusSubmitting means the terminal submission is in flight.
	FlowStatusSubmitting FlowStatus = "SUBMITTING"
	// FlowStatusSucceeded means the flow completed successfully.
	FlowStatusSucceeded FlowStatus = "SUCCEEDED"
	// FlowStatusFailed means the flow hit a fatal failure and must restart.
	FlowStatusFailed FlowStatus = "FAILED"
	// FlowStatusAwaitingRetry means a recoverable submission failure is waiting
	// for the user to retry or abandon.
	FlowStatusAwaitingRetry FlowStatus = "AWAITING_RETRY"
)

// FlowState is a snapshot of one flow run for a participant.
type FlowState struct {
	RunID         string            `json:"run_id"`
	ParticipantID string            `json:"participant_id"`
	FlowID        FlowID            `json:"flow_id"`
	CurrentStepID StepID            `json:"current_step_id"`
	Status        FlowStatus        `json:"status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Seed          map[string]string `json:"seed,omitempty"`
	Ledger        []LedgerEntry     `json:"ledger,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}
