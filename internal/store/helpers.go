package store

import (
	"encoding/json"
	"fmt"

	"github.com/finadvisor/stepflow/internal/models"
)

// encodeFlowState serializes the variable-shaped columns (seed, ledger) for a
// database row.
func encodeFlowState(state models.FlowState) (seedJSON, ledgerJSON string, err error) {
	seedBytes, err := json.Marshal(state.Seed)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode seed: %w", err)
	}
	ledgerBytes, err := json.Marshal(state.Ledger)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode ledger: %w", err)
	}
	return string(seedBytes), string(ledgerBytes), nil
}

// decodeFlowState restores the variable-shaped columns of a database row.
func decodeFlowState(state *models.FlowState, seedJSON, ledgerJSON string) error {
	if seedJSON != "" {
		if err := json.Unmarshal([]byte(seedJSON), &state.Seed); err != nil {
			return fmt.Errorf("failed to decode seed: %w", err)
		}
	}
	if ledgerJSON != "" {
		if err := json.Unmarshal([]byte(ledgerJSON), &state.Ledger); err != nil {
			return fmt.Errorf("failed to decode ledger: %w", err)
		}
	}
	return nil
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
