// Package store provides storage backends for flow-state snapshots.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/finadvisor/stepflow/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists flow states in a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running PostgreSQL migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// SaveFlowState inserts or replaces the snapshot for (participant, flow).
func (s *PostgresStore) SaveFlowState(state models.FlowState) error {
	seedJSON, ledgerJSON, err := encodeFlowState(state)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO flow_states (participant_id, flow_id, run_id, current_step, status, failure_reason, seed, ledger, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (participant_id, flow_id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			current_step = EXCLUDED.current_step,
			status = EXCLUDED.status,
			failure_reason = EXCLUDED.failure_reason,
			seed = EXCLUDED.seed,
			ledger = EXCLUDED.ledger,
			updated_at = EXCLUDED.updated_at`,
		state.ParticipantID, string(state.FlowID), state.RunID, string(state.CurrentStepID), string(state.Status),
		nilIfEmpty(state.FailureReason), seedJSON, ledgerJSON, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveFlowState failed", "error", err, "participant", state.ParticipantID, "flow", state.FlowID)
		return fmt.Errorf("failed to save flow state: %w", err)
	}
	slog.Debug("PostgresStore SaveFlowState succeeded", "participant", state.ParticipantID, "flow", state.FlowID)
	return nil
}

// GetFlowState returns the stored snapshot, or nil if none exists.
func (s *PostgresStore) GetFlowState(participantID, flowID string) (*models.FlowState, error) {
	row := s.db.QueryRow(`
		SELECT participant_id, flow_id, run_id, current_step, status, failure_reason, seed, ledger, created_at, updated_at
		  FROM flow_states WHERE participant_id = $1 AND flow_id = $2`, participantID, flowID)

	var state models.FlowState
	var flowIDCol, stepCol, statusCol string
	var failureReason, seedJSON, ledgerJSON sql.NullString
	err := row.Scan(&state.ParticipantID, &flowIDCol, &state.RunID, &stepCol, &statusCol,
		&failureReason, &seedJSON, &ledgerJSON, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetFlowState scan failed", "error", err, "participant", participantID, "flow", flowID)
		return nil, fmt.Errorf("failed to scan flow state: %w", err)
	}
	state.FlowID = models.FlowID(flowIDCol)
	state.CurrentStepID = models.StepID(stepCol)
	state.Status = models.FlowStatus(statusCol)
	state.FailureReason = failureReason.String
	if err := decodeFlowState(&state, seedJSON.String, ledgerJSON.String); err != nil {
		return nil, err
	}
	return &state, nil
}

// DeleteFlowState removes the stored snapshot.
func (s *PostgresStore) DeleteFlowState(participantID, flowID string) error {
	_, err := s.db.Exec(`DELETE FROM flow_states WHERE participant_id = $1 AND flow_id = $2`, participantID, flowID)
	if err != nil {
		slog.Error("PostgresStore DeleteFlowState failed", "error", err, "participant", participantID, "flow", flowID)
		return fmt.Errorf("failed to delete flow state: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Open selects a backend by DSN: empty for in-memory, PostgreSQL connection
// strings for Postgres, anything else as a SQLite file path.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		slog.Debug("Store Open: no DSN, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(dsn) == "postgres" {
		return NewPostgresStore(WithDSN(dsn))
	}
	return NewSQLiteStore(WithDSN(dsn))
}
