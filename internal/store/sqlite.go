// Package store provides storage backends for flow-state snapshots.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/finadvisor/stepflow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration.
const (
	// DefaultDirPermissions defines the default permissions for database directories.
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists flow states in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path to the database file; its directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveFlowState inserts or replaces the snapshot for (participant, flow).
func (s *SQLiteStore) SaveFlowState(state models.FlowState) error {
	seedJSON, ledgerJSON, err := encodeFlowState(state)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO flow_states (participant_id, flow_id, run_id, current_step, status, failure_reason, seed, ledger, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		state.ParticipantID, string(state.FlowID), state.RunID, string(state.CurrentStepID), string(state.Status),
		nilIfEmpty(state.FailureReason), seedJSON, ledgerJSON, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveFlowState failed", "error", err, "participant", state.ParticipantID, "flow", state.FlowID)
		return fmt.Errorf("failed to save flow state: %w", err)
	}
	slog.Debug("SQLiteStore SaveFlowState succeeded", "participant", state.ParticipantID, "flow", state.FlowID)
	return nil
}

// GetFlowState returns the stored snapshot, or nil if none exists.
func (s *SQLiteStore) GetFlowState(participantID, flowID string) (*models.FlowState, error) {
	row := s.db.QueryRow(`
		SELECT participant_id, flow_id, run_id, current_step, status, failure_reason, seed, ledger, created_at, updated_at
		  FROM flow_states WHERE participant_id = ? AND flow_id = ?`, participantID, flowID)

	var state models.FlowState
	var flowIDCol, stepCol, statusCol string
	var failureReason, seedJSON, ledgerJSON sql.NullString
	err := row.Scan(&state.ParticipantID, &flowIDCol, &state.RunID, &stepCol, &statusCol,
		&failureReason, &seedJSON, &ledgerJSON, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetFlowState scan failed", "error", err, "participant", participantID, "flow", flowID)
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
func (s *SQLiteStore) DeleteFlowState(participantID, flowID string) error {
	_, err := s.db.Exec(`DELETE FROM flow_states WHERE participant_id = ? AND flow_id = ?`, participantID, flowID)
	if err != nil {
		slog.Error("SQLiteStore DeleteFlowState failed", "error", err, "participant", participantID, "flow", flowID)
		return fmt.Errorf("failed to delete flow state: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
