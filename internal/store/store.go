// Package store provides storage backends for flow-state snapshots.
//
// It includes an in-memory store plus SQLite and PostgreSQL backends selected
// by DSN. The flow engine treats persistence as optional infrastructure: the
// in-memory store is the default and the only one required for correctness.
package store

import (
	"strings"
	"sync"

	"github.com/finadvisor/stepflow/internal/models"
)

// Store persists flow-state snapshots keyed by participant and flow id.
type Store interface {
	// SaveFlowState inserts or replaces the snapshot for (participant, flow).
	SaveFlowState(state models.FlowState) error

	// GetFlowState returns the stored snapshot, or nil if none exists.
	GetFlowState(participantID, flowID string) (*models.FlowState, error)

	// DeleteFlowState removes the stored snapshot.
	DeleteFlowState(participantID, flowID string) error

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

type stateKey struct {
	participantID string
	flowID        string
}

// InMemoryStore is a mutex-guarded in-memory store, used by default and in tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[stateKey]models.FlowState
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[stateKey]models.FlowState)}
}

// SaveFlowState inserts or replaces the snapshot for (participant, flow).
func (s *InMemoryStore) SaveFlowState(state models.FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[stateKey{state.ParticipantID, string(state.FlowID)}] = state
	return nil
}

// GetFlowState returns the stored snapshot, or nil if none exists.
func (s *InMemoryStore) GetFlowState(participantID, flowID string) (*models.FlowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[stateKey{participantID, flowID}]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// DeleteFlowState removes the stored snapshot.
func (s *InMemoryStore) DeleteFlowState(participantID, flowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, stateKey{participantID, flowID})
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
