package flow

import (
	"fmt"
	"log/slog"

	"github.com/finadvisor/stepflow/internal/models"
)

// Ledger accumulates validated answers keyed by step id, preserving insertion
// order for audit and submission. An answer, once recorded, is immutable for
// the remainder of the run; recording twice for the same step fails with
// models.ErrDuplicateAnswer. Clear resets the whole ledger, never one field.
type Ledger struct {
	entries []models.LedgerEntry
	index   map[models.StepID]int
}

// NewLedger creates an empty answer ledger.
func NewLedger() *Ledger {
	return &Ledger{index: make(map[models.StepID]int)}
}

// Record stores a validated answer for the given step.
func (l *Ledger) Record(stepID models.StepID, value models.Answer) error {
	if _, exists := l.index[stepID]; exists {
		slog.Error("Ledger duplicate answer rejected", "step", stepID)
		return fmt.Errorf("%w: %s", models.ErrDuplicateAnswer, stepID)
	}
	l.index[stepID] = len(l.entries)
	l.entries = append(l.entries, models.LedgerEntry{StepID: stepID, Value: value})
	slog.Debug("Ledger recorded answer", "step", stepID, "kind", value.Kind)
	return nil
}

// Get returns the recorded answer for the step, if any.
func (l *Ledger) Get(stepID models.StepID) (models.Answer, bool) {
	i, ok := l.index[stepID]
	if !ok {
		return models.Answer{}, false
	}
	return l.entries[i].Value, true
}

// Snapshot returns a copy of all entries in insertion order. Calling it twice
// without an intervening Record yields identical output.
func (l *Ledger) Snapshot() []models.LedgerEntry {
	return append([]models.LedgerEntry(nil), l.entries...)
}

// Len returns the number of recorded answers.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Clear resets the ledger to empty.
func (l *Ledger) Clear() {
	l.entries = nil
	l.index = make(map[models.StepID]int)
}
