// Package flow implements the conversational step-flow engine: step
// definitions, the answer ledger, input validation, the flow interpreter, and
// submission coordinators for the fin-advisor backend.
package flow

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/finadvisor/stepflow/internal/models"
)

// AnswerView is the read-only ledger access given to branching rules.
type AnswerView interface {
	Get(stepID models.StepID) (models.Answer, bool)
}

// RouteContext carries the inputs available to a branching rule: the answers
// recorded so far and the out-of-band seed values the flow was started with.
type RouteContext struct {
	Answers AnswerView
	Seed    map[string]string
}

// NextStepRule resolves the step following the current one. Returning an id
// that does not exist in the definition is a flow-definition bug.
type NextStepRule func(rc RouteContext) models.StepID

// Definition is an immutable ordered list of step descriptors with optional
// branching rules and per-step fallback options. Only a step's options may be
// replaced after construction (dynamic suggestion injection); ids, kinds, and
// positions never change.
type Definition struct {
	flowID   models.FlowID
	steps    []models.StepDescriptor
	index    map[models.StepID]int
	rules    map[models.StepID]NextStepRule
	fallback map[models.StepID][]string

	mu sync.RWMutex // guards option replacement
}

// DefinitionOption configures a Definition at construction time.
type DefinitionOption func(*Definition)

// WithBranchRule attaches a branching rule to the given step.
func WithBranchRule(stepID models.StepID, rule NextStepRule) DefinitionOption {
	return func(d *Definition) {
		d.rules[stepID] = rule
	}
}

// WithFallbackOptions registers the fixed option list used when a dynamic
// option fetch for the step fails or yields nothing.
func WithFallbackOptions(stepID models.StepID, options []string) DefinitionOption {
	return func(d *Definition) {
		d.fallback[stepID] = append([]string(nil), options...)
	}
}

// NewDefinition builds a Definition from an ordered step list. Step ids must be
// unique and the list must end with a terminal step.
func NewDefinition(flowID models.FlowID, steps []models.StepDescriptor, opts ...DefinitionOption) (*Definition, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("flow %s: no steps defined", flowID)
	}
	d := &Definition{
		flowID:   flowID,
		steps:    append([]models.StepDescriptor(nil), steps...),
		index:    make(map[models.StepID]int, len(steps)),
		rules:    make(map[models.StepID]NextStepRule),
		fallback: make(map[models.StepID][]string),
	}
	for i, s := range d.steps {
		if _, dup := d.index[s.ID]; dup {
			return nil, fmt.Errorf("flow %s: duplicate step id %q", flowID, s.ID)
		}
		d.index[s.ID] = i
	}
	if d.steps[len(d.steps)-1].Kind != models.StepKindTerminal {
		return nil, fmt.Errorf("flow %s: last step must be terminal", flowID)
	}
	for _, opt := range opts {
		opt(d)
	}
	for id := range d.rules {
		if _, ok := d.index[id]; !ok {
			return nil, fmt.Errorf("flow %s: branch rule on unknown step %q", flowID, id)
		}
	}
	return d, nil
}

// MustDefinition is NewDefinition for statically declared flows, where a
// malformed step list is a programming error.
func MustDefinition(flowID models.FlowID, steps []models.StepDescriptor, opts ...DefinitionOption) *Definition {
	d, err := NewDefinition(flowID, steps, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// Clone returns an independent copy of the definition. Each interpreter run
// works on its own clone, so dynamically loaded options for one run never leak
// into another run of the same flow. Rules and fallback options are immutable
// after construction and stay shared.
func (d *Definition) Clone() *Definition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c := &Definition{
		flowID:   d.flowID,
		steps:    make([]models.StepDescriptor, len(d.steps)),
		index:    make(map[models.StepID]int, len(d.index)),
		rules:    d.rules,
		fallback: d.fallback,
	}
	copy(c.steps, d.steps)
	for i, s := range c.steps {
		c.steps[i].Options = append([]string(nil), s.Options...)
		c.index[s.ID] = i
	}
	return c
}

// FlowID returns the identifier of this flow definition.
func (d *Definition) FlowID() models.FlowID {
	return d.flowID
}

// Len returns the number of steps in the definition.
func (d *Definition) Len() int {
	return len(d.steps)
}

// Step returns the descriptor for the given id with its current options.
func (d *Definition) Step(id models.StepID) (models.StepDescriptor, bool) {
	i, ok := d.index[id]
	if !ok {
		return models.StepDescriptor{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := d.steps[i]
	s.Options = append([]string(nil), s.Options...)
	return s, true
}

// InitialStepID returns the id of the first step.
func (d *Definition) InitialStepID() models.StepID {
	return d.steps[0].ID
}

// IsTerminal reports whether the given step ends the flow.
func (d *Definition) IsTerminal(id models.StepID) bool {
	i, ok := d.index[id]
	return ok && d.steps[i].Kind == models.StepKindTerminal
}

// SetOptions replaces the options of a choice step, e.g. once fetched
// suggestions arrive. Passing an empty list applies the step's fallback
// options, so a choice step is never left with zero options.
func (d *Definition) SetOptions(id models.StepID, options []string) error {
	i, ok := d.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownStep, id)
	}
	kind := d.steps[i].Kind
	if kind != models.StepKindChoiceSingle && kind != models.StepKindChoiceMulti {
		return fmt.Errorf("%w: %s", models.ErrNotChoiceStep, id)
	}
	if len(options) == 0 {
		options = d.fallback[id]
		slog.Debug("Definition SetOptions using fallback", "flow", d.flowID, "step", id, "count", len(options))
	}
	if len(options) == 0 {
		return fmt.Errorf("flow %s: step %s would be left without options", d.flowID, id)
	}
	d.mu.Lock()
	d.steps[i].Options = append([]string(nil), options...)
	d.mu.Unlock()
	slog.Debug("Definition SetOptions applied", "flow", d.flowID, "step", id, "count", len(options))
	return nil
}

// Route resolves the step following current, applying the step's branching
// rule when present and the positional successor otherwise. A rule resolving
// to an unknown id panics: that is a flow-definition bug, not a user or
// runtime condition.
func (d *Definition) Route(current models.StepID, rc RouteContext) models.StepID {
	i, ok := d.index[current]
	if !ok {
		panic(fmt.Sprintf("flow %s: routing from unknown step %q", d.flowID, current))
	}
	if rule, ok := d.rules[current]; ok {
		next := rule(rc)
		if _, ok := d.index[next]; !ok {
			panic(fmt.Sprintf("flow %s: branch rule on %q resolved to unknown step %q", d.flowID, current, next))
		}
		return next
	}
	if i+1 >= len(d.steps) {
		panic(fmt.Sprintf("flow %s: no successor after step %q", d.flowID, current))
	}
	return d.steps[i+1].ID
}
