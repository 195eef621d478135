package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finadvisor/stepflow/internal/models"
)

// Well-known seed keys carried between chained flows.
const (
	// SeedKeyStartFrom names a non-default initial step id for a flow, e.g. the
	// risk sub-sequence when the backend reports a partially onboarded user.
	SeedKeyStartFrom = "start_from"
	// SeedKeyPhoneNumber carries the user key into a chained flow.
	SeedKeyPhoneNumber = "phone_number"
	// SeedKeyGoalID carries the created goal id into the fund-selection flow.
	SeedKeyGoalID = "goal_id"
)

// Archive is the read-only record of a completed flow segment: its ledger and
// the submission outcome that ended it. Archives stay retrievable for audit
// after a follow-up chain but are never re-editable.
type Archive struct {
	FlowID  models.FlowID
	Entries []models.LedgerEntry
	Outcome models.SubmissionOutcome
}

// OutcomeHandler receives terminal submission outcomes, letting the
// presentation surface render them without polling.
type OutcomeHandler func(models.SubmissionOutcome)

// Interpreter walks a flow's step list, validates and records answers,
// applies branching rules, and drives terminal submission. All transitions
// are invoked synchronously from presentation events; only submissions and
// dynamic option fetches leave the calling goroutine.
type Interpreter struct {
	mu sync.Mutex

	session     models.SessionContext
	def         *Definition
	coordinator SubmissionCoordinator
	loaders     []OptionLoader
	flows       *Registry
	stateMgr    StateManager
	onOutcome   OutcomeHandler

	runID         string
	status        models.FlowStatus
	current       models.StepID
	ledger        *Ledger
	seed          map[string]string
	selections    []string
	inFlight      bool
	abandoned     bool
	pendingSubmit []models.LedgerEntry
	failureReason string
	archives      []Archive
	createdAt     time.Time
}

// InterpreterOption configures an Interpreter at construction time.
type InterpreterOption func(*Interpreter)

// WithFlowRegistry enables follow-up chaining into other registered flows.
func WithFlowRegistry(r *Registry) InterpreterOption {
	return func(i *Interpreter) {
		i.flows = r
	}
}

// WithStateManager enables flow-state snapshots after every transition.
func WithStateManager(sm StateManager) InterpreterOption {
	return func(i *Interpreter) {
		i.stateMgr = sm
	}
}

// WithOutcomeHandler registers a callback for terminal submission outcomes.
func WithOutcomeHandler(h OutcomeHandler) InterpreterOption {
	return func(i *Interpreter) {
		i.onOutcome = h
	}
}

// NewInterpreter creates an interpreter for the given flow bundle and session.
func NewInterpreter(b *Bundle, session models.SessionContext, opts ...InterpreterOption) *Interpreter {
	i := &Interpreter{
		session:     session,
		def:         b.Definition.Clone(),
		coordinator: b.Coordinator,
		loaders:     b.Loaders,
		ledger:      NewLedger(),
		status:      models.FlowStatusInProgress,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Start begins a fresh run at the flow's initial step, clearing the ledger
// and any archives from a previous run.
func (i *Interpreter) Start(ctx context.Context) {
	i.StartFrom(ctx, "", nil, nil)
}

// StartFrom begins a fresh run seeded with out-of-band values, optional
// pre-set ledger entries, and an optional non-default initial step. An empty
// stepID starts at the flow's initial step (or at the step named by the
// seed's start_from hint, when present).
func (i *Interpreter) StartFrom(ctx context.Context, stepID models.StepID, seed map[string]string, preset []models.LedgerEntry) {
	i.mu.Lock()
	i.runID = uuid.NewString()
	i.status = models.FlowStatusInProgress
	i.ledger = NewLedger()
	i.selections = nil
	i.abandoned = false
	i.inFlight = false
	i.pendingSubmit = nil
	i.failureReason = ""
	i.archives = nil
	i.createdAt = time.Now()
	i.seed = copySeed(seed)
	i.current = i.resolveInitialStep(stepID)
	for _, e := range preset {
		if err := i.ledger.Record(e.StepID, e.Value); err != nil {
			slog.Error("Interpreter preset entry rejected", "flow", i.def.FlowID(), "step", e.StepID, "error", err)
		}
	}
	slog.Info("Interpreter flow started", "flow", i.def.FlowID(), "run_id", i.runID, "initial_step", i.current)
	i.launchLoadersLocked(ctx)
	i.persistLocked(ctx)
	i.mu.Unlock()
}

// resolveInitialStep picks the initial step: an explicit override first, then
// the seed's start_from hint, then the definition's first step.
func (i *Interpreter) resolveInitialStep(stepID models.StepID) models.StepID {
	if stepID == "" {
		stepID = models.StepID(i.seed[SeedKeyStartFrom])
	}
	if stepID != "" {
		if _, ok := i.def.Step(stepID); ok {
			return stepID
		}
		slog.Warn("Interpreter ignoring unknown initial step", "flow", i.def.FlowID(), "step", stepID)
	}
	return i.def.InitialStepID()
}

// CurrentStep returns the descriptor the presentation surface should render,
// with {{step_id}} placeholders in the prompt substituted from recorded
// answers. It is valid to call while a submission is outstanding; the
// terminal step is returned in that case. After the flow has reached a final
// status it returns false.
func (i *Interpreter) CurrentStep() (models.StepDescriptor, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	switch i.status {
	case models.FlowStatusInProgress, models.FlowStatusSubmitting, models.FlowStatusAwaitingRetry:
	default:
		return models.StepDescriptor{}, false
	}
	step, ok := i.def.Step(i.current)
	if !ok {
		panic(fmt.Sprintf("flow %s: current step %q missing from definition", i.def.FlowID(), i.current))
	}
	step.Prompt = i.renderPromptLocked(step.Prompt)
	return step, true
}

// renderPromptLocked substitutes {{step_id}} tokens with recorded answers.
func (i *Interpreter) renderPromptLocked(prompt string) string {
	if !strings.Contains(prompt, "{{") {
		return prompt
	}
	for _, e := range i.ledger.Snapshot() {
		prompt = strings.ReplaceAll(prompt, "{{"+string(e.StepID)+"}}", e.Value.Display())
	}
	return prompt
}

// SubmitAnswer validates raw input against the current step's rule. On
// rejection the flow stays on the same step and the corrective message is
// returned as data; on acceptance the answer is recorded (welcome steps
// record nothing) and the flow advances, entering submission if the next step
// is terminal. Multi-select steps must use ToggleOption and ConfirmSelection.
func (i *Interpreter) SubmitAnswer(ctx context.Context, raw string) (models.ValidationOutcome, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status == models.FlowStatusSubmitting {
		return models.ValidationOutcome{}, models.ErrSubmissionInFlight
	}
	if i.status != models.FlowStatusInProgress {
		return models.ValidationOutcome{}, models.ErrNoActiveStep
	}
	step, _ := i.def.Step(i.current)
	if step.Kind == models.StepKindChoiceMulti {
		return models.ValidationOutcome{}, models.ErrMultiSelectStep
	}
	outcome := Validate(ruleFor(step), raw, step.Options)
	if !outcome.OK {
		slog.Debug("Interpreter answer rejected", "flow", i.def.FlowID(), "step", i.current, "message", outcome.UserMessage)
		return outcome, nil
	}
	if step.Kind != models.StepKindWelcome {
		if err := i.ledger.Record(i.current, outcome.Value); err != nil {
			return models.ValidationOutcome{}, err
		}
	}
	i.advanceLocked(ctx)
	return outcome, nil
}

// ToggleOption flips one option of the current multi-select step. Toggling an
// already-selected option removes it. The step does not advance; the updated
// selection set is returned along with the validation outcome for the option.
func (i *Interpreter) ToggleOption(option string) ([]string, models.ValidationOutcome, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status != models.FlowStatusInProgress {
		return nil, models.ValidationOutcome{}, models.ErrNoActiveStep
	}
	step, _ := i.def.Step(i.current)
	if step.Kind != models.StepKindChoiceMulti {
		return nil, models.ValidationOutcome{}, models.ErrNotMultiSelectStep
	}
	outcome := Validate(models.RuleChoiceMulti, option, step.Options)
	if !outcome.OK {
		return i.selectionsLocked(), outcome, nil
	}
	chosen := outcome.Value.Text
	for idx, sel := range i.selections {
		if sel == chosen {
			i.selections = append(i.selections[:idx], i.selections[idx+1:]...)
			slog.Debug("Interpreter option deselected", "flow", i.def.FlowID(), "step", i.current, "option", chosen)
			return i.selectionsLocked(), outcome, nil
		}
	}
	i.selections = append(i.selections, chosen)
	slog.Debug("Interpreter option selected", "flow", i.def.FlowID(), "step", i.current, "option", chosen)
	return i.selectionsLocked(), outcome, nil
}

// ConfirmSelection records the current multi-select set and advances. At
// least one option must be selected; this reproduces the "Done" gating of
// multi-pick steps.
func (i *Interpreter) ConfirmSelection(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status == models.FlowStatusSubmitting {
		return models.ErrSubmissionInFlight
	}
	if i.status != models.FlowStatusInProgress {
		return models.ErrNoActiveStep
	}
	step, _ := i.def.Step(i.current)
	if step.Kind != models.StepKindChoiceMulti {
		return models.ErrNotMultiSelectStep
	}
	if len(i.selections) == 0 {
		return models.ErrEmptySelection
	}
	if err := i.ledger.Record(i.current, models.ChoicesAnswer(i.selections)); err != nil {
		return err
	}
	i.advanceLocked(ctx)
	return nil
}

// Retry re-enters submission with the snapshot from the failed attempt,
// without re-asking prior questions.
func (i *Interpreter) Retry(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status != models.FlowStatusAwaitingRetry {
		return models.ErrNoActiveStep
	}
	if i.inFlight {
		return models.ErrSubmissionInFlight
	}
	slog.Info("Interpreter retrying submission", "flow", i.def.FlowID(), "run_id", i.runID)
	i.beginSubmissionLocked(ctx, i.pendingSubmit)
	return nil
}

// Abandon tears the flow down. Any in-flight submission is allowed to
// complete and its outcome silently discarded; persisted state is removed.
func (i *Interpreter) Abandon(ctx context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.abandoned = true
	if i.stateMgr != nil {
		if err := i.stateMgr.ResetFlowState(ctx, i.session.PhoneNumber, i.def.FlowID()); err != nil {
			slog.Warn("Interpreter abandon could not reset persisted state", "flow", i.def.FlowID(), "error", err)
		}
	}
	slog.Info("Interpreter flow abandoned", "flow", i.def.FlowID(), "run_id", i.runID)
}

// advanceLocked resolves the next step and either moves to it or, when it is
// terminal, enters submission with the current ledger snapshot.
func (i *Interpreter) advanceLocked(ctx context.Context) {
	next := i.def.Route(i.current, RouteContext{Answers: i.ledger, Seed: i.seed})
	if i.def.IsTerminal(next) {
		i.current = next
		i.beginSubmissionLocked(ctx, i.ledger.Snapshot())
		return
	}
	slog.Debug("Interpreter advanced", "flow", i.def.FlowID(), "from", i.current, "to", next)
	i.current = next
	i.selections = nil
	i.persistLocked(ctx)
}

// beginSubmissionLocked transitions to Submitting and runs the coordinator
// off the calling goroutine, guarded against concurrent submissions.
func (i *Interpreter) beginSubmissionLocked(ctx context.Context, snapshot []models.LedgerEntry) {
	i.status = models.FlowStatusSubmitting
	i.inFlight = true
	i.pendingSubmit = snapshot
	i.persistLocked(ctx)
	coord := i.coordinator
	session := i.session
	seed := copySeed(i.seed)
	runID := i.runID
	slog.Info("Interpreter submitting", "flow", i.def.FlowID(), "run_id", runID, "answers", len(snapshot))
	go func() {
		outcome := coord.Submit(ctx, session, snapshot, seed)
		i.completeSubmission(ctx, runID, outcome)
	}()
}

// completeSubmission applies a submission outcome. Outcomes arriving after
// the flow was abandoned or restarted are discarded.
func (i *Interpreter) completeSubmission(ctx context.Context, runID string, outcome models.SubmissionOutcome) {
	i.mu.Lock()
	if i.abandoned || runID != i.runID {
		slog.Debug("Interpreter discarding stale submission outcome", "run_id", runID, "kind", outcome.Kind)
		i.mu.Unlock()
		return
	}
	i.inFlight = false
	switch outcome.Kind {
	case models.SubmissionSuccess:
		i.archiveLocked(outcome)
		i.status = models.FlowStatusSucceeded
		slog.Info("Interpreter flow succeeded", "flow", i.def.FlowID(), "run_id", i.runID)
	case models.SubmissionNeedsFollowUp:
		i.chainLocked(ctx, outcome)
	case models.SubmissionRecoverableFailure:
		i.status = models.FlowStatusAwaitingRetry
		i.failureReason = outcome.Message
		slog.Warn("Interpreter submission failed, awaiting retry", "flow", i.def.FlowID(), "run_id", i.runID, "message", outcome.Message)
	case models.SubmissionFatalFailure:
		i.status = models.FlowStatusFailed
		i.failureReason = outcome.Message
		slog.Error("Interpreter flow failed", "flow", i.def.FlowID(), "run_id", i.runID, "message", outcome.Message)
	default:
		i.status = models.FlowStatusFailed
		i.failureReason = fmt.Sprintf("unknown submission outcome %q", outcome.Kind)
		slog.Error("Interpreter received unknown outcome kind", "kind", outcome.Kind)
	}
	i.persistLocked(ctx)
	cb := i.onOutcome
	i.mu.Unlock()
	if cb != nil {
		cb(outcome)
	}
}

// chainLocked archives the finished segment and re-enters InProgress at the
// follow-up flow, carrying the outcome's seed data forward.
func (i *Interpreter) chainLocked(ctx context.Context, outcome models.SubmissionOutcome) {
	if i.flows == nil {
		i.status = models.FlowStatusFailed
		i.failureReason = models.ErrNoFollowUpFlow.Error()
		slog.Error("Interpreter follow-up requested without a flow registry", "next_flow", outcome.NextFlow)
		return
	}
	bundle, ok := i.flows.Get(outcome.NextFlow)
	if !ok {
		i.status = models.FlowStatusFailed
		i.failureReason = fmt.Sprintf("%s: %s", models.ErrNoFollowUpFlow, outcome.NextFlow)
		slog.Error("Interpreter follow-up flow not registered", "next_flow", outcome.NextFlow)
		return
	}
	i.archiveLocked(outcome)
	// The finished segment's persisted row still says SUBMITTING; clear it so a
	// later Resume cannot re-submit an already-accepted ledger.
	if i.stateMgr != nil {
		if err := i.stateMgr.ResetFlowState(ctx, i.session.PhoneNumber, i.def.FlowID()); err != nil {
			slog.Warn("Interpreter could not clear finished flow state", "flow", i.def.FlowID(), "error", err)
		}
	}
	i.def = bundle.Definition.Clone()
	i.coordinator = bundle.Coordinator
	i.loaders = bundle.Loaders
	i.seed = copySeed(outcome.Seed)
	i.ledger = NewLedger()
	i.selections = nil
	i.pendingSubmit = nil
	i.failureReason = ""
	i.status = models.FlowStatusInProgress
	i.current = i.resolveInitialStep("")
	slog.Info("Interpreter chained into follow-up flow", "flow", i.def.FlowID(), "run_id", i.runID, "initial_step", i.current)
	i.launchLoadersLocked(ctx)
}

// archiveLocked snapshots the finished ledger segment for audit.
func (i *Interpreter) archiveLocked(outcome models.SubmissionOutcome) {
	i.archives = append(i.archives, Archive{
		FlowID:  i.def.FlowID(),
		Entries: i.ledger.Snapshot(),
		Outcome: outcome,
	})
}

// launchLoadersLocked kicks off dynamic option fetches. A failed fetch applies
// the step's fallback options and is never surfaced to the user as blocking.
func (i *Interpreter) launchLoadersLocked(ctx context.Context) {
	def := i.def
	seed := copySeed(i.seed)
	for _, loader := range i.loaders {
		go func(l OptionLoader) {
			options, err := l.Load(ctx, seed)
			if err != nil {
				slog.Warn("Option loader failed, applying fallback", "flow", def.FlowID(), "step", l.StepID, "error", err)
				options = nil
			}
			if err := def.SetOptions(l.StepID, options); err != nil {
				slog.Error("Option loader could not apply options", "flow", def.FlowID(), "step", l.StepID, "error", err)
			}
		}(loader)
	}
}

// persistLocked snapshots flow state through the state manager when one is
// configured. Persistence failures are logged, never fatal to the flow.
func (i *Interpreter) persistLocked(ctx context.Context) {
	if i.stateMgr == nil {
		return
	}
	if err := i.stateMgr.SaveFlowState(ctx, i.flowStateLocked()); err != nil {
		slog.Warn("Interpreter could not persist flow state", "flow", i.def.FlowID(), "error", err)
	}
}

func (i *Interpreter) flowStateLocked() models.FlowState {
	return models.FlowState{
		RunID:         i.runID,
		ParticipantID: i.session.PhoneNumber,
		FlowID:        i.def.FlowID(),
		CurrentStepID: i.current,
		Status:        i.status,
		FailureReason: i.failureReason,
		Seed:          copySeed(i.seed),
		Ledger:        i.ledger.Snapshot(),
		CreatedAt:     i.createdAt,
		UpdatedAt:     time.Now(),
	}
}

func (i *Interpreter) selectionsLocked() []string {
	return append([]string(nil), i.selections...)
}

// Status returns the current flow status.
func (i *Interpreter) Status() models.FlowStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// RunID returns the identifier of the current run.
func (i *Interpreter) RunID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.runID
}

// FlowID returns the id of the flow currently being interpreted, which
// changes when a follow-up chain is entered.
func (i *Interpreter) FlowID() models.FlowID {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.def.FlowID()
}

// FailureReason returns the message of the last failure outcome, if any.
func (i *Interpreter) FailureReason() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.failureReason
}

// LedgerSnapshot returns the answers recorded so far in this flow segment.
func (i *Interpreter) LedgerSnapshot() []models.LedgerEntry {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ledger.Snapshot()
}

// Selections returns the current multi-select set.
func (i *Interpreter) Selections() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.selectionsLocked()
}

// Archives returns the audit records of completed flow segments.
func (i *Interpreter) Archives() []Archive {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Archive(nil), i.archives...)
}

// ruleFor returns the step's validation rule, defaulting by kind when the
// descriptor leaves it unset.
func ruleFor(step models.StepDescriptor) models.ValidationRule {
	if step.Rule != "" {
		return step.Rule
	}
	switch step.Kind {
	case models.StepKindWelcome:
		return models.RuleAnyInput
	case models.StepKindChoiceSingle:
		return models.RuleChoiceSingle
	case models.StepKindChoiceMulti:
		return models.RuleChoiceMulti
	case models.StepKindNumericAmount:
		return models.RuleTargetAmount
	case models.StepKindDate:
		return models.RuleFreeDate
	default:
		return models.RuleFreeText
	}
}

func copySeed(seed map[string]string) map[string]string {
	out := make(map[string]string, len(seed))
	for k, v := range seed {
		out[k] = v
	}
	return out
}
