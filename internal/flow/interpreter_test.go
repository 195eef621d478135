package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/finadvisor/stepflow/internal/models"
)

// driveGoalAnswers walks the goal-creation flow up to (but not including) the
// final answer, checking each advance along the way.
func driveGoalAnswers(t *testing.T, interp *Interpreter) {
	t.Helper()
	ctx := context.Background()
	answers := []struct {
		step  models.StepID
		input string
	}{
		{StepGoalWelcome, ""},
		{StepGoalSelection, "Retirement"},
		{StepGoalTargetAmount, "10,000"},
		{StepGoalTargetDate, "Dec 2025"},
	}
	for _, a := range answers {
		step, ok := interp.CurrentStep()
		if !ok {
			t.Fatalf("no current step, expected %s", a.step)
		}
		if step.ID != a.step {
			t.Fatalf("current step = %s, want %s", step.ID, a.step)
		}
		out, err := interp.SubmitAnswer(ctx, a.input)
		if err != nil {
			t.Fatalf("SubmitAnswer(%s, %q) error: %v", a.step, a.input, err)
		}
		if !out.OK {
			t.Fatalf("SubmitAnswer(%s, %q) rejected: %s", a.step, a.input, out.UserMessage)
		}
	}
}

func TestGoalFlowHappyPath(t *testing.T) {
	ctx := context.Background()
	coord := &stubCoordinator{}
	outcomes := make(chan models.SubmissionOutcome, 1)
	interp := NewInterpreter(&Bundle{Definition: NewGoalCreationDefinition(), Coordinator: coord},
		testSession(t), WithOutcomeHandler(func(o models.SubmissionOutcome) { outcomes <- o }))
	interp.Start(ctx)

	driveGoalAnswers(t, interp)

	// Empty savings input is an implicit zero and triggers submission.
	out, err := interp.SubmitAnswer(ctx, "")
	if err != nil {
		t.Fatalf("final SubmitAnswer error: %v", err)
	}
	if !out.OK {
		t.Fatalf("final SubmitAnswer rejected: %s", out.UserMessage)
	}

	result := waitOutcome(t, outcomes)
	if result.Kind != models.SubmissionSuccess {
		t.Fatalf("outcome kind = %s, want success", result.Kind)
	}
	if got := interp.Status(); got != models.FlowStatusSucceeded {
		t.Fatalf("status = %s, want SUCCEEDED", got)
	}

	if coord.callCount() != 1 {
		t.Fatalf("coordinator called %d times, want 1", coord.callCount())
	}
	snapshot := coord.call(0)
	if len(snapshot) != 4 {
		t.Fatalf("snapshot has %d entries, want 4: %+v", len(snapshot), snapshot)
	}
	for _, e := range snapshot {
		if e.StepID == StepGoalWelcome {
			t.Error("welcome tap recorded in submission snapshot")
		}
	}
	if got := entryNumber(snapshot, StepGoalTargetAmount); got != 10000 {
		t.Errorf("target amount = %d, want 10000", got)
	}
	if got := entryNumber(snapshot, StepGoalAmountSaved); got != 0 {
		t.Errorf("amount saved = %d, want 0", got)
	}
	if got := entryText(snapshot, StepGoalSelection); got != "Retirement" {
		t.Errorf("goal name = %q, want Retirement", got)
	}

	archives := interp.Archives()
	if len(archives) != 1 || archives[0].FlowID != models.FlowGoalCreation {
		t.Errorf("archives = %+v, want one goal_creation record", archives)
	}
}

func TestRejectionKeepsCurrentStep(t *testing.T) {
	ctx := context.Background()
	interp := NewInterpreter(&Bundle{Definition: NewGoalCreationDefinition(), Coordinator: &stubCoordinator{}}, testSession(t))
	interp.Start(ctx)
	driveGoalAnswers(t, interp)

	before := interp.LedgerSnapshot()
	out, err := interp.SubmitAnswer(ctx, "-5")
	if err != nil {
		t.Fatalf("SubmitAnswer error: %v", err)
	}
	if out.OK {
		t.Fatal("negative savings amount accepted")
	}
	if out.UserMessage == "" {
		t.Error("rejection carried no corrective message")
	}
	step, _ := interp.CurrentStep()
	if step.ID != StepGoalAmountSaved {
		t.Errorf("step after rejection = %s, want %s", step.ID, StepGoalAmountSaved)
	}
	if len(interp.LedgerSnapshot()) != len(before) {
		t.Error("rejected input mutated the ledger")
	}
	if got := interp.Status(); got != models.FlowStatusInProgress {
		t.Errorf("status after rejection = %s, want IN_PROGRESS", got)
	}
}

func TestPromptRendersRecordedAnswers(t *testing.T) {
	ctx := context.Background()
	interp := NewInterpreter(&Bundle{Definition: NewGoalCreationDefinition(), Coordinator: &stubCoordinator{}}, testSession(t))
	interp.Start(ctx)

	if _, err := interp.SubmitAnswer(ctx, ""); err != nil {
		t.Fatalf("welcome answer error: %v", err)
	}
	if out, _ := interp.SubmitAnswer(ctx, "Dream vacation"); !out.OK {
		t.Fatalf("goal selection rejected: %s", out.UserMessage)
	}

	step, _ := interp.CurrentStep()
	if !strings.Contains(step.Prompt, "Dream vacation") {
		t.Errorf("prompt %q does not echo the chosen goal", step.Prompt)
	}
	if strings.Contains(step.Prompt, "{{") {
		t.Errorf("prompt %q still carries placeholder syntax", step.Prompt)
	}
}

func TestSubmitDuringSubmissionIsRejected(t *testing.T) {
	ctx := context.Background()
	coord := newBlockingCoordinator(models.SuccessOutcome(nil))
	outcomes := make(chan models.SubmissionOutcome, 1)
	interp := NewInterpreter(&Bundle{Definition: NewGoalCreationDefinition(), Coordinator: coord},
		testSession(t), WithOutcomeHandler(func(o models.SubmissionOutcome) { outcomes <- o }))
	interp.Start(ctx)
	driveGoalAnswers(t, interp)
	if _, err := interp.SubmitAnswer(ctx, "500"); err != nil {
		t.Fatalf("final SubmitAnswer error: %v", err)
	}

	if got := interp.Status(); got != models.FlowStatusSubmitting {
		t.Fatalf("status = %s, want SUBMITTING", got)
	}
	if _, ok := interp.CurrentStep(); !ok {
		t.Error("terminal step not renderable while submitting")
	}
	if _, err := interp.SubmitAnswer(ctx, "anything"); !errors.Is(err, models.ErrSubmissionInFlight) {
		t.Errorf("SubmitAnswer during submission error = %v, want ErrSubmissionInFlight", err)
	}

	close(coord.release)
	waitOutcome(t, outcomes)
	if got := interp.Status(); got != models.FlowStatusSucceeded {
		t.Errorf("status after release = %s, want SUCCEEDED", got)
	}
}

func TestRecoverableFailureThenRetry(t *testing.T) {
	ctx := context.Background()
	coord := &stubCoordinator{outcomes: []models.SubmissionOutcome{
		models.RecoverableOutcome("Server error: 500"),
	}}
	outcomes := make(chan models.SubmissionOutcome, 1)
	interp := NewInterpreter(&Bundle{Definition: NewGoalCreationDefinition(), Coordinator: coord},
		testSession(t), WithOutcomeHandler(func(o models.SubmissionOutcome) { outcomes <- o }))
	interp.Start(ctx)
	driveGoalAnswers(t, interp)
	if _, err := interp.SubmitAnswer(ctx, "500"); err != nil {
		t.Fatalf("final SubmitAnswer error: %v", err)
	}

	first := waitOutcome(t, outcomes)
	if first.Kind != models.SubmissionRecoverableFailure {
		t.Fatalf("first outcome = %s, want recoverable_failure", first.Kind)
	}
	if got := interp.Status(); got != models.FlowStatusAwaitingRetry {
		t.Fatalf("status = %s, want AWAITING_RETRY", got)
	}
	if interp.FailureReason() != "Server error: 500" {
		t.Errorf("failure reason = %q", interp.FailureReason())
	}

	if err := interp.Retry(ctx); err != nil {
		t.Fatalf("Retry error: %v", err)
	}
	second := waitOutcome(t, outcomes)
	if second.Kind != models.SubmissionSuccess {
		t.Fatalf("retry outcome = %s, want success", second.Kind)
	}
	if got := interp.Status(); got != models.FlowStatusSucceeded {
		t.Errorf("status after retry = %s, want SUCCEEDED", got)
	}

	// Retry re-submits the identical snapshot; nothing is re-asked.
	if coord.callCount() != 2 {
		t.Fatalf("coordinator called %d times, want 2", coord.callCount())
	}
	a, b := coord.call(0), coord.call(1)
	if len(a) != len(b) {
		t.Fatalf("retry snapshot length %d != original %d", len(b), len(a))
	}
	for i := range a {
		if a[i].StepID != b[i].StepID || a[i].Value.Display() != b[i].Value.Display() {
			t.Errorf("retry snapshot differs at entry %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestRetryOutsideAwaitingRetry(t *testing.T) {
	ctx := context.Background()
	interp := NewInterpreter(&Bundle{Definition: NewGoalCreationDefinition(), Coordinator: &stubCoordinator{}}, testSession(t))
	interp.Start(ctx)
	if err := interp.Retry(ctx); !errors.Is(err, models.ErrNoActiveStep) {
		t.Errorf("Retry while in progress error = %v, want ErrNoActiveStep", err)
	}
}

func TestFatalFailureEndsFlow(t *testing.T) {
	ctx := context.Background()
	coord := &stubCoordinator{outcomes: []models.SubmissionOutcome{
		models.FatalOutcome("PAN already registered"),
	}}
	outcomes := make(chan models.SubmissionOutcome, 1)
	interp := NewInterpreter(&Bundle{Definition: NewGoalCreationDefinition(), Coordinator: coord},
		testSession(t), WithOutcomeHandler(func(o models.SubmissionOutcome) { outcomes <- o }))
	interp.Start(ctx)
	driveGoalAnswers(t, interp)
	if _, err := interp.SubmitAnswer(ctx, "500"); err != nil {
		t.Fatalf("final SubmitAnswer error: %v", err)
	}
	waitOutcome(t, outcomes)

	if got := interp.Status(); got != models.FlowStatusFailed {
		t.Fatalf("status = %s, want FAILED", got)
	}
	if interp.FailureReason() != "PAN already registered" {
		t.Errorf("failure reason = %q", interp.FailureReason())
	}
	if _, ok := interp.CurrentStep(); ok {
		t.Error("CurrentStep still renderable after fatal failure")
	}
	if _, err := interp.SubmitAnswer(ctx, "x"); !errors.Is(err, models.ErrNoActiveStep) {
		t.Errorf("SubmitAnswer after failure error = %v, want ErrNoActiveStep", err)
	}
}

func TestAbandonDiscardsInFlightOutcome(t *testing.T) {
	ctx := context.Background()
	coord := newBlockingCoordinator(models.SuccessOutcome(nil))
	outcomes := make(chan models.SubmissionOutcome, 1)
	sm := NewStoreBasedStateManager(newTestStore())
	interp := NewInterpreter(&Bundle{Definition: NewGoalCreationDefinition(), Coordinator: coord},
		testSession(t),
		WithStateManager(sm),
		WithOutcomeHandler(func(o models.SubmissionOutcome) { outcomes <- o }))
	interp.Start(ctx)
	driveGoalAnswers(t, interp)
	if _, err := interp.SubmitAnswer(ctx, "500"); err != nil {
		t.Fatalf("final SubmitAnswer error: %v", err)
	}

	interp.Abandon(ctx)
	close(coord.release)
	expectNoOutcome(t, outcomes)

	state, err := sm.GetFlowState(ctx, "9876543210", models.FlowGoalCreation)
	if err != nil {
		t.Fatalf("GetFlowState error: %v", err)
	}
	if state != nil {
		t.Errorf("abandoned flow left persisted state: %+v", state)
	}
}

func TestRestartDiscardsStaleOutcome(t *testing.T) {
	ctx := context.Background()
	coord := newBlockingCoordinator(models.FatalOutcome("stale"))
	outcomes := make(chan models.SubmissionOutcome, 1)
	interp := NewInterpreter(&Bundle{Definition: NewGoalCreationDefinition(), Coordinator: coord},
		testSession(t), WithOutcomeHandler(func(o models.SubmissionOutcome) { outcomes <- o }))
	interp.Start(ctx)
	driveGoalAnswers(t, interp)
	if _, err := interp.SubmitAnswer(ctx, "500"); err != nil {
		t.Fatalf("final SubmitAnswer error: %v", err)
	}

	// Restarting invalidates the run; the old submission must not apply.
	interp.Start(ctx)
	close(coord.release)
	expectNoOutcome(t, outcomes)

	if got := interp.Status(); got != models.FlowStatusInProgress {
		t.Errorf("status after restart = %s, want IN_PROGRESS", got)
	}
	step, _ := interp.CurrentStep()
	if step.ID != StepGoalWelcome {
		t.Errorf("step after restart = %s, want %s", step.ID, StepGoalWelcome)
	}
}

func TestMultiSelectToggleConfirm(t *testing.T) {
	ctx := context.Background()
	coord := &stubCoordinator{}
	outcomes := make(chan models.SubmissionOutcome, 1)
	interp := NewInterpreter(&Bundle{Definition: newMultiSelectDefinition(), Coordinator: coord},
		testSession(t), WithOutcomeHandler(func(o models.SubmissionOutcome) { outcomes <- o }))
	interp.Start(ctx)

	if _, err := interp.SubmitAnswer(ctx, "Stocks"); !errors.Is(err, models.ErrMultiSelectStep) {
		t.Fatalf("SubmitAnswer on multi-select error = %v, want ErrMultiSelectStep", err)
	}
	if err := interp.ConfirmSelection(ctx); !errors.Is(err, models.ErrEmptySelection) {
		t.Fatalf("empty ConfirmSelection error = %v, want ErrEmptySelection", err)
	}

	sel, out, err := interp.ToggleOption("Stocks")
	if err != nil || !out.OK {
		t.Fatalf("ToggleOption failed: err=%v outcome=%+v", err, out)
	}
	if len(sel) != 1 || sel[0] != "Stocks" {
		t.Fatalf("selections = %v, want [Stocks]", sel)
	}

	// Toggling twice deselects.
	sel, _, err = interp.ToggleOption("Stocks")
	if err != nil {
		t.Fatalf("second ToggleOption failed: %v", err)
	}
	if len(sel) != 0 {
		t.Fatalf("selections after double toggle = %v, want empty", sel)
	}

	if _, out, _ := interp.ToggleOption("Crypto"); out.OK {
		t.Error("unlisted option toggled")
	}

	for _, opt := range []string{"Bonds", "Gold"} {
		if _, out, err := interp.ToggleOption(opt); err != nil || !out.OK {
			t.Fatalf("ToggleOption(%s) failed: err=%v outcome=%+v", opt, err, out)
		}
	}
	if err := interp.ConfirmSelection(ctx); err != nil {
		t.Fatalf("ConfirmSelection error: %v", err)
	}
	waitOutcome(t, outcomes)

	snapshot := coord.call(0)
	if len(snapshot) != 1 {
		t.Fatalf("snapshot entries = %d, want 1", len(snapshot))
	}
	choices := snapshot[0].Value.Choices
	if len(choices) != 2 || choices[0] != "Bonds" || choices[1] != "Gold" {
		t.Errorf("recorded choices = %v, want [Bonds Gold]", choices)
	}
}

func TestToggleOnSingleChoiceStep(t *testing.T) {
	ctx := context.Background()
	interp := NewInterpreter(&Bundle{Definition: NewGoalCreationDefinition(), Coordinator: &stubCoordinator{}}, testSession(t))
	interp.Start(ctx)
	if _, _, err := interp.ToggleOption("Retirement"); !errors.Is(err, models.ErrNotMultiSelectStep) {
		t.Errorf("ToggleOption on welcome step error = %v, want ErrNotMultiSelectStep", err)
	}
}

func TestFollowUpChainsIntoNextFlow(t *testing.T) {
	ctx := context.Background()
	goalCoord := &stubCoordinator{outcomes: []models.SubmissionOutcome{
		models.FollowUpOutcome(models.FlowFundSelection, map[string]string{
			SeedKeyGoalID:      "goal-42",
			SeedKeyPhoneNumber: "9876543210",
		}),
	}}
	fundCoord := &stubCoordinator{}

	registry := NewRegistry()
	registry.Register(&Bundle{Definition: NewGoalCreationDefinition(), Coordinator: goalCoord})
	registry.Register(&Bundle{Definition: NewFundSelectionDefinition(), Coordinator: fundCoord})
	bundle, _ := registry.Get(models.FlowGoalCreation)

	outcomes := make(chan models.SubmissionOutcome, 2)
	interp := NewInterpreter(bundle, testSession(t),
		WithFlowRegistry(registry),
		WithOutcomeHandler(func(o models.SubmissionOutcome) { outcomes <- o }))
	interp.Start(ctx)
	driveGoalAnswers(t, interp)
	if _, err := interp.SubmitAnswer(ctx, "2000"); err != nil {
		t.Fatalf("final SubmitAnswer error: %v", err)
	}

	first := waitOutcome(t, outcomes)
	if first.Kind != models.SubmissionNeedsFollowUp {
		t.Fatalf("first outcome = %s, want needs_follow_up", first.Kind)
	}
	if got := interp.FlowID(); got != models.FlowFundSelection {
		t.Fatalf("flow after chain = %s, want fund_selection", got)
	}
	if got := interp.Status(); got != models.FlowStatusInProgress {
		t.Fatalf("status after chain = %s, want IN_PROGRESS", got)
	}
	if len(interp.LedgerSnapshot()) != 0 {
		t.Error("chained flow started with a non-empty ledger")
	}

	archives := interp.Archives()
	if len(archives) != 1 || archives[0].FlowID != models.FlowGoalCreation {
		t.Fatalf("archives = %+v, want one goal_creation record", archives)
	}
	if len(archives[0].Entries) != 4 {
		t.Errorf("archived entries = %d, want 4", len(archives[0].Entries))
	}

	step, ok := interp.CurrentStep()
	if !ok || step.ID != StepFundChoice {
		t.Fatalf("chained step = %v, want %s", step.ID, StepFundChoice)
	}
	if out, err := interp.SubmitAnswer(ctx, "Balanced Index Fund"); err != nil || !out.OK {
		t.Fatalf("fund choice rejected: err=%v outcome=%+v", err, out)
	}
	waitOutcome(t, outcomes)

	if got := interp.Status(); got != models.FlowStatusSucceeded {
		t.Fatalf("final status = %s, want SUCCEEDED", got)
	}
	seed := fundCoord.seed(0)
	if seed[SeedKeyGoalID] != "goal-42" {
		t.Errorf("fund submission seed goal_id = %q, want goal-42", seed[SeedKeyGoalID])
	}
}

func TestFollowUpClearsFinishedFlowState(t *testing.T) {
	ctx := context.Background()
	sm := NewStoreBasedStateManager(newTestStore())
	goalCoord := &stubCoordinator{outcomes: []models.SubmissionOutcome{
		models.FollowUpOutcome(models.FlowFundSelection, map[string]string{SeedKeyGoalID: "goal-1"}),
	}}
	registry := NewRegistry()
	registry.Register(&Bundle{Definition: NewGoalCreationDefinition(), Coordinator: goalCoord})
	registry.Register(&Bundle{Definition: NewFundSelectionDefinition(), Coordinator: &stubCoordinator{}})
	bundle, _ := registry.Get(models.FlowGoalCreation)

	outcomes := make(chan models.SubmissionOutcome, 1)
	interp := NewInterpreter(bundle, testSession(t),
		WithFlowRegistry(registry),
		WithStateManager(sm),
		WithOutcomeHandler(func(o models.SubmissionOutcome) { outcomes <- o }))
	interp.Start(ctx)
	driveGoalAnswers(t, interp)
	if _, err := interp.SubmitAnswer(ctx, "0"); err != nil {
		t.Fatalf("final SubmitAnswer error: %v", err)
	}
	waitOutcome(t, outcomes)

	// The finished segment's row is gone; the chained flow's row replaces it.
	state, err := sm.GetFlowState(ctx, "9876543210", models.FlowGoalCreation)
	if err != nil {
		t.Fatalf("GetFlowState error: %v", err)
	}
	if state != nil {
		t.Errorf("finished goal_creation left persisted state: status=%s step=%s", state.Status, state.CurrentStepID)
	}
	state, err = sm.GetFlowState(ctx, "9876543210", models.FlowFundSelection)
	if err != nil {
		t.Fatalf("GetFlowState error: %v", err)
	}
	if state == nil || state.Status != models.FlowStatusInProgress {
		t.Errorf("chained flow state = %+v, want IN_PROGRESS", state)
	}

	// Resuming the completed goal flow must not re-submit its ledger.
	if _, err := Resume(ctx, registry, sm, testSession(t), models.FlowGoalCreation); !errors.Is(err, models.ErrFlowNotResumable) {
		t.Errorf("Resume of finished flow error = %v, want ErrFlowNotResumable", err)
	}
	if goalCoord.callCount() != 1 {
		t.Errorf("goal coordinator called %d times, want 1", goalCoord.callCount())
	}
}

func TestConcurrentRunsHaveIndependentOptions(t *testing.T) {
	ctx := context.Background()
	bundle := &Bundle{
		Definition:  NewFundSelectionDefinition(),
		Coordinator: &stubCoordinator{},
		Loaders: []OptionLoader{
			{
				StepID: StepFundChoice,
				Load: func(ctx context.Context, seed map[string]string) ([]string, error) {
					return []string{seed["flavor"] + " Fund"}, nil
				},
			},
		},
	}

	a := NewInterpreter(bundle, testSession(t))
	a.StartFrom(ctx, "", map[string]string{"flavor": "Alpha"}, nil)
	b := NewInterpreter(bundle, testSession(t))
	b.StartFrom(ctx, "", map[string]string{"flavor": "Beta"}, nil)

	waitForOption(t, a, StepFundChoice, "Alpha Fund")
	waitForOption(t, b, StepFundChoice, "Beta Fund")

	stepA, _ := a.CurrentStep()
	if len(stepA.Options) != 1 || stepA.Options[0] != "Alpha Fund" {
		t.Errorf("first run's options clobbered: %v", stepA.Options)
	}
	original, _ := bundle.Definition.Step(StepFundChoice)
	if len(original.Options) != len(DefaultFundOptions) || original.Options[0] != DefaultFundOptions[0] {
		t.Errorf("bundle definition mutated by a run: %v", original.Options)
	}
}

func TestFollowUpWithoutRegistryFails(t *testing.T) {
	ctx := context.Background()
	coord := &stubCoordinator{outcomes: []models.SubmissionOutcome{
		models.FollowUpOutcome(models.FlowFundSelection, nil),
	}}
	outcomes := make(chan models.SubmissionOutcome, 1)
	interp := NewInterpreter(&Bundle{Definition: NewGoalCreationDefinition(), Coordinator: coord},
		testSession(t), WithOutcomeHandler(func(o models.SubmissionOutcome) { outcomes <- o }))
	interp.Start(ctx)
	driveGoalAnswers(t, interp)
	if _, err := interp.SubmitAnswer(ctx, "0"); err != nil {
		t.Fatalf("final SubmitAnswer error: %v", err)
	}
	waitOutcome(t, outcomes)
	if got := interp.Status(); got != models.FlowStatusFailed {
		t.Errorf("status = %s, want FAILED", got)
	}
}

func TestStartFromSeedHint(t *testing.T) {
	ctx := context.Background()
	interp := NewInterpreter(&Bundle{Definition: NewOnboardingDefinition(), Coordinator: &stubCoordinator{}}, testSession(t))
	interp.StartFrom(ctx, "", map[string]string{SeedKeyStartFrom: string(StepOnboardingRisk)}, nil)

	step, ok := interp.CurrentStep()
	if !ok || step.ID != StepOnboardingRisk {
		t.Errorf("initial step = %v, want %s", step.ID, StepOnboardingRisk)
	}
}

func TestStartFromUnknownStepFallsBack(t *testing.T) {
	ctx := context.Background()
	interp := NewInterpreter(&Bundle{Definition: NewOnboardingDefinition(), Coordinator: &stubCoordinator{}}, testSession(t))
	interp.StartFrom(ctx, "ghost", nil, nil)

	step, ok := interp.CurrentStep()
	if !ok || step.ID != StepOnboardingWelcome {
		t.Errorf("initial step = %v, want %s", step.ID, StepOnboardingWelcome)
	}
}

func TestInterpreterPersistsState(t *testing.T) {
	ctx := context.Background()
	sm := NewStoreBasedStateManager(newTestStore())
	interp := NewInterpreter(&Bundle{Definition: NewGoalCreationDefinition(), Coordinator: &stubCoordinator{}},
		testSession(t), WithStateManager(sm))
	interp.Start(ctx)

	if _, err := interp.SubmitAnswer(ctx, ""); err != nil {
		t.Fatalf("welcome answer error: %v", err)
	}
	if out, _ := interp.SubmitAnswer(ctx, "Retirement"); !out.OK {
		t.Fatal("goal selection rejected")
	}

	state, err := sm.GetFlowState(ctx, "9876543210", models.FlowGoalCreation)
	if err != nil {
		t.Fatalf("GetFlowState error: %v", err)
	}
	if state == nil {
		t.Fatal("no persisted state found")
	}
	if state.Status != models.FlowStatusInProgress {
		t.Errorf("persisted status = %s, want IN_PROGRESS", state.Status)
	}
	if state.CurrentStepID != StepGoalTargetAmount {
		t.Errorf("persisted step = %s, want %s", state.CurrentStepID, StepGoalTargetAmount)
	}
	if len(state.Ledger) != 1 || state.Ledger[0].StepID != StepGoalSelection {
		t.Errorf("persisted ledger = %+v, want one goal_selection entry", state.Ledger)
	}
	if state.RunID != interp.RunID() {
		t.Errorf("persisted run id = %q, want %q", state.RunID, interp.RunID())
	}
}
