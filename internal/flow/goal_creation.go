package flow

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/finadvisor/stepflow/internal/gateway"
	"github.com/finadvisor/stepflow/internal/models"
)

// Step ids for the goal-creation flow.
const (
	StepGoalWelcome      models.StepID = "welcome"
	StepGoalSelection    models.StepID = "goal_selection"
	StepGoalTargetAmount models.StepID = "target_amount"
	StepGoalTargetDate   models.StepID = "target_date"
	StepGoalAmountSaved  models.StepID = "amount_saved"
	StepGoalCreating     models.StepID = "creating"
)

// DefaultGoalSuggestions is the fixed option list used when the suggestion
// fetch fails.
var DefaultGoalSuggestions = []string{
	"Retirement",
	"Emergency fund",
	"Dream vacation",
	"First Home",
	"Dream car",
}

// NewGoalCreationDefinition builds the goal-creation step list.
func NewGoalCreationDefinition() *Definition {
	return MustDefinition(models.FlowGoalCreation, []models.StepDescriptor{
		{
			ID:     StepGoalWelcome,
			Kind:   models.StepKindWelcome,
			Prompt: "Hey there! 🎯 I'm here to help you create your next financial goal. Let's make your dreams happen! ✨",
			Rule:   models.RuleAnyInput,
		},
		{
			ID:      StepGoalSelection,
			Kind:    models.StepKindChoiceSingle,
			Prompt:  "What goal would you like to work towards? You can pick from these popular ones or tell me your own! 💭",
			Options: DefaultGoalSuggestions,
			Rule:    models.RuleGoalName,
		},
		{
			ID:          StepGoalTargetAmount,
			Kind:        models.StepKindNumericAmount,
			Prompt:      "Awesome choice! 🚀 How much money do you need to reach {{goal_selection}}?",
			Placeholder: "Enter target amount in ₹...",
			Rule:        models.RuleTargetAmount,
		},
		{
			ID:          StepGoalTargetDate,
			Kind:        models.StepKindDate,
			Prompt:      "Perfect! 📅 When would you like to achieve this goal?",
			Placeholder: "e.g., 12/12/2025 or Dec 2025",
			Rule:        models.RuleFreeDate,
		},
		{
			ID:          StepGoalAmountSaved,
			Kind:        models.StepKindNumericAmount,
			Prompt:      "Great! 💰 Do you already have some money saved for this goal?",
			Placeholder: "Enter amount already saved in ₹... (or leave empty for 0)",
			Rule:        models.RuleSavingsAmount,
		},
		{
			ID:     StepGoalCreating,
			Kind:   models.StepKindTerminal,
			Prompt: "Amazing! 🎉 I'm creating your goal now. This is going to be epic!",
		},
	}, WithFallbackOptions(StepGoalSelection, DefaultGoalSuggestions))
}

// NewGoalCreationBundle wires the goal-creation flow to the gateway, with the
// suggestion fetch as a dynamic option loader.
func NewGoalCreationBundle(gw Gateway) *Bundle {
	return &Bundle{
		Definition:  NewGoalCreationDefinition(),
		Coordinator: &GoalCreationCoordinator{gateway: gw},
		Loaders: []OptionLoader{
			{
				StepID: StepGoalSelection,
				Load: func(ctx context.Context, _ map[string]string) ([]string, error) {
					return gw.FetchGoalSuggestions(ctx)
				},
			},
		},
	}
}

// GoalCreationCoordinator submits a completed goal-creation ledger to the
// backend and classifies the response.
type GoalCreationCoordinator struct {
	gateway Gateway
}

// goalCreateResponse is the parsed shape of a 2xx /create_goal body.
type goalCreateResponse struct {
	Result                  string `json:"result"`
	Message                 string `json:"message"`
	GoalID                  string `json:"goal_id"`
	RecommendationAvailable bool   `json:"recommendation_available"`
}

// Submit translates the ledger into the /create_goal request shape and maps
// the response to a terminal outcome. A created goal with an available
// recommendation chains into the fund-selection flow.
func (c *GoalCreationCoordinator) Submit(ctx context.Context, session models.SessionContext, entries []models.LedgerEntry, seed map[string]string) models.SubmissionOutcome {
	payload := gateway.GoalPayload{
		PhoneNumber:   session.PhoneNumber,
		GoalName:      entryText(entries, StepGoalSelection),
		TargetAmount:  entryNumber(entries, StepGoalTargetAmount),
		TargetDate:    entryText(entries, StepGoalTargetDate),
		CurrentAmount: entryNumber(entries, StepGoalAmountSaved),
	}
	slog.Debug("GoalCreationCoordinator submitting", "goal_name", payload.GoalName, "target_amount", payload.TargetAmount)
	resp, err := c.gateway.CreateGoal(ctx, payload)
	if err != nil {
		return models.RecoverableOutcome("Something went wrong while creating your goal. Please try again.")
	}
	if !resp.OK() {
		return models.RecoverableOutcome(failureMessage(resp))
	}
	var body goalCreateResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		// Successful status with an unparsable body: assume success, empty payload.
		slog.Debug("GoalCreationCoordinator response not parseable, assuming success", "error", err)
		return models.SuccessOutcome(nil)
	}
	if isFailureResult(body.Result) {
		return models.FatalOutcome(body.Message)
	}
	if body.GoalID != "" && body.RecommendationAvailable {
		followUpSeed := map[string]string{
			SeedKeyGoalID:      body.GoalID,
			SeedKeyPhoneNumber: session.PhoneNumber,
		}
		slog.Info("GoalCreationCoordinator goal created with recommendation follow-up", "goal_id", body.GoalID)
		return models.FollowUpOutcome(models.FlowFundSelection, followUpSeed)
	}
	return models.SuccessOutcome(map[string]any{
		"result":  body.Result,
		"goal_id": body.GoalID,
	})
}
