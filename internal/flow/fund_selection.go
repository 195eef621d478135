package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/finadvisor/stepflow/internal/gateway"
	"github.com/finadvisor/stepflow/internal/models"
)

// Step ids for the fund-selection follow-up flow.
const (
	StepFundChoice  models.StepID = "fund_choice"
	StepFundConfirm models.StepID = "confirming"
)

// DefaultFundOptions is the fixed option list used when the recommendation
// fetch fails.
var DefaultFundOptions = []string{
	"Balanced Index Fund",
	"Bluechip Equity Fund",
	"Liquid Debt Fund",
}

// NewFundSelectionDefinition builds the fund-selection step list.
func NewFundSelectionDefinition() *Definition {
	return MustDefinition(models.FlowFundSelection, []models.StepDescriptor{
		{
			ID:      StepFundChoice,
			Kind:    models.StepKindChoiceSingle,
			Prompt:  "Your goal is live! 🎉 Based on your profile, here are the funds I'd recommend for it. Pick one to get started 📈",
			Options: DefaultFundOptions,
			Rule:    models.RuleChoiceSingle,
		},
		{
			ID:     StepFundConfirm,
			Kind:   models.StepKindTerminal,
			Prompt: "Setting up {{fund_choice}} for your goal...",
		},
	}, WithFallbackOptions(StepFundChoice, DefaultFundOptions))
}

// NewFundSelectionBundle wires the fund-selection flow to the gateway. The
// recommendation list is loaded dynamically for the goal id carried in the
// flow seed.
func NewFundSelectionBundle(gw Gateway) *Bundle {
	return &Bundle{
		Definition:  NewFundSelectionDefinition(),
		Coordinator: &FundSelectionCoordinator{gateway: gw},
		Loaders: []OptionLoader{
			{
				StepID: StepFundChoice,
				Load: func(ctx context.Context, seed map[string]string) ([]string, error) {
					return fetchFundOptions(ctx, gw, seed[SeedKeyGoalID])
				},
			},
		},
	}
}

// fetchFundOptions retrieves the recommended fund names for a created goal.
func fetchFundOptions(ctx context.Context, gw Gateway, goalID string) ([]string, error) {
	if goalID == "" {
		return nil, fmt.Errorf("no goal id seeded for fund recommendations")
	}
	resp, err := gw.FetchFollowUp(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("fund recommendation request returned status %d", resp.StatusCode)
	}
	var body struct {
		Funds []string `json:"funds"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("failed to parse fund recommendations: %w", err)
	}
	slog.Debug("Fund recommendations fetched", "goal_id", goalID, "count", len(body.Funds))
	return body.Funds, nil
}

// FundSelectionCoordinator records the chosen fund for the seeded goal.
type FundSelectionCoordinator struct {
	gateway Gateway
}

// Submit translates the ledger into the /select_fund request shape and maps
// the response to a terminal outcome.
func (c *FundSelectionCoordinator) Submit(ctx context.Context, session models.SessionContext, entries []models.LedgerEntry, seed map[string]string) models.SubmissionOutcome {
	phone := session.PhoneNumber
	if phone == "" {
		phone = seed[SeedKeyPhoneNumber]
	}
	payload := gateway.FundSelectionPayload{
		PhoneNumber: phone,
		GoalID:      seed[SeedKeyGoalID],
		FundName:    entryText(entries, StepFundChoice),
	}
	slog.Debug("FundSelectionCoordinator submitting", "goal_id", payload.GoalID, "fund", payload.FundName)
	resp, err := c.gateway.SelectFund(ctx, payload)
	if err != nil {
		return models.RecoverableOutcome("Something went wrong while saving your fund choice. Please try again.")
	}
	if !resp.OK() {
		return models.RecoverableOutcome(failureMessage(resp))
	}
	result, parsed, message := decodeResult(resp)
	if !parsed {
		return models.SuccessOutcome(nil)
	}
	if isFailureResult(result) {
		return models.FatalOutcome(message)
	}
	return models.SuccessOutcome(map[string]any{"result": result, "fund_name": payload.FundName})
}
