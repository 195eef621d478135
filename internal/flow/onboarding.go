package flow

import (
	"context"
	"log/slog"

	"github.com/finadvisor/stepflow/internal/gateway"
	"github.com/finadvisor/stepflow/internal/models"
)

// Step ids for the onboarding flow.
const (
	StepOnboardingWelcome      models.StepID = "welcome"
	StepOnboardingName         models.StepID = "name"
	StepOnboardingDOB          models.StepID = "dob"
	StepOnboardingPAN          models.StepID = "pan"
	StepOnboardingIncome       models.StepID = "income"
	StepOnboardingSocialStatus models.StepID = "social_status"
	StepOnboardingRisk         models.StepID = "risk"
	StepOnboardingRisk1        models.StepID = "risk_1"
	StepOnboardingRisk2        models.StepID = "risk_2"
	StepOnboardingRisk3        models.StepID = "risk_3"
	StepOnboardingRisk4        models.StepID = "risk_4"
	StepOnboardingComplete     models.StepID = "complete"
)

// riskQuestionSteps lists the questionnaire steps, in order, whose prompts and
// answers form the risk_questions items of the onboarding payload.
var riskQuestionSteps = []models.StepID{
	StepOnboardingRisk,
	StepOnboardingRisk1,
	StepOnboardingRisk2,
	StepOnboardingRisk3,
	StepOnboardingRisk4,
}

// NewOnboardingDefinition builds the onboarding step list. The welcome step
// carries a branch rule reading the out-of-band start_from hint: a partially
// onboarded user skips straight to the risk questionnaire.
func NewOnboardingDefinition() *Definition {
	return MustDefinition(models.FlowOnboarding, []models.StepDescriptor{
		{
			ID:      StepOnboardingWelcome,
			Kind:    models.StepKindChoiceSingle,
			Prompt:  "Hey there, money wizard 🪄 Ready to glow up your finances?",
			Options: []string{"Let's do this! 🚀", "Tell me more first 🤔"},
			Rule:    models.RuleChoiceSingle,
		},
		{
			ID:          StepOnboardingName,
			Kind:        models.StepKindFreeText,
			Prompt:      "Awesome! What should I call you? ✨",
			Placeholder: "Your name...",
			Rule:        models.RuleFreeText,
		},
		{
			ID:          StepOnboardingDOB,
			Kind:        models.StepKindDate,
			Prompt:      "Nice to meet you, {{name}}! When's your birthday? 🎂 This helps me suggest the right investment timeline",
			Placeholder: "YYYY-MM-DD (e.g., 1995-06-15)",
			Rule:        models.RuleBirthDate,
		},
		{
			ID:          StepOnboardingPAN,
			Kind:        models.StepKindPattern,
			Prompt:      "What's your PAN number? 🆔 This is required for investment compliance",
			Placeholder: "Enter your PAN number (e.g., ABCDE1234F)",
			Rule:        models.RulePAN,
		},
		{
			ID:          StepOnboardingIncome,
			Kind:        models.StepKindNumericAmount,
			Prompt:      "What's your monthly income? (This stays private, obvs 🔒)",
			Placeholder: "Enter your monthly income in ₹...",
			Rule:        models.RuleTargetAmount,
		},
		{
			ID:     StepOnboardingSocialStatus,
			Kind:   models.StepKindChoiceSingle,
			Prompt: "What's your vibe right now? 💫 This helps me understand your financial priorities!",
			Options: []string{
				"💃🕺 Single",
				"👰🤵 Married, no kids yet",
				"👨‍👩‍👧‍👦 Married with kids",
				"🧑‍👧 Single parent",
				"👵👴 Taking care of parents/elders",
			},
			Rule: models.RuleChoiceSingle,
		},
		{
			ID:     StepOnboardingRisk,
			Kind:   models.StepKindChoiceSingle,
			Prompt: "On a scale from chill 🧊 to full-send 🚀 — how comfy are you with taking risks?",
			Options: []string{
				"Super chill - safety first 🧊",
				"Balanced - some ups and downs OK 🌊",
				"Let's go - I'm here for the ride 🚀",
			},
			Rule: models.RuleChoiceSingle,
		},
		{
			ID:     StepOnboardingRisk1,
			Kind:   models.StepKindChoiceSingle,
			Prompt: "Let's say you invested ₹10,000 and it drops to ₹9,000. What would you do?",
			Options: []string{
				"😨 Sell everything and exit",
				"😐 Hold and wait",
				"📈 Invest more while it's low",
			},
			Rule: models.RuleChoiceSingle,
		},
		{
			ID:     StepOnboardingRisk2,
			Kind:   models.StepKindChoiceSingle,
			Prompt: "How important is it for you to have guaranteed returns?",
			Options: []string{
				"Very important — I can't handle losses",
				"Somewhat important — I want balance",
				"Not important — I'm okay with risk for better gains",
			},
			Rule: models.RuleChoiceSingle,
		},
		{
			ID:     StepOnboardingRisk3,
			Kind:   models.StepKindChoiceSingle,
			Prompt: "How would you feel if your investment value dropped 20% temporarily?",
			Options: []string{
				"😬 Very stressed",
				"😐 A bit nervous",
				"😎 Chill, markets go up and down",
			},
			Rule: models.RuleChoiceSingle,
		},
		{
			ID:     StepOnboardingRisk4,
			Kind:   models.StepKindChoiceSingle,
			Prompt: "What's your primary investment goal?",
			Options: []string{
				"Capital preservation 💼",
				"Wealth creation 🚀",
				"Maximize returns 💰",
			},
			Rule: models.RuleChoiceSingle,
		},
		{
			ID:     StepOnboardingComplete,
			Kind:   models.StepKindTerminal,
			Prompt: "Amazing! 🎉 I'm creating your personalized financial plan. Ready to see what your money can do?",
		},
	}, WithBranchRule(StepOnboardingWelcome, func(rc RouteContext) models.StepID {
		if rc.Seed[SeedKeyStartFrom] == string(StepOnboardingRisk) {
			return StepOnboardingRisk
		}
		return StepOnboardingName
	}))
}

// NewOnboardingBundle wires the onboarding flow to the gateway.
func NewOnboardingBundle(gw Gateway) *Bundle {
	def := NewOnboardingDefinition()
	return &Bundle{
		Definition:  def,
		Coordinator: &OnboardingCoordinator{gateway: gw, def: def},
	}
}

// OnboardingCoordinator submits a completed onboarding ledger to the backend.
// It holds the definition to recover each questionnaire step's prompt text,
// which the server expects verbatim as the question field.
type OnboardingCoordinator struct {
	gateway Gateway
	def     *Definition
}

// Submit translates the ledger into the /user_onboard request shape and maps
// the response to a terminal outcome. The server reports result "Success" for
// a fully onboarded user and "Risk" when the questionnaire completed a
// previously partial profile; both are success here.
func (c *OnboardingCoordinator) Submit(ctx context.Context, session models.SessionContext, entries []models.LedgerEntry, seed map[string]string) models.SubmissionOutcome {
	phone := session.PhoneNumber
	if phone == "" {
		phone = seed[SeedKeyPhoneNumber]
	}
	payload := gateway.OnboardingPayload{
		PhoneNumber:   phone,
		Name:          entryText(entries, StepOnboardingName),
		DOB:           entryText(entries, StepOnboardingDOB),
		MaritalStatus: entryText(entries, StepOnboardingSocialStatus),
		Income:        entryNumber(entries, StepOnboardingIncome),
		PAN:           entryText(entries, StepOnboardingPAN),
		RiskQuestions: c.riskQuestions(entries),
	}
	slog.Debug("OnboardingCoordinator submitting", "phone_set", phone != "", "risk_items", len(payload.RiskQuestions.Items))
	resp, err := c.gateway.OnboardUser(ctx, payload)
	if err != nil {
		return models.RecoverableOutcome("Unable to connect to the server. Please check your internet connection.")
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
	return models.SuccessOutcome(map[string]any{"result": result})
}

// riskQuestions pairs each answered questionnaire step's prompt with its
// answer, preserving questionnaire order.
func (c *OnboardingCoordinator) riskQuestions(entries []models.LedgerEntry) gateway.RiskQuestions {
	var rq gateway.RiskQuestions
	for _, stepID := range riskQuestionSteps {
		answer := entryText(entries, stepID)
		if answer == "" {
			continue
		}
		step, ok := c.def.Step(stepID)
		if !ok {
			continue
		}
		rq.Items = append(rq.Items, gateway.RiskQuestion{Question: step.Prompt, Answer: answer})
	}
	return rq
}
