package flow

import (
	"context"
	"log/slog"

	"github.com/finadvisor/stepflow/internal/models"
)

// Step ids for the registration flow.
const (
	StepRegistrationPhone    models.StepID = "phone"
	StepRegistrationChecking models.StepID = "checking"
)

// Onboarding status values reported by the backend.
const (
	OnboardingStatusNotOnboarded = "User Not Onboarded"
	OnboardingStatusBasic        = "Basic"
	OnboardingStatusComplete     = "Risk"
)

// NewRegistrationDefinition builds the registration step list: capture the
// phone number, then check the recorded onboarding status.
func NewRegistrationDefinition() *Definition {
	return MustDefinition(models.FlowRegistration, []models.StepDescriptor{
		{
			ID:          StepRegistrationPhone,
			Kind:        models.StepKindPattern,
			Prompt:      "Enter your mobile number to get started. We'll check your registration status and guide you accordingly",
			Placeholder: "10-digit mobile number",
			Rule:        models.RulePhoneNumber,
		},
		{
			ID:     StepRegistrationChecking,
			Kind:   models.StepKindTerminal,
			Prompt: "Checking your registration status...",
		},
	})
}

// NewRegistrationBundle wires the registration flow to the gateway.
func NewRegistrationBundle(gw Gateway) *Bundle {
	return &Bundle{
		Definition:  NewRegistrationDefinition(),
		Coordinator: &RegistrationCoordinator{gateway: gw},
	}
}

// RegistrationCoordinator checks the onboarding status for a phone number and
// branches accordingly: a new user enters full onboarding, a partially
// onboarded user enters onboarding at the risk questionnaire, and a fully
// onboarded user is done.
type RegistrationCoordinator struct {
	gateway Gateway
}

// Submit calls the status endpoint and classifies the result. Status-check
// failures must never lock the user out, so transport and server errors fall
// through to full onboarding rather than a retry loop.
func (c *RegistrationCoordinator) Submit(ctx context.Context, session models.SessionContext, entries []models.LedgerEntry, seed map[string]string) models.SubmissionOutcome {
	phone := entryText(entries, StepRegistrationPhone)
	if phone == "" {
		phone = session.PhoneNumber
	}
	onboardingSeed := map[string]string{SeedKeyPhoneNumber: phone}

	resp, err := c.gateway.CheckOnboarding(ctx, phone)
	if err != nil {
		slog.Warn("RegistrationCoordinator status check failed, proceeding to onboarding", "error", err)
		return models.FollowUpOutcome(models.FlowOnboarding, onboardingSeed)
	}
	if !resp.OK() {
		slog.Warn("RegistrationCoordinator status check returned error, proceeding to onboarding", "status", resp.StatusCode)
		return models.FollowUpOutcome(models.FlowOnboarding, onboardingSeed)
	}
	result, parsed, _ := decodeResult(resp)
	if !parsed {
		slog.Debug("RegistrationCoordinator status response not parseable, defaulting to onboarding")
		return models.FollowUpOutcome(models.FlowOnboarding, onboardingSeed)
	}
	switch result {
	case OnboardingStatusNotOnboarded:
		slog.Info("RegistrationCoordinator new user, starting full onboarding", "phone_set", phone != "")
		return models.FollowUpOutcome(models.FlowOnboarding, onboardingSeed)
	case OnboardingStatusBasic:
		slog.Info("RegistrationCoordinator partially onboarded user, starting from risk questionnaire")
		onboardingSeed[SeedKeyStartFrom] = string(StepOnboardingRisk)
		return models.FollowUpOutcome(models.FlowOnboarding, onboardingSeed)
	case OnboardingStatusComplete:
		slog.Info("RegistrationCoordinator user fully onboarded")
		return models.SuccessOutcome(map[string]any{"result": result})
	default:
		slog.Warn("RegistrationCoordinator unknown status, defaulting to onboarding", "result", result)
		return models.FollowUpOutcome(models.FlowOnboarding, onboardingSeed)
	}
}
