package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/finadvisor/stepflow/internal/gateway"
	"github.com/finadvisor/stepflow/internal/models"
)

// Gateway is the backend surface consumed by submission coordinators and
// dynamic option loaders.
type Gateway interface {
	FetchGoalSuggestions(ctx context.Context) ([]string, error)
	CheckOnboarding(ctx context.Context, phone string) (gateway.Response, error)
	OnboardUser(ctx context.Context, payload gateway.OnboardingPayload) (gateway.Response, error)
	CreateGoal(ctx context.Context, payload gateway.GoalPayload) (gateway.Response, error)
	FetchFollowUp(ctx context.Context, goalID string) (gateway.Response, error)
	SelectFund(ctx context.Context, payload gateway.FundSelectionPayload) (gateway.Response, error)
}

// SubmissionCoordinator performs the terminal backend call for a flow and
// classifies the raw response into a tagged outcome.
type SubmissionCoordinator interface {
	Submit(ctx context.Context, session models.SessionContext, entries []models.LedgerEntry, seed map[string]string) models.SubmissionOutcome
}

// OptionLoader fetches dynamic options for one step, e.g. goal suggestions or
// fund recommendations. Load errors cause the step's fallback options to apply.
type OptionLoader struct {
	StepID models.StepID
	Load   func(ctx context.Context, seed map[string]string) ([]string, error)
}

// Bundle groups everything needed to run one flow: its step definitions, its
// submission coordinator, and any dynamic option loaders.
type Bundle struct {
	Definition  *Definition
	Coordinator SubmissionCoordinator
	Loaders     []OptionLoader
}

// Registry maps flow ids to their bundles, used for follow-up chaining.
type Registry struct {
	mu      sync.RWMutex
	bundles map[models.FlowID]*Bundle
}

// NewRegistry creates an empty flow registry.
func NewRegistry() *Registry {
	return &Registry{bundles: make(map[models.FlowID]*Bundle)}
}

// Register associates a flow id with its bundle.
func (r *Registry) Register(b *Bundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bundles[b.Definition.FlowID()] = b
}

// Get retrieves the bundle for a flow id.
func (r *Registry) Get(id models.FlowID) (*Bundle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bundles[id]
	return b, ok
}

// DefaultRegistry builds a registry with every fin-advisor flow wired to the
// given gateway.
func DefaultRegistry(gw Gateway) *Registry {
	r := NewRegistry()
	r.Register(NewRegistrationBundle(gw))
	r.Register(NewOnboardingBundle(gw))
	r.Register(NewGoalCreationBundle(gw))
	r.Register(NewFundSelectionBundle(gw))
	return r
}

// entryText returns the recorded text answer for a step, or "" if absent.
func entryText(entries []models.LedgerEntry, stepID models.StepID) string {
	for _, e := range entries {
		if e.StepID == stepID {
			return e.Value.Text
		}
	}
	return ""
}

// entryNumber returns the recorded numeric answer for a step, or 0 if absent.
func entryNumber(entries []models.LedgerEntry, stepID models.StepID) int64 {
	for _, e := range entries {
		if e.StepID == stepID {
			return e.Value.Number
		}
	}
	return 0
}

// failureMessage extracts a user-facing message from a non-2xx response body,
// trying the conventional message/error fields before falling back to a
// generic status line.
func failureMessage(resp gateway.Response) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return fmt.Sprintf("Server error: %d", resp.StatusCode)
}

// isFailureResult reports whether a parsed result field explicitly signals
// failure despite a successful status code.
func isFailureResult(result string) bool {
	return result == "Failure" || result == "Error"
}

// decodeResult parses the conventional {result, message} body shape. The
// second return is false when the body is not parsable JSON; a successful
// status code with an unparsable body is treated as success with an empty
// payload, since the backend omits a body on some write endpoints.
func decodeResult(resp gateway.Response) (result string, parsed bool, message string) {
	var body struct {
		Result  string `json:"result"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		slog.Debug("Coordinator response body not parseable, assuming success", "status", resp.StatusCode, "error", err)
		return "", false, ""
	}
	return body.Result, true, body.Message
}
