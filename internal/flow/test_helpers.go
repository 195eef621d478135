package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/finadvisor/stepflow/internal/gateway"
	"github.com/finadvisor/stepflow/internal/models"
	"github.com/finadvisor/stepflow/internal/store"
)

// newTestStore returns an in-memory store for state-manager tests.
func newTestStore() store.Store {
	return store.NewInMemoryStore()
}

// stubGateway implements Gateway with canned responses and captures the
// payloads it was called with.
type stubGateway struct {
	mu sync.Mutex

	suggestions    []string
	suggestionsErr error

	checkResp gateway.Response
	checkErr  error
	checked   []string

	onboardResp     gateway.Response
	onboardErr      error
	onboardPayloads []gateway.OnboardingPayload

	goalResp     gateway.Response
	goalErr      error
	goalPayloads []gateway.GoalPayload

	followUpResp gateway.Response
	followUpErr  error
	followUpIDs  []string

	fundResp     gateway.Response
	fundErr      error
	fundPayloads []gateway.FundSelectionPayload
}

func (g *stubGateway) FetchGoalSuggestions(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suggestions, g.suggestionsErr
}

func (g *stubGateway) CheckOnboarding(ctx context.Context, phone string) (gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checked = append(g.checked, phone)
	return g.checkResp, g.checkErr
}

func (g *stubGateway) OnboardUser(ctx context.Context, payload gateway.OnboardingPayload) (gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onboardPayloads = append(g.onboardPayloads, payload)
	return g.onboardResp, g.onboardErr
}

func (g *stubGateway) CreateGoal(ctx context.Context, payload gateway.GoalPayload) (gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.goalPayloads = append(g.goalPayloads, payload)
	return g.goalResp, g.goalErr
}

func (g *stubGateway) FetchFollowUp(ctx context.Context, goalID string) (gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.followUpIDs = append(g.followUpIDs, goalID)
	return g.followUpResp, g.followUpErr
}

func (g *stubGateway) SelectFund(ctx context.Context, payload gateway.FundSelectionPayload) (gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fundPayloads = append(g.fundPayloads, payload)
	return g.fundResp, g.fundErr
}

// jsonResponse builds a gateway response from a status code and literal body.
func jsonResponse(status int, body string) gateway.Response {
	return gateway.Response{StatusCode: status, Body: []byte(body)}
}

// stubCoordinator returns queued outcomes in order and records every call's
// snapshot and seed. With an empty queue it returns success.
type stubCoordinator struct {
	mu       sync.Mutex
	outcomes []models.SubmissionOutcome
	calls    [][]models.LedgerEntry
	seeds    []map[string]string
}

func (c *stubCoordinator) Submit(ctx context.Context, session models.SessionContext, entries []models.LedgerEntry, seed map[string]string) models.SubmissionOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, entries)
	c.seeds = append(c.seeds, seed)
	if len(c.outcomes) == 0 {
		return models.SuccessOutcome(nil)
	}
	out := c.outcomes[0]
	c.outcomes = c.outcomes[1:]
	return out
}

func (c *stubCoordinator) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *stubCoordinator) call(i int) []models.LedgerEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[i]
}

func (c *stubCoordinator) seed(i int) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seeds[i]
}

// blockingCoordinator holds every submission until release is closed.
type blockingCoordinator struct {
	release chan struct{}
	outcome models.SubmissionOutcome
}

func newBlockingCoordinator(outcome models.SubmissionOutcome) *blockingCoordinator {
	return &blockingCoordinator{release: make(chan struct{}), outcome: outcome}
}

func (c *blockingCoordinator) Submit(ctx context.Context, session models.SessionContext, entries []models.LedgerEntry, seed map[string]string) models.SubmissionOutcome {
	<-c.release
	return c.outcome
}

// testSession is a valid session used across interpreter tests.
func testSession(t *testing.T) models.SessionContext {
	t.Helper()
	session, err := models.NewSessionContext("9876543210")
	if err != nil {
		t.Fatalf("NewSessionContext failed: %v", err)
	}
	return session
}

// waitOutcome blocks until the outcome handler fires or the test times out.
func waitOutcome(t *testing.T, ch <-chan models.SubmissionOutcome) models.SubmissionOutcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for submission outcome")
		return models.SubmissionOutcome{}
	}
}

// expectNoOutcome asserts the outcome handler stays silent.
func expectNoOutcome(t *testing.T, ch <-chan models.SubmissionOutcome) {
	t.Helper()
	select {
	case o := <-ch:
		t.Fatalf("unexpected outcome delivered: %+v", o)
	case <-time.After(100 * time.Millisecond):
	}
}

// waitForOption polls until the step's options include want; option loaders
// apply asynchronously.
func waitForOption(t *testing.T, interp *Interpreter, stepID models.StepID, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if step, ok := interp.CurrentStep(); ok && step.ID == stepID {
			for _, opt := range step.Options {
				if opt == want {
					return
				}
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("option %q never applied to step %s", want, stepID)
}

// newMultiSelectDefinition builds a minimal flow exercising multi-select steps.
func newMultiSelectDefinition() *Definition {
	return MustDefinition("multi_test", []models.StepDescriptor{
		{
			ID:      "topics",
			Kind:    models.StepKindChoiceMulti,
			Prompt:  "Which topics interest you?",
			Options: []string{"Stocks", "Bonds", "Gold"},
		},
		{
			ID:     "saving",
			Kind:   models.StepKindTerminal,
			Prompt: "Saving your interests...",
		},
	})
}
