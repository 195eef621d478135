// Package gateway provides the HTTP client for the fin-advisor backend.
//
// The backend persists goals, profiles, and recommendations; it is opaque to
// the flow engine beyond the request/response contract expressed here.
// Responses are surfaced as raw status/body pairs so submission coordinators
// own their classification.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Default client configuration.
const (
	// DefaultBaseURL is the production fin-advisor service.
	DefaultBaseURL = "https://fin-advisor-ashokkumar5.replit.app"
	// DefaultTimeout bounds every backend call; the engine itself enforces no
	// timeouts, so a stalled call must be cut off here.
	DefaultTimeout = 15 * time.Second
)

// Opts holds configuration options for the gateway client.
type Opts struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option defines a configuration option for the gateway client.
type Option func(*Opts)

// WithBaseURL overrides the backend base URL.
func WithBaseURL(baseURL string) Option {
	return func(o *Opts) {
		o.BaseURL = baseURL
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = timeout
	}
}

// WithHTTPClient injects a custom HTTP client (primarily for tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = c
	}
}

// Response is the raw result of a backend call: status code plus body bytes.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the response carries a 2xx status code.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// RiskQuestion is one answered questionnaire item.
type RiskQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// RiskQuestions wraps questionnaire items in the server's nested shape.
type RiskQuestions struct {
	Items []RiskQuestion `json:"items"`
}

// OnboardingPayload is the request body for POST /user_onboard. Field names
// are fixed by the server contract.
type OnboardingPayload struct {
	PhoneNumber   string        `json:"phone_number"`
	Name          string        `json:"name"`
	DOB           string        `json:"dob"`
	MaritalStatus string        `json:"marital_status"`
	Income        int64         `json:"income"`
	PAN           string        `json:"pan"`
	RiskQuestions RiskQuestions `json:"risk_questions"`
}

// GoalPayload is the request body for POST /create_goal.
type GoalPayload struct {
	PhoneNumber   string `json:"phone_number"`
	GoalName      string `json:"goal_name"`
	TargetAmount  int64  `json:"target_amount"`
	TargetDate    string `json:"target_date"`
	CurrentAmount int64  `json:"current_amount"`
}

// FundSelectionPayload is the request body for POST /select_fund.
type FundSelectionPayload struct {
	PhoneNumber string `json:"phone_number"`
	GoalID      string `json:"goal_id"`
	FundName    string `json:"fund_name"`
}

// Client talks to the fin-advisor backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a gateway client, applying any provided options.
func NewClient(opts ...Option) *Client {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	slog.Debug("Gateway NewClient", "base_url", cfg.BaseURL, "timeout", cfg.Timeout)
	return &Client{baseURL: cfg.BaseURL, httpClient: httpClient}
}

// FetchGoalSuggestions retrieves the suggested goal names shown on the goal
// selection step. Callers substitute a fixed default list on error; a failed
// fetch is never a blocking condition for the user.
func (c *Client) FetchGoalSuggestions(ctx context.Context) ([]string, error) {
	resp, err := c.get(ctx, "/finadvisor/goal_suggesstion")
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("goal suggestions request returned status %d", resp.StatusCode)
	}
	var body struct {
		Goals []string `json:"goals"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("failed to parse goal suggestions: %w", err)
	}
	slog.Debug("Gateway FetchGoalSuggestions succeeded", "count", len(body.Goals))
	return body.Goals, nil
}

// CheckOnboarding looks up the onboarding status recorded for a phone number.
func (c *Client) CheckOnboarding(ctx context.Context, phone string) (Response, error) {
	return c.postJSON(ctx, "/onboarding", map[string]string{"phone_number": phone})
}

// OnboardUser submits a completed onboarding profile.
func (c *Client) OnboardUser(ctx context.Context, payload OnboardingPayload) (Response, error) {
	return c.postJSON(ctx, "/user_onboard", payload)
}

// CreateGoal submits a completed goal-creation flow.
func (c *Client) CreateGoal(ctx context.Context, payload GoalPayload) (Response, error) {
	return c.postJSON(ctx, "/create_goal", payload)
}

// FetchFollowUp retrieves the fund recommendations for a created goal.
func (c *Client) FetchFollowUp(ctx context.Context, goalID string) (Response, error) {
	return c.get(ctx, "/finadvisor/fund_recommendation?goal_id="+url.QueryEscape(goalID))
}

// SelectFund records the fund chosen for a goal.
func (c *Client) SelectFund(ctx context.Context, payload FundSelectionPayload) (Response, error) {
	return c.postJSON(ctx, "/select_fund", payload)
}

func (c *Client) get(ctx context.Context, path string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return Response{}, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	return c.do(req)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode payload for %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (Response, error) {
	slog.Debug("Gateway request", "method", req.Method, "url", req.URL.String())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Gateway transport error", "method", req.Method, "url", req.URL.String(), "error", err)
		return Response{}, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("Gateway body read error", "url", req.URL.String(), "error", err)
		return Response{}, fmt.Errorf("failed to read gateway response: %w", err)
	}
	slog.Debug("Gateway response", "url", req.URL.String(), "status", resp.StatusCode, "bytes", len(body))
	return Response{StatusCode: resp.StatusCode, Body: body}, nil
}
