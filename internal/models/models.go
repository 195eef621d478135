// Package models defines the core data structures for the step-flow engine.
//
// It includes step descriptors, validated answers, and the tagged outcome types
// shared between the flow interpreter, validators, and submission coordinators.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// StepKind defines how a step collects input from the user.
type StepKind string

const (
	// StepKindWelcome shows an opening message; any input advances and nothing is recorded.
	StepKindWelcome StepKind = "welcome"
	// StepKindChoiceSingle presents options and accepts exactly one of them.
	StepKindChoiceSingle StepKind = "choice_single"
	// StepKindChoiceMulti presents options toggled individually and confirmed with a done action.
	StepKindChoiceMulti StepKind = "choice_multi"
	// StepKindFreeText accepts any non-empty text.
	StepKindFreeText StepKind = "free_text"
	// StepKindNumericAmount accepts a monetary amount.
	StepKindNumericAmount StepKind = "numeric_amount"
	// StepKindDate accepts a date, free-form or strict depending on the rule.
	StepKindDate StepKind = "date"
	// StepKindPattern accepts input matching a fixed shape (e.g. PAN, mobile number).
	StepKindPattern StepKind = "pattern"
	// StepKindTerminal marks the end of a flow; reaching it triggers submission.
	StepKindTerminal StepKind = "terminal"
)

// ValidationRule names a validator in the registry.
type ValidationRule string

const (
	// RuleAnyInput accepts any input verbatim (welcome taps).
	RuleAnyInput ValidationRule = "any_input"
	// RuleFreeText rejects empty or whitespace-only input.
	RuleFreeText ValidationRule = "free_text"
	// RuleTargetAmount requires a positive amount after stripping formatting characters.
	RuleTargetAmount ValidationRule = "target_amount"
	// RuleSavingsAmount allows zero and treats empty input as zero.
	RuleSavingsAmount ValidationRule = "savings_amount"
	// RuleFreeDate rejects empty input only; no calendar parsing.
	RuleFreeDate ValidationRule = "free_date"
	// RuleBirthDate requires a real YYYY-MM-DD calendar date strictly in the past.
	RuleBirthDate ValidationRule = "birth_date"
	// RulePAN requires the 5-letters, 4-digits, 1-letter PAN shape, uppercased.
	RulePAN ValidationRule = "pan"
	// RulePhoneNumber requires a 10-digit Indian mobile number starting with 6-9.
	RulePhoneNumber ValidationRule = "phone_number"
	// RuleChoiceSingle requires the input to be one of the step's options.
	RuleChoiceSingle ValidationRule = "choice_single"
	// RuleChoiceMulti validates a single toggled option against the step's options.
	RuleChoiceMulti ValidationRule = "choice_multi"
	// RuleGoalName accepts one of the suggested goals or any non-empty custom text.
	RuleGoalName ValidationRule = "goal_name"
)

// StepID identifies a step within a flow.
type StepID string

// FlowID identifies a flow definition.
type FlowID string

// Flow identifiers.
const (
	FlowRegistration  FlowID = "registration"
	FlowOnboarding    FlowID = "onboarding"
	FlowGoalCreation  FlowID = "goal_creation"
	FlowFundSelection FlowID = "fund_selection"
)

// Error variables for contract violations and invalid input handling.
var (
	ErrDuplicateAnswer    = errors.New("step already answered in this run")
	ErrUnknownStep        = errors.New("unknown step id")
	ErrNotChoiceStep      = errors.New("step does not carry options")
	ErrNoActiveStep       = errors.New("flow is not accepting answers")
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	ErrMultiSelectStep    = errors.New("multi-select step requires toggle and confirm")
	ErrNotMultiSelectStep = errors.New("step is not multi-select")
	ErrEmptySelection     = errors.New("at least one option must be selected")
	ErrNoFollowUpFlow     = errors.New("follow-up flow is not registered")
	ErrFlowNotResumable   = errors.New("no resumable flow state")
	ErrInvalidPhoneNumber = errors.New("invalid phone number")
)

// StepDescriptor is the immutable definition of one interaction point in a flow.
// Prompt text may reference prior answers with {{step_id}} placeholders.
type StepDescriptor struct {
	ID          StepID         `json:"id"`
	Kind        StepKind       `json:"kind"`
	Prompt      string         `json:"prompt"`
	Placeholder string         `json:"placeholder,omitempty"`
	Options     []string       `json:"options,omitempty"`
	Rule        ValidationRule `json:"rule,omitempty"`
}

// AnswerKind tags the payload variant carried by an Answer.
type AnswerKind string

const (
	// AnswerKindText is a validated free-text value.
	AnswerKindText AnswerKind = "text"
	// AnswerKindNumber is a validated integer amount.
	AnswerKindNumber AnswerKind = "number"
	// AnswerKindChoices is a validated list of selected options.
	AnswerKindChoices AnswerKind = "choices"
)

// Answer is a validated value recorded in the ledger.
type Answer struct {
	Kind    AnswerKind `json:"kind"`
	Text    string     `json:"text,omitempty"`
	Number  int64      `json:"number,omitempty"`
	Choices []string   `json:"choices,omitempty"`
}

// TextAnswer wraps a text value as an Answer.
func TextAnswer(s string) Answer {
	return Answer{Kind: AnswerKindText, Text: s}
}

// NumberAnswer wraps an integer amount as an Answer.
func NumberAnswer(n int64) Answer {
	return Answer{Kind: AnswerKindNumber, Number: n}
}

// ChoicesAnswer wraps a list of selected options as an Answer.
func ChoicesAnswer(choices []string) Answer {
	return Answer{Kind: AnswerKindChoices, Choices: append([]string(nil), choices...)}
}

// Display returns the user-facing representation of the answer.
func (a Answer) Display() string {
	switch a.Kind {
	case AnswerKindNumber:
		return fmt.Sprintf("%d", a.Number)
	case AnswerKindChoices:
		return strings.Join(a.Choices, ", ")
	default:
		return a.Text
	}
}

// LedgerEntry is one recorded (step, answer) pair. Insertion order is preserved.
type LedgerEntry struct {
	StepID StepID `json:"step_id"`
	Value  Answer `json:"value"`
}

// ValidationOutcome is the result of validating raw input against a step's rule.
// It is always returned as data, never raised across the presentation boundary.
type ValidationOutcome struct {
	OK          bool
	Value       Answer
	UserMessage string
}

// Accepted builds a successful validation outcome carrying the validated value.
func Accepted(v Answer) ValidationOutcome {
	return ValidationOutcome{OK: true, Value: v}
}

// Rejected builds a failed validation outcome carrying a corrective message.
func Rejected(userMessage string) ValidationOutcome {
	return ValidationOutcome{OK: false, UserMessage: userMessage}
}
