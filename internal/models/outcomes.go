// Package models defines outcome types for flow submissions.
package models

// SubmissionKind tags the terminal outcome variant of a submission.
type SubmissionKind string

const (
	// SubmissionSuccess means the backend accepted the submission.
	SubmissionSuccess SubmissionKind = "success"
	// SubmissionNeedsFollowUp means the backend accepted the submission and a
	// second flow should be entered, seeded from the response.
	SubmissionNeedsFollowUp SubmissionKind = "needs_follow_up"
	// SubmissionRecoverableFailure means the submission failed in a way the user
	// can retry without re-answering prior steps.
	SubmissionRecoverableFailure SubmissionKind = "recoverable_failure"
	// SubmissionFatalFailure means the flow must restart from the beginning.
	SubmissionFatalFailure SubmissionKind = "fatal_failure"
)

// SubmissionOutcome is the classified result of a terminal submission.
type SubmissionOutcome struct {
	Kind SubmissionKind `json:"kind"`
	// Payload holds parsed response fields on success. A successful status code
	// with an unparsable body yields SubmissionSuccess with a nil Payload; that
	// leniency is deliberate and explicit here rather than hidden in parsing.
	Payload map[string]any `json:"payload,omitempty"`
	// NextFlow and Seed are set for SubmissionNeedsFollowUp.
	NextFlow FlowID            `json:"next_flow,omitempty"`
	Seed     map[string]string `json:"seed,omitempty"`
	// Message is a user-facing description for failure outcomes.
	Message string `json:"message,omitempty"`
}

// SuccessOutcome builds a success outcome with an optional parsed payload.
func SuccessOutcome(payload map[string]any) SubmissionOutcome {
	return SubmissionOutcome{Kind: SubmissionSuccess, Payload: payload}
}

// FollowUpOutcome builds an outcome chaining into the given flow with seed data.
func FollowUpOutcome(next FlowID, seed map[string]string) SubmissionOutcome {
	return SubmissionOutcome{Kind: SubmissionNeedsFollowUp, NextFlow: next, Seed: seed}
}

// RecoverableOutcome builds a retryable failure outcome.
func RecoverableOutcome(message string) SubmissionOutcome {
	return SubmissionOutcome{Kind: SubmissionRecoverableFailure, Message: message}
}

// FatalOutcome builds a non-retryable failure outcome.
func FatalOutcome(message string) SubmissionOutcome {
	return SubmissionOutcome{Kind: SubmissionFatalFailure, Message: message}
}
