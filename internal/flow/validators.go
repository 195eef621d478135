package flow

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/finadvisor/stepflow/internal/models"
)

// ValidatorFunc maps raw input (and the step's current options, for choice
// rules) to a validation outcome. Validators are pure: same input, same
// outcome, no I/O.
type ValidatorFunc func(raw string, options []string) models.ValidationOutcome

var validatorRegistry = make(map[models.ValidationRule]ValidatorFunc)

// RegisterValidator associates a validation rule with its implementation.
func RegisterValidator(rule models.ValidationRule, fn ValidatorFunc) {
	validatorRegistry[rule] = fn
}

// Validate runs the named rule against raw input. An unregistered rule is a
// flow-definition bug; it is logged and the input rejected.
func Validate(rule models.ValidationRule, raw string, options []string) models.ValidationOutcome {
	fn, ok := validatorRegistry[rule]
	if !ok {
		slog.Error("No validator registered for rule", "rule", rule)
		return models.Rejected("This step is misconfigured. Please restart the flow.")
	}
	return fn(raw, options)
}

var (
	panPattern       = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	birthDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// parseAmount strips formatting characters from a monetary input while keeping
// a leading minus sign, so "10,000" parses as 10000 and "-5" stays negative.
func parseAmount(raw string) (int64, bool) {
	trimmed := strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '-' && i == 0 {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" || digits == "-" {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func validateAnyInput(raw string, _ []string) models.ValidationOutcome {
	return models.Accepted(models.TextAnswer(strings.TrimSpace(raw)))
}

func validateFreeText(raw string, _ []string) models.ValidationOutcome {
	text := strings.TrimSpace(raw)
	if text == "" {
		return models.Rejected("Please type something first!")
	}
	return models.Accepted(models.TextAnswer(text))
}

func validateTargetAmount(raw string, _ []string) models.ValidationOutcome {
	n, ok := parseAmount(raw)
	if !ok || n <= 0 {
		return models.Rejected("Please enter a valid amount")
	}
	return models.Accepted(models.NumberAnswer(n))
}

func validateSavingsAmount(raw string, _ []string) models.ValidationOutcome {
	// Empty input is an implicit zero: the user is starting fresh.
	if strings.TrimSpace(raw) == "" {
		return models.Accepted(models.NumberAnswer(0))
	}
	n, ok := parseAmount(raw)
	if !ok || n < 0 {
		return models.Rejected("Please enter a valid amount (or leave empty for 0)")
	}
	return models.Accepted(models.NumberAnswer(n))
}

func validateFreeDate(raw string, _ []string) models.ValidationOutcome {
	text := strings.TrimSpace(raw)
	if text == "" {
		return models.Rejected("Please enter a date")
	}
	return models.Accepted(models.TextAnswer(text))
}

func validateBirthDate(raw string, _ []string) models.ValidationOutcome {
	text := strings.TrimSpace(raw)
	if !birthDatePattern.MatchString(text) {
		return models.Rejected("Please enter date in YYYY-MM-DD format (e.g., 1995-06-15)")
	}
	date, err := time.Parse("2006-01-02", text)
	if err != nil || !date.Before(time.Now()) {
		return models.Rejected("Please enter a valid birth date")
	}
	return models.Accepted(models.TextAnswer(text))
}

func validatePAN(raw string, _ []string) models.ValidationOutcome {
	pan := strings.ToUpper(strings.TrimSpace(raw))
	if !panPattern.MatchString(pan) {
		return models.Rejected("Please enter a valid PAN number (e.g., ABCDE1234F)")
	}
	return models.Accepted(models.TextAnswer(pan))
}

func validatePhoneNumber(raw string, _ []string) models.ValidationOutcome {
	phone := models.NormalizePhoneNumber(raw)
	if !models.IsValidPhoneNumber(phone) {
		return models.Rejected("Please enter a valid 10-digit mobile number starting with 6, 7, 8, or 9.")
	}
	return models.Accepted(models.TextAnswer(phone))
}

func validateChoiceSingle(raw string, options []string) models.ValidationOutcome {
	choice := strings.TrimSpace(raw)
	for _, opt := range options {
		if choice == opt {
			return models.Accepted(models.TextAnswer(choice))
		}
	}
	return models.Rejected("Please pick one of the options")
}

// validateChoiceMulti checks a single toggled option; the interpreter enforces
// the at-least-one-selection gate on confirmation.
func validateChoiceMulti(raw string, options []string) models.ValidationOutcome {
	return validateChoiceSingle(raw, options)
}

// validateGoalName accepts either a suggested goal or a custom non-empty one.
func validateGoalName(raw string, options []string) models.ValidationOutcome {
	if out := validateChoiceSingle(raw, options); out.OK {
		return out
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return models.Rejected("Tell me what you'd like to save for!")
	}
	return models.Accepted(models.TextAnswer(text))
}

// Register default validators.
func init() {
	RegisterValidator(models.RuleAnyInput, validateAnyInput)
	RegisterValidator(models.RuleFreeText, validateFreeText)
	RegisterValidator(models.RuleTargetAmount, validateTargetAmount)
	RegisterValidator(models.RuleSavingsAmount, validateSavingsAmount)
	RegisterValidator(models.RuleFreeDate, validateFreeDate)
	RegisterValidator(models.RuleBirthDate, validateBirthDate)
	RegisterValidator(models.RulePAN, validatePAN)
	RegisterValidator(models.RulePhoneNumber, validatePhoneNumber)
	RegisterValidator(models.RuleChoiceSingle, validateChoiceSingle)
	RegisterValidator(models.RuleChoiceMulti, validateChoiceMulti)
	RegisterValidator(models.RuleGoalName, validateGoalName)
}
