// Command stepflow runs a fin-advisor conversational flow on the terminal.
//
// It is a development harness for the step-flow engine: prompts are printed,
// answers are read from stdin, and terminal outcomes are rendered inline. The
// production presentation surface is the mobile client.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/finadvisor/stepflow/internal/flow"
	"github.com/finadvisor/stepflow/internal/gateway"
	"github.com/finadvisor/stepflow/internal/models"
	"github.com/finadvisor/stepflow/internal/store"
	"github.com/finadvisor/stepflow/internal/util"
)

// Config holds environment configuration.
type Config struct {
	BaseURL string
	DBDSN   string
	Phone   string
	Debug   bool
}

// Flags holds command line flag values.
type Flags struct {
	baseURL *string
	dbDSN   *string
	phone   *string
	flowID  *string
}

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.Debug)

	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("stepflow failed to run", "error", err)
		os.Exit(1)
	}
}

// initializeLogger sets up structured logging.
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}
	return Config{
		BaseURL: util.GetenvDefault("STEPFLOW_BASE_URL", gateway.DefaultBaseURL),
		DBDSN:   util.GetenvDefault("STEPFLOW_DB_DSN", os.Getenv("DATABASE_URL")),
		Phone:   os.Getenv("STEPFLOW_PHONE"),
		Debug:   util.ParseBoolEnv("STEPFLOW_DEBUG", false),
	}
}

// parseCommandLineFlags parses flags, using environment configuration as defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		baseURL: flag.String("base-url", config.BaseURL, "fin-advisor backend base URL"),
		dbDSN:   flag.String("db-dsn", config.DBDSN, "flow state DSN (empty for in-memory, path for SQLite, postgres:// for PostgreSQL)"),
		phone:   flag.String("phone", config.Phone, "phone number for the session (not needed for the registration flow)"),
		flowID:  flag.String("flow", string(models.FlowRegistration), "flow to run: registration, onboarding, or goal_creation"),
	}
	flag.Parse()
	return flags
}

func run(flags Flags) error {
	ctx := context.Background()

	st, err := store.Open(*flags.dbDSN)
	if err != nil {
		return fmt.Errorf("failed to open flow state store: %w", err)
	}
	defer st.Close()

	session, err := buildSession(*flags.phone, models.FlowID(*flags.flowID))
	if err != nil {
		return err
	}

	gw := gateway.NewClient(gateway.WithBaseURL(*flags.baseURL))
	registry := flow.DefaultRegistry(gw)
	bundle, ok := registry.Get(models.FlowID(*flags.flowID))
	if !ok {
		return fmt.Errorf("unknown flow %q", *flags.flowID)
	}

	outcomes := make(chan models.SubmissionOutcome, 1)
	interp := flow.NewInterpreter(bundle, session,
		flow.WithFlowRegistry(registry),
		flow.WithStateManager(flow.NewStoreBasedStateManager(st)),
		flow.WithOutcomeHandler(func(o models.SubmissionOutcome) { outcomes <- o }),
	)
	interp.Start(ctx)

	return runConsole(ctx, interp, outcomes)
}

// buildSession validates the phone number into a session context. The
// registration flow collects the phone number itself and may start anonymous.
func buildSession(phone string, flowID models.FlowID) (models.SessionContext, error) {
	if phone == "" && flowID == models.FlowRegistration {
		return models.SessionContext{}, nil
	}
	session, err := models.NewSessionContext(phone)
	if err != nil {
		return models.SessionContext{}, fmt.Errorf("flow %s needs a valid -phone: %w", flowID, err)
	}
	return session, nil
}

// runConsole drives the interpreter from stdin until a final status.
func runConsole(ctx context.Context, interp *flow.Interpreter, outcomes <-chan models.SubmissionOutcome) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		switch interp.Status() {
		case models.FlowStatusSucceeded:
			fmt.Println("\n🎉 All done!")
			return nil

		case models.FlowStatusFailed:
			fmt.Printf("\n❌ %s\n", interp.FailureReason())
			return fmt.Errorf("flow %s failed", interp.FlowID())

		case models.FlowStatusSubmitting:
			outcome := <-outcomes
			slog.Debug("Submission outcome received", "kind", outcome.Kind)

		case models.FlowStatusAwaitingRetry:
			fmt.Printf("\n⚠️  %s\n", interp.FailureReason())
			fmt.Print("Try again? (retry/cancel): ")
			if !scanner.Scan() {
				interp.Abandon(ctx)
				return nil
			}
			if strings.EqualFold(strings.TrimSpace(scanner.Text()), "retry") {
				if err := interp.Retry(ctx); err != nil {
					return err
				}
			} else {
				interp.Abandon(ctx)
				fmt.Println("Okay, maybe later!")
				return nil
			}

		case models.FlowStatusInProgress:
			if err := promptStep(ctx, interp, scanner); err != nil {
				return err
			}
		}
	}
}

// promptStep renders the current step and feeds one line of input back in.
func promptStep(ctx context.Context, interp *flow.Interpreter, scanner *bufio.Scanner) error {
	step, ok := interp.CurrentStep()
	if !ok {
		return nil
	}
	fmt.Printf("\n%s\n", step.Prompt)
	for i, opt := range step.Options {
		marker := " "
		for _, sel := range interp.Selections() {
			if sel == opt {
				marker = "✓"
			}
		}
		fmt.Printf("%s %d. %s\n", marker, i+1, opt)
	}
	if step.Placeholder != "" {
		fmt.Printf("(%s)\n", step.Placeholder)
	}
	if step.Kind == models.StepKindChoiceMulti {
		fmt.Println("(toggle options; type 'done' to continue)")
	}
	fmt.Print("> ")
	if !scanner.Scan() {
		interp.Abandon(ctx)
		return scanner.Err()
	}
	input := resolveOption(step, strings.TrimSpace(scanner.Text()))

	if step.Kind == models.StepKindChoiceMulti {
		if strings.EqualFold(input, "done") {
			if err := interp.ConfirmSelection(ctx); err == models.ErrEmptySelection {
				fmt.Println("Pick at least one option first!")
				return nil
			} else if err != nil {
				return err
			}
			return nil
		}
		_, outcome, err := interp.ToggleOption(input)
		if err != nil {
			return err
		}
		if !outcome.OK {
			fmt.Println(outcome.UserMessage)
		}
		return nil
	}

	outcome, err := interp.SubmitAnswer(ctx, input)
	if err != nil {
		return err
	}
	if !outcome.OK {
		fmt.Println(outcome.UserMessage)
	}
	return nil
}

// resolveOption maps a numeric reply onto the step's option list, so "2"
// selects the second option the way the mobile client's chips do.
func resolveOption(step models.StepDescriptor, input string) string {
	if len(step.Options) == 0 {
		return input
	}
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > len(step.Options) {
		return input
	}
	return step.Options[n-1]
}
