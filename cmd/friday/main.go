package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	ferrors "github.com/friday-ai/friday/internal/errors"
)

var Version = "dev"

// Exit codes for failures a caller may want to tell apart.
const (
	exitFailure   = 1
	exitBudget    = 2
	exitLoop      = 3
	exitInvariant = 4
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case ferrors.IsBudgetExceeded(err):
		return exitBudget
	case ferrors.GetCode(err) == ferrors.CodeLoopAborted:
		return exitLoop
	case ferrors.IsInvariantViolation(err):
		return exitInvariant
	default:
		return exitFailure
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printHelp(stderr)
		return nil
	}

	switch args[0] {
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "friday version %s\n", Version)
		return nil
	case "--help", "-h", "help":
		printHelp(stdout)
		return nil
	case "replay":
		return runReplay(args[1:], stdout, stderr)
	case "sessions":
		return runSessions(args[1:], stdout, stderr)
	default:
		printHelp(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// parseFlags parses a subcommand's flags, printing usage on --help.
func parseFlags(flagSet *pflag.FlagSet, args []string, usage string, stderr io.Writer) (helped bool, err error) {
	flagSet.SetOutput(stderr)
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage:\n  %s\n\nFlags:\n", usage)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func printHelp(w io.Writer) {
	fmt.Fprintf(w, `friday - context and safety runtime for coding-assistant agents

Usage:
  friday replay [flags] transcript.yaml   Replay a scripted transcript
  friday sessions [flags]                 List saved sessions
  friday version                          Show version
  friday help                             Show this help

Replay flags:
  --config path     Config file (default: search friday.yaml, .friday/config.yaml)
  --soft n          Override the soft token limit
  --hard n          Override the hard token limit
  --save            Save the final session
  --resume id       Restore a saved session before replaying
  --stats-only      Print only the final statistics
  --prompt          Print the final prompt with old tool results masked
  --debug           Enable debug logging and event tracing

Exit codes:
  1  other errors
  2  context cannot fit under the hard token limit
  3  session stopped by the loop detector
  4  a turn broke tool-call pairing

Environment:
  FRIDAY_SUMMARIZER        digest (default) or anthropic
  ANTHROPIC_API_KEY        API key for the anthropic summarizer
  FRIDAY_SOFT_TOKEN_LIMIT  Soft token limit
  FRIDAY_HARD_TOKEN_LIMIT  Hard token limit
  FRIDAY_DEBUG=1           Write JSONL traces to FRIDAY_DEBUG_DIR
`)
}
