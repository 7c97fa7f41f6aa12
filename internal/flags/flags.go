package flags

// Package flags defines canonical CLI flag names shared across the CLI and
// the config layer. IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Project.Entry, flags.FlagEntry, "main.py", "...")
//	arg := "--" + flags.FlagEntry
const (
	// Project
	FlagConfig   = "config"
	FlagEntry    = "entry"
	FlagRunID    = "run-id"
	FlagNewRunID = "new-run-id"

	// Stages
	FlagStages = "stages"
	FlagSet    = "set"

	// Fuzz
	FlagFuzzDuration = "fuzz-duration"
	FlagFuzzRetries  = "fuzz-retries"
	FlagPython       = "python"

	// Repair
	FlagProvider = "provider"
	FlagModel    = "model"
	FlagContextK = "context-k"
	FlagDB       = "db"

	// Output
	FlagConsoleFormat       = "console-format"
	FlagConsoleFilterStatus = "console-filter-status"
	FlagReport              = "report"
	FlagOut                 = "out"
	FlagOutFormat           = "out-format"
	FlagEmit                = "emit"
	FlagNoConsole           = "no-console"

	// Runtime
	FlagTimeout  = "timeout"
	FlagVerbose  = "verbose"
	FlagLogLevel = "log-level"
	FlagFormat   = "format"
)
