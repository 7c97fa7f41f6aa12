package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"codemedic/internal/config"
	"codemedic/internal/engine"
	"codemedic/internal/flags"
	"codemedic/internal/logging"
)

// checkDefaultStages are the stages check runs when neither --stages nor the
// config file selects any.
const checkDefaultStages = "syntax,cross_file"

const runHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Environment:
	Repairs and logic review call Google Gemini. The API key is read from:
	1) GEMINI_API_KEY
	2) GOOGLE_API_KEY

	CODEMEDIC_MODEL and CODEMEDIC_PYTHON override --model and --python when the
	flags are not given. A .env file in the working directory or the project
	directory is loaded first; variables already set are never overridden.

	Use --provider none to validate without an LLM: failures are reported
	without repairs and the logic stage is skipped.
`

func newValidateCmd(cfg *config.Config, cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <dir>",
		Short: "Validate and repair a generated Python project",
		Long: `Validate a directory of generated Python files and repair what fails.

Stages run in order and never go back:
	syntax      every file must parse
	cross_file  module.member references must resolve
	fuzz        the entry file must survive randomized input
	logic       an LLM reviewer must find no obvious logic errors

A failing file is rewritten by the repair collaborator and checked again, at
most a bounded number of times per stage (see "codemedic stages list").
Files are rewritten in place.

Output:
	Console output is controlled by --console-format (default: text). The last
	console line is "SUCCESS: <message>" or "FAILURE: <message>".
	Structured outputs can be written via --out, --emit and --report.

	NDJSON mode emits one Event per line with a "type" field (run.started,
	stage.started, check.result, repair.started, repair.finished,
	stage.finished, run.finished).

Exit codes:
	0 = every stage passed
	1 = qualified failure (a warn-on-exhaustion stage such as fuzz stayed red)
	2 = failure (a stage exhausted its repairs)
	3 = fatal error (the run did not start)

Examples:
	codemedic validate ./out/run-42
	codemedic validate ./out/run-42 --stages syntax,cross_file,fuzz --fuzz-retries 3
	codemedic validate ./out/run-42 --set logic.on_exhausted=warn
	codemedic validate ./out/run-42 --no-console --emit ndjson
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := prepareConfig(cmd, cfg, *cfgFile, args)
			if err != nil {
				return exitCode(engine.ExitFatal, err)
			}
			defer func() { _ = log.Sync() }()
			return exitCode(newEngine(cmd, log).Run(commandContext(cmd), cfg), nil)
		},
	}
	cmd.SetHelpTemplate(runHelpTemplate)
	addRunFlags(cmd, cfg)
	addRepairFlags(cmd, cfg)
	return cmd
}

func newCheckCmd(cfg *config.Config, cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <dir>",
		Short: "Report findings without repairing",
		Long: `Run the selected stages once and report every finding.

check never modifies files and never calls an LLM. By default it runs the
static stages (` + checkDefaultStages + `); select others with --stages.

Exit codes:
	0 = no findings
	1 = only warn-on-exhaustion stages failed
	2 = findings reported
	3 = fatal error (the run did not start)

Examples:
	codemedic check ./out/run-42
	codemedic check ./out/run-42 --stages syntax,cross_file,fuzz --console-filter-status FAIL
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := prepareConfig(cmd, cfg, *cfgFile, args)
			if err != nil {
				return exitCode(engine.ExitFatal, err)
			}
			defer func() { _ = log.Sync() }()
			return exitCode(newEngine(cmd, log).Check(commandContext(cmd), cfg), nil)
		},
	}
	addRunFlags(cmd, cfg)
	return cmd
}

func newEngine(cmd *cobra.Command, log *zap.Logger) *engine.Engine {
	eng := engine.NewEngine(log)
	eng.Stdout = cmd.OutOrStdout()
	eng.Stderr = cmd.ErrOrStderr()
	return eng
}

// addRunFlags registers the flags shared by validate and check.
func addRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()

	// Project
	f.StringVar(&cfg.Project.Entry, flags.FlagEntry, cfg.Project.Entry, "File name of the program entry point inside <dir>")
	f.StringVar(&cfg.Project.RunID, flags.FlagRunID, "", "Run id partitioning retrieval snippets (default: base name of <dir>)")
	f.BoolVar(&cfg.Project.NewRunID, flags.FlagNewRunID, false, "Generate a fresh run id (UUID)")

	// Stages
	f.StringVar(&cfg.Stages.Selector, flags.FlagStages, "", "Comma-separated stages to run (empty = all stages)")
	f.StringSliceVar(&cfg.Stages.Set, flags.FlagSet, nil, "Per-stage options as stage.option=value (repeatable; comma-separated accepted). Options: max_repairs, on_exhausted")

	// Fuzz
	f.DurationVar(&cfg.Fuzz.Duration, flags.FlagFuzzDuration, cfg.Fuzz.Duration, "Wall-clock budget of one fuzz run")
	f.IntVar(&cfg.Fuzz.Retries, flags.FlagFuzzRetries, cfg.Fuzz.Retries, "Crash repair rounds of the fuzz stage")
	f.StringVar(&cfg.Fuzz.Python, flags.FlagPython, cfg.Fuzz.Python, "Python interpreter for the fuzz harness and introspection")

	addOutputFlags(cmd, cfg)

	// Runtime
	f.DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, cfg.Runtime.Timeout, "Global timeout")
}

func addRepairFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	f.StringVar(&cfg.Repair.Provider, flags.FlagProvider, cfg.Repair.Provider, "Repair and review provider: gemini|none")
	f.StringVar(&cfg.Repair.Model, flags.FlagModel, cfg.Repair.Model, "Provider model name")
	f.IntVar(&cfg.Repair.ContextK, flags.FlagContextK, cfg.Repair.ContextK, "Retrieval snippets attached to each repair request")
	f.StringVar(&cfg.Retrieval.DBPath, flags.FlagDB, "", "SQLite snippet store path (default: in-memory)")
}

func addOutputFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	f.StringVar(&cfg.Output.ConsoleFormat, flags.FlagConsoleFormat, "text", "Console output format: text|json|ndjson")
	f.StringSliceVar(&cfg.Output.ConsoleFilterStatus, flags.FlagConsoleFilterStatus, nil, "Filter console output by status (PASS, FAIL, SKIPPED, ERROR). Comma-separated.")
	f.StringVar(&cfg.Output.Report, flags.FlagReport, "", "Write a Markdown report to this path")
	f.StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	f.StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	f.StringSliceVar(&cfg.Output.Emit, flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	f.BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out/--report)")
}

// prepareConfig layers the config sources in order (defaults, --config file,
// .env and environment, explicit flags), validates the result and builds the
// diagnostic logger.
func prepareConfig(cmd *cobra.Command, cfg *config.Config, cfgFile string, args []string) (*zap.Logger, error) {
	if cfgFile != "" {
		if err := loadConfigFile(cmd, cfg, cfgFile); err != nil {
			return nil, err
		}
	}
	if len(args) > 0 {
		cfg.Project.Dir = args[0]
	}
	if cmd.Name() == "check" && !cmd.Flags().Changed(flags.FlagStages) && cfg.Stages.Selector == "" {
		cfg.Stages.Selector = checkDefaultStages
	}

	dotenvDirs := []string{}
	if cfg.Project.Dir != "" {
		dotenvDirs = append(dotenvDirs, cfg.Project.Dir)
	}
	if err := config.LoadDotEnv(dotenvDirs...); err != nil {
		return nil, err
	}
	applyEnv(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return logging.New(cfg.Runtime.LogLevel, cfg.Runtime.Verbose)
}

// applyEnv applies environment overrides without clobbering explicit flags.
func applyEnv(cmd *cobra.Command, cfg *config.Config) {
	model, python := cfg.Repair.Model, cfg.Fuzz.Python
	cfg.ApplyEnv(os.Getenv)
	if cmd.Flags().Changed(flags.FlagModel) {
		cfg.Repair.Model = model
	}
	if cmd.Flags().Changed(flags.FlagPython) {
		cfg.Fuzz.Python = python
	}
}

// loadConfigFile replaces cfg with the file's values and re-applies every
// flag given on the command line, so explicit flags win.
func loadConfigFile(cmd *cobra.Command, cfg *config.Config, path string) error {
	loaded, err := config.LoadFile(path)
	if err != nil {
		return err
	}

	type setting struct {
		flag  *pflag.Flag
		value string
		slice []string
	}
	var explicit []setting
	cmd.Flags().Visit(func(f *pflag.Flag) {
		s := setting{flag: f, value: f.Value.String()}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			s.slice = sv.GetSlice()
		}
		explicit = append(explicit, s)
	})

	*cfg = *loaded

	for _, s := range explicit {
		if sv, ok := s.flag.Value.(pflag.SliceValue); ok {
			if err := sv.Replace(s.slice); err != nil {
				return fmt.Errorf("re-apply --%s: %w", s.flag.Name, err)
			}
			continue
		}
		if err := s.flag.Value.Set(s.value); err != nil {
			return fmt.Errorf("re-apply --%s: %w", s.flag.Name, err)
		}
	}
	return nil
}

// projectDir resolves the positional directory argument for commands that do
// not go through the full config.
func projectDir(arg string) (string, error) {
	dir, err := filepath.Abs(arg)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return dir, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
