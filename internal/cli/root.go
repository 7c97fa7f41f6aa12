package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codemedic/internal/config"
	"codemedic/internal/engine"
	"codemedic/internal/flags"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

// exitError carries a process exit code out of a command. A nil err means
// the command already reported its outcome.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitCode(code int, err error) error {
	if code == 0 && err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// NewRootCommand builds the command tree around a fresh default config.
func NewRootCommand() *cobra.Command {
	cfg := config.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "codemedic",
		Short: "Validate and repair generated Python projects",
		Long: `codemedic validates a directory of machine-generated Python files and repairs
what it finds through an LLM collaborator.

Stages run strictly in order: syntax, cross_file, fuzz, logic. Each failing
file gets a bounded number of repair attempts, so every run terminates.

Examples:
	# Full validation and repair run
	codemedic validate ./out/run-42

	# Static checks only, never modifies files
	codemedic check ./out/run-42

	# Run the fuzz harness once against the entry file
	codemedic fuzz ./out/run-42 --fuzz-duration 10s

	# Dump the cross-file symbol table
	codemedic symbols ./out/run-42 --format json

	# List stages and their repair policies
	codemedic stages list

Output:
	By default, commands write human-readable output to stdout. The terminal
	line of validate and check is "SUCCESS: <message>" or "FAILURE: <message>".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, flags.FlagConfig, "", "YAML config file; explicit flags override its values")
	root.PersistentFlags().BoolVar(&cfg.Runtime.Verbose, flags.FlagVerbose, false, "Enable verbose diagnostic logging on stderr")
	root.PersistentFlags().StringVar(&cfg.Runtime.LogLevel, flags.FlagLogLevel, cfg.Runtime.LogLevel, "Diagnostic log level: debug|info|warn|error")

	root.AddCommand(
		newValidateCmd(cfg, &cfgFile),
		newCheckCmd(cfg, &cfgFile),
		newFuzzCmd(cfg, &cfgFile),
		newSymbolsCmd(),
		newStagesCmd(cfg),
		newVersionCmd(),
	)

	root.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	root.SetVersionTemplate("{{.Version}}\n")
	return root
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	err := NewRootCommand().Execute()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
		}
		os.Exit(ee.code)
	}
	// Usage errors: nothing ran.
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(engine.ExitFatal)
}
