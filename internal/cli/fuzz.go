package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codemedic/internal/config"
	"codemedic/internal/engine"
	"codemedic/internal/flags"
	"codemedic/internal/fuzz"
	"codemedic/internal/output"
	"codemedic/internal/project"
)

func newFuzzCmd(cfg *config.Config, cfgFile *string) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "fuzz <dir>",
		Short: "Run the fuzz harness once against the entry file",
		Long: `Instrument the entry file with the fuzz snippet and run it once.

The snippet is fuzz_logic.py from <dir> when present, otherwise a built-in
snippet that posts random keyboard and mouse events. The program survives when
it is still running at the deadline or exits cleanly. Nothing is repaired and
the project files are left untouched.

Exit codes:
	0 = the program survived
	1 = the program crashed
	3 = the harness could not run the program

Examples:
	codemedic fuzz ./out/run-42
	codemedic fuzz ./out/run-42 --entry game.py --fuzz-duration 10s --format json
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return exitCode(engine.ExitFatal, fmt.Errorf("invalid --%s %q (allowed: text, json)", flags.FlagFormat, format))
			}
			log, err := prepareConfig(cmd, cfg, *cfgFile, args)
			if err != nil {
				return exitCode(engine.ExitFatal, err)
			}
			defer func() { _ = log.Sync() }()

			files, err := project.List(cfg.Project.Dir)
			if err != nil {
				return exitCode(engine.ExitFatal, err)
			}
			entry, ok := files.Find(cfg.Project.Entry)
			if !ok {
				return exitCode(engine.ExitFatal, fmt.Errorf("entry file %s not found in %s", cfg.Project.Entry, cfg.Project.Dir))
			}

			h := &fuzz.Harness{Python: cfg.Fuzz.Python, Env: cfg.Fuzz.Env, Logger: log.With(zap.String("command", "fuzz"))}
			out := h.Run(commandContext(cmd), entry.Path, cfg.Fuzz.Duration)

			if err := printOutcome(cmd.OutOrStdout(), format, entry.Path, out); err != nil {
				return exitCode(engine.ExitFatal, err)
			}
			return exitCode(fuzzExitCode(out), nil)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Project.Entry, flags.FlagEntry, cfg.Project.Entry, "File name of the program entry point inside <dir>")
	f.DurationVar(&cfg.Fuzz.Duration, flags.FlagFuzzDuration, cfg.Fuzz.Duration, "Wall-clock budget of the fuzz run")
	f.StringVar(&cfg.Fuzz.Python, flags.FlagPython, cfg.Fuzz.Python, "Python interpreter")
	f.StringVar(&format, flags.FlagFormat, "text", "Output format: text|json")
	return cmd
}

func fuzzExitCode(out fuzz.Outcome) int {
	switch {
	case out.Kind == fuzz.KindHarnessError:
		return engine.ExitFatal
	case out.Passed:
		return engine.ExitSuccess
	default:
		return engine.ExitQualifiedFailure
	}
}

func printOutcome(w io.Writer, format, entry string, out fuzz.Outcome) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	name := filepath.Base(entry)
	if !out.Hooked {
		fmt.Fprintf(w, "note: no update hook found in %s; ran the program unmodified\n", name)
	}
	switch {
	case out.Passed:
		_, err := fmt.Fprintf(w, "%s: %s %s\n", output.MarkerSuccess, name, passPhrase(out.Kind))
		return err
	case out.Kind == fuzz.KindHarnessError:
		_, err := fmt.Fprintf(w, "%s: harness error: %s\n", output.MarkerFailure, out.Detail)
		return err
	default:
		_, err := fmt.Fprintf(w, "%s: %s crashed\n%s\n", output.MarkerFailure, name, strings.TrimRight(out.Detail, "\n"))
		return err
	}
}

func passPhrase(k fuzz.Kind) string {
	if k == fuzz.KindExited {
		return "exited cleanly"
	}
	return "survived the fuzz run"
}
