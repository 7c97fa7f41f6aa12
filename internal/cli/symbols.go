package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"codemedic/internal/engine"
	"codemedic/internal/flags"
	"codemedic/internal/symbols"
)

func newSymbolsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "symbols <dir>",
		Short: "Print the cross-file symbol table",
		Long: `Print the top-level functions, classes and variables of every module in <dir>.

This is the table the cross_file stage checks module.member references
against. Files that do not parse are left out and reported on stderr.

Exit codes:
	0 = every module parsed
	1 = some modules were skipped
	3 = fatal error

Examples:
	codemedic symbols ./out/run-42
	codemedic symbols ./out/run-42 --format json
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "yaml" && format != "json" {
				return exitCode(engine.ExitFatal, fmt.Errorf("invalid --%s %q (allowed: yaml, json)", flags.FlagFormat, format))
			}
			dir, err := projectDir(args[0])
			if err != nil {
				return exitCode(engine.ExitFatal, err)
			}

			table, errs := symbols.BuildTable(commandContext(cmd), dir)
			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped: %v\n", e)
			}
			if err := writeTable(cmd, format, table); err != nil {
				return exitCode(engine.ExitFatal, err)
			}
			if len(errs) > 0 {
				return exitCode(engine.ExitQualifiedFailure, nil)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, flags.FlagFormat, "yaml", "Output format: yaml|json")
	return cmd
}

func writeTable(cmd *cobra.Command, format string, table symbols.Table) error {
	if table == nil {
		table = symbols.Table{}
	}
	w := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(table)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(table); err != nil {
		return err
	}
	return enc.Close()
}
