package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"codemedic/internal/checks"
	"codemedic/internal/config"
	"codemedic/internal/engine"
)

func newStagesCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List validation stages and their repair policies",
		Long: `Inspect the validation stages.

Stages are evaluated by "codemedic validate" in the order listed here.

Examples:
	# List all stages
	codemedic stages list

	# Show one stage
	codemedic stages show fuzz
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var quiet bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List available stages",
		Long: `List all stages registered in this build, in run order.

Output:
	A vertical list of stages:
	  ----------------------------------------
	  STAGE: {ID}
	  ----------------------------------------
	  {TITLE}
	  {DESCRIPTION}
	  {POLICY}
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, c := range checks.List() {
				if quiet {
					fmt.Fprintln(cmd.OutOrStdout(), c.ID())
					continue
				}
				printStage(cmd.OutOrStdout(), c, effectivePolicy(cfg, c))
			}
			return nil
		},
	}
	list.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print stage IDs")

	show := &cobra.Command{
		Use:   "show <stage>",
		Short: "Show details of a specific stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ok := checks.Get(args[0])
			if !ok {
				return fmt.Errorf("stage not found: %s", args[0])
			}
			printStage(cmd.OutOrStdout(), c, effectivePolicy(cfg, c))
			return nil
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

// effectivePolicy is the policy a default validate run applies to c.
func effectivePolicy(cfg *config.Config, c checks.Check) checks.Policy {
	probe := *cfg
	probe.Stages = config.Stages{Selector: c.ID()}
	plan, err := engine.BuildPlan(&probe, false)
	if err != nil || len(plan.Stages) != 1 {
		return c.Policy()
	}
	return plan.Stages[0].Policy
}

func printStage(w io.Writer, c checks.Check, pol checks.Policy) {
	bold := color.New(color.Bold)
	fmt.Fprintln(w, "----------------------------------------")
	bold.Fprintf(w, "STAGE: %s\n", c.ID())
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintln(w, c.Title())
	fmt.Fprintln(w, c.Description())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Policy:")
	fmt.Fprintf(w, "  Scope:        %s\n", c.Scope())
	fmt.Fprintf(w, "  Fix type:     %s\n", pol.FixType)
	fmt.Fprintf(w, "  Max repairs:  %d\n", pol.MaxRepairs)
	fmt.Fprintf(w, "  Reverify:     %t\n", pol.Reverify)
	fmt.Fprintf(w, "  On exhausted: %s\n", pol.OnExhausted)
	fmt.Fprintln(w)
}
