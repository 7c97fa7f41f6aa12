package stages

import (
	"context"
	"fmt"
	"strings"

	"codemedic/internal/checks"
	"codemedic/internal/project"
	"codemedic/internal/repair"
	"codemedic/internal/symbols"
)

type CrossFileCheck struct{}

func (c *CrossFileCheck) ID() string { return string(checks.StageCrossFile) }

func (c *CrossFileCheck) Title() string { return "Module References Resolve" }

func (c *CrossFileCheck) Description() string {
	return "Checks that every attribute accessed on an imported module exists: strictly for project modules, and for installed packages only when their members could be introspected. A failing file gets one syntax repair against a rebuilt symbol table; if it still fails the run aborts."
}

func (c *CrossFileCheck) Stage() checks.Stage { return checks.StageCrossFile }
func (c *CrossFileCheck) Order() int          { return 20 }
func (c *CrossFileCheck) Scope() checks.Scope { return checks.ScopeFiles }
func (c *CrossFileCheck) Policy() checks.Policy {
	return checks.Policy{FixType: repair.FixSyntax, MaxRepairs: 1, Reverify: true, OnExhausted: checks.Abort}
}

func (c *CrossFileCheck) Evaluate(ctx context.Context, env *checks.Env, file project.File) (checks.Result, error) {
	msgs := symbols.CheckReferences(ctx, file.Path, env.Table(ctx), env.Resolver)
	if len(msgs) == 0 {
		return checks.PassResult(c.Stage(), file.Path, "references OK"), nil
	}
	summary := fmt.Sprintf("%d unresolved reference(s): %s", len(msgs), strings.Join(msgs, "; "))
	return checks.FailResult(c.Stage(), file.Path, summary, msgs...), nil
}

func init() {
	checks.Register(&CrossFileCheck{})
}
