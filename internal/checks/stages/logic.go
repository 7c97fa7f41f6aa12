package stages

import (
	"context"
	"os"

	"codemedic/internal/checks"
	"codemedic/internal/project"
	"codemedic/internal/repair"
)

type LogicCheck struct{}

func (c *LogicCheck) ID() string { return string(checks.StageLogic) }

func (c *LogicCheck) Title() string { return "Logic Review" }

func (c *LogicCheck) Description() string {
	return "Asks the reviewer whether each file is consistent with the rest of the project. A rejected file gets a single logic repair that must produce parseable code; otherwise the run aborts. Skipped when no reviewer is configured."
}

func (c *LogicCheck) Stage() checks.Stage { return checks.StageLogic }
func (c *LogicCheck) Order() int          { return 40 }
func (c *LogicCheck) Scope() checks.Scope { return checks.ScopeFiles }
func (c *LogicCheck) Policy() checks.Policy {
	return checks.Policy{FixType: repair.FixLogic, MaxRepairs: 1, RequireParseable: true, OnExhausted: checks.Abort}
}

func (c *LogicCheck) Evaluate(ctx context.Context, env *checks.Env, file project.File) (checks.Result, error) {
	if env.Reviewer == nil {
		return checks.SkippedResult(c.Stage(), file.Path, "no reviewer configured"), nil
	}
	code, err := os.ReadFile(file.Path)
	if err != nil {
		return checks.ErrorResult(c.Stage(), file.Path, "Failed to read file: "+err.Error()), nil
	}
	v, err := env.Reviewer.Review(ctx, string(code), repair.SiblingSignatures(ctx, file.Path))
	if err != nil {
		return checks.ErrorResult(c.Stage(), file.Path, "Logic review failed: "+err.Error()), nil
	}
	if v.Pass {
		return checks.PassResult(c.Stage(), file.Path, "logic review passed"), nil
	}
	return checks.FailResult(c.Stage(), file.Path, "Logic issue: "+v.Reason), nil
}

func init() {
	checks.Register(&LogicCheck{})
}
