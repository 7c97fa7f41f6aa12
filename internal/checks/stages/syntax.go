package stages

import (
	"context"
	"errors"
	"os"

	"codemedic/internal/checks"
	"codemedic/internal/project"
	"codemedic/internal/pyast"
	"codemedic/internal/repair"
)

type SyntaxCheck struct{}

func (c *SyntaxCheck) ID() string { return string(checks.StageSyntax) }

func (c *SyntaxCheck) Title() string { return "Files Parse as Python" }

func (c *SyntaxCheck) Description() string {
	return "Parses every project file and reports the first syntax error with its line and column. A failing file gets one syntax repair and is parsed again; if it still fails the run aborts."
}

func (c *SyntaxCheck) Stage() checks.Stage { return checks.StageSyntax }
func (c *SyntaxCheck) Order() int          { return 10 }
func (c *SyntaxCheck) Scope() checks.Scope { return checks.ScopeFiles }
func (c *SyntaxCheck) Policy() checks.Policy {
	return checks.Policy{FixType: repair.FixSyntax, MaxRepairs: 1, Reverify: true, OnExhausted: checks.Abort}
}

func (c *SyntaxCheck) Evaluate(ctx context.Context, env *checks.Env, file project.File) (checks.Result, error) {
	src, err := os.ReadFile(file.Path)
	if err != nil {
		return checks.ErrorResult(c.Stage(), file.Path, "Failed to read file: "+err.Error()), nil
	}
	err = pyast.CheckSyntax(ctx, file.Path, src)
	var se *pyast.SyntaxError
	switch {
	case err == nil:
		return checks.PassResult(c.Stage(), file.Path, "syntax OK"), nil
	case errors.As(err, &se):
		res := checks.FailResult(c.Stage(), file.Path, "Syntax error: "+se.Error())
		return res.WithMetadata(map[string]any{"line": se.Line, "column": se.Column}), nil
	default:
		return checks.ErrorResult(c.Stage(), file.Path, "Failed to parse file: "+err.Error()), nil
	}
}

func init() {
	checks.Register(&SyntaxCheck{})
}
