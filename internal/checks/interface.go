// Package checks defines the validation stages run against a generated
// project and the registry they self-register into.
package checks

import (
	"context"

	"codemedic/internal/project"
	"codemedic/internal/repair"
)

// Stage identifies a validation stage.
type Stage string

const (
	StageSyntax    Stage = "syntax"
	StageCrossFile Stage = "cross_file"
	StageFuzz      Stage = "fuzz"
	StageLogic     Stage = "logic"
)

// Scope says which files a check evaluates.
type Scope int

const (
	// ScopeFiles evaluates every project file in order.
	ScopeFiles Scope = iota
	// ScopeEntry evaluates the entry file only.
	ScopeEntry
)

func (s Scope) String() string {
	if s == ScopeEntry {
		return "entry"
	}
	return "files"
}

// Exhaustion is what happens when a check still fails after its repair
// budget is spent.
type Exhaustion int

const (
	// Abort ends the run with a failure.
	Abort Exhaustion = iota
	// Warn ends the run with a qualified failure.
	Warn
)

func (e Exhaustion) String() string {
	if e == Warn {
		return "warn"
	}
	return "abort"
}

// Policy is a check's repair policy.
type Policy struct {
	FixType repair.FixType
	// MaxRepairs bounds repair rounds per evaluated file.
	MaxRepairs int
	// Reverify re-runs the check after a repair; otherwise a committed
	// repair resolves the finding.
	Reverify bool
	// RequireParseable fails the attempt when the repaired file does not parse.
	RequireParseable bool
	OnExhausted      Exhaustion
}

type Check interface {
	ID() string
	Title() string
	Description() string
	Stage() Stage
	// Order positions the check in the run; lower runs first.
	Order() int
	Scope() Scope
	Policy() Policy

	// Evaluate inspects one file. It reads from disk on every call and
	// never modifies the project.
	Evaluate(ctx context.Context, env *Env, file project.File) (Result, error)
}
