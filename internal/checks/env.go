package checks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"codemedic/internal/fuzz"
	"codemedic/internal/logging"
	"codemedic/internal/project"
	"codemedic/internal/symbols"
)

// Verdict is a logic reviewer's judgement.
type Verdict struct {
	Pass   bool   `json:"pass"`
	Reason string `json:"reason,omitempty"`
}

// Reviewer judges whether code is logically consistent with its project.
type Reviewer interface {
	Review(ctx context.Context, code, context string) (Verdict, error)
}

// Fuzzer runs an entry file under randomized input.
type Fuzzer interface {
	Run(ctx context.Context, entry string, budget time.Duration) fuzz.Outcome
}

// Env is the per-run state shared by checks. The symbol table is built on
// first use and rebuilt after Invalidate, which the engine calls after every
// repair write.
type Env struct {
	Dir          string
	RunID        string
	Files        project.FileSet
	Entry        project.File
	Resolver     symbols.ExternalResolver
	Fuzzer       Fuzzer
	FuzzDuration time.Duration
	Reviewer     Reviewer
	Logger       *zap.Logger

	mu        sync.Mutex
	table     symbols.Table
	tableErrs []error
}

// Table returns the symbol table for the current on-disk state.
func (e *Env) Table(ctx context.Context) symbols.Table {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.table == nil {
		e.table, e.tableErrs = symbols.BuildTableFrom(ctx, e.Files)
		for _, err := range e.tableErrs {
			e.Log().Debug("symbol table skipped file", zap.Error(err))
		}
	}
	return e.table
}

// Invalidate drops cached state derived from file contents.
func (e *Env) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.table = nil
	e.tableErrs = nil
}

// Log returns the run logger, never nil.
func (e *Env) Log() *zap.Logger {
	if e == nil {
		return zap.NewNop()
	}
	return logging.OrNop(e.Logger)
}
