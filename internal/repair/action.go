// Package repair rewrites a failing project file through an external
// Repairer, supplying retrieval snippets and sibling signatures as context.
package repair

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"codemedic/internal/logging"
	"codemedic/internal/project"
	"codemedic/internal/pyast"
	"codemedic/internal/retrieval"
)

// FixType selects the kind of repair requested.
type FixType string

const (
	FixSyntax FixType = "syntax"
	FixLogic  FixType = "logic"
)

// Request is what a Repairer receives.
type Request struct {
	Filename string
	Code     string
	Error    string
	// Context holds reference snippets retrieved for the error.
	Context string
	// Structure holds the declared signatures of the sibling files.
	Structure string
	FixType   FixType
}

// Repairer produces corrected source for a request. The response may wrap
// the code in a fenced block.
type Repairer interface {
	Repair(ctx context.Context, req Request) (string, error)
}

// Result describes a committed repair.
type Result struct {
	Path      string `json:"path"`
	Parseable bool   `json:"parseable"`
	Message   string `json:"message"`
}

// DefaultContextK is the number of retrieval snippets requested per repair.
const DefaultContextK = 3

// Action performs repairs for one run. Store is optional.
type Action struct {
	Repairer Repairer
	Store    retrieval.Store
	RunID    string
	K        int
	Logger   *zap.Logger
}

// Fix repairs the file at path given the failure text. The repaired content
// is written even when it still fails to parse, so a later check can detect
// and retry it; Result.Parseable reports which case applies. A failed
// attempt returns a *Error and leaves the file untouched.
func (a *Action) Fix(ctx context.Context, path, failure string, fixType FixType) (Result, error) {
	log := a.logger().With(zap.String("file", filepath.Base(path)), zap.String("fix_type", string(fixType)))

	info, err := os.Stat(path)
	if err != nil {
		return Result{}, &Error{Op: OpRead, Path: path, Err: err}
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return Result{}, &Error{Op: OpRead, Path: path, Err: err}
	}

	req := Request{
		Filename:  filepath.Base(path),
		Code:      string(code),
		Error:     failure,
		Context:   a.retrievalContext(ctx, failure, log),
		Structure: SiblingSignatures(ctx, path),
		FixType:   fixType,
	}

	log.Info("requesting repair")
	resp, err := a.Repairer.Repair(ctx, req)
	if err != nil {
		return Result{}, &Error{Op: OpRepairer, Path: path, Err: err}
	}
	fixed := ExtractCodeBlock(resp)
	if fixed == "" {
		return Result{}, &Error{Op: OpExtract, Path: path, Err: errors.New("response contained no code")}
	}
	if !strings.HasSuffix(fixed, "\n") {
		fixed += "\n"
	}

	res := Result{Path: path, Parseable: true, Message: fmt.Sprintf("repaired %s", req.Filename)}
	if err := pyast.CheckSyntax(ctx, path, []byte(fixed)); err != nil {
		log.Warn("repaired code still does not parse; writing it anyway", zap.Error(err))
		res.Parseable = false
		res.Message = fmt.Sprintf("repaired %s, but the result does not parse: %v", req.Filename, err)
	}

	if err := os.WriteFile(path, []byte(fixed), info.Mode().Perm()); err != nil {
		return Result{}, &Error{Op: OpWrite, Path: path, Err: err}
	}
	a.reindex(ctx, req.Filename, fixed, log)
	return res, nil
}

// IndexProject seeds the store with the current content of every file.
func (a *Action) IndexProject(ctx context.Context, files project.FileSet) error {
	if a.Store == nil {
		return nil
	}
	var errs []error
	for _, f := range files {
		b, err := os.ReadFile(f.Path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		meta := retrieval.Metadata{Filename: f.Name(), RunID: a.RunID}
		if _, err := a.Store.DeleteByMetadata(ctx, meta); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := a.Store.Insert(ctx, string(b), meta); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Action) retrievalContext(ctx context.Context, failure string, log *zap.Logger) string {
	if a.Store == nil {
		return ""
	}
	k := a.K
	if k <= 0 {
		k = DefaultContextK
	}
	snippets, err := a.Store.Query(ctx, failure, a.RunID, k)
	if err != nil {
		log.Warn("retrieval query failed", zap.Error(err))
		return ""
	}
	parts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		parts = append(parts, fmt.Sprintf("# %s\n%s", s.Filename, strings.TrimSpace(s.Content)))
	}
	return strings.Join(parts, "\n\n")
}

func (a *Action) reindex(ctx context.Context, filename, content string, log *zap.Logger) {
	if a.Store == nil {
		return
	}
	meta := retrieval.Metadata{Filename: filename, RunID: a.RunID}
	if _, err := a.Store.DeleteByMetadata(ctx, meta); err != nil {
		log.Warn("retrieval delete failed", zap.Error(err))
		return
	}
	if _, err := a.Store.Insert(ctx, content, meta); err != nil {
		log.Warn("retrieval insert failed", zap.Error(err))
	}
}

func (a *Action) logger() *zap.Logger {
	return logging.OrNop(a.Logger)
}

// SiblingSignatures summarizes every other project file next to path.
func SiblingSignatures(ctx context.Context, path string) string {
	files, err := project.List(filepath.Dir(path))
	if err != nil {
		return ""
	}
	abs, _ := filepath.Abs(path)
	var parts []string
	for _, f := range files.Without(abs) {
		src, err := os.ReadFile(f.Path)
		if err != nil {
			continue
		}
		if sig := pyast.SignaturesOf(ctx, src); sig != "" {
			parts = append(parts, fmt.Sprintf("# %s\n%s", f.Name(), sig))
		}
	}
	return strings.Join(parts, "\n\n")
}
