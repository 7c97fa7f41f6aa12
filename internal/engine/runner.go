package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"codemedic/internal/checks"
	"codemedic/internal/output"
	"codemedic/internal/project"
	"codemedic/internal/repair"
)

type eventWriter interface {
	Write(v any) error
}

// runner drives one run through the planned stages. Stages move strictly
// forward; the only loop is the bounded repair loop inside one target.
type runner struct {
	plan       *Plan
	env        *checks.Env
	action     *repair.Action // nil when repairs are unavailable
	out        eventWriter
	log        *zap.Logger
	reportOnly bool

	res      Result
	failures []string
	warnings []string
}

// run executes every stage and fills in the verdict.
func (r *runner) run(ctx context.Context) Result {
	for _, sp := range r.plan.Stages {
		if err := ctx.Err(); err != nil {
			r.failures = append(r.failures, fmt.Sprintf("run interrupted before the %s stage: %v", sp.Check.Stage(), err))
			break
		}
		if !r.runStage(ctx, sp) {
			break
		}
	}
	r.finish()
	return r.res
}

func (r *runner) finish() {
	switch {
	case len(r.failures) > 0:
		r.res.Verdict = output.VerdictFailure
		r.res.Message = r.failures[0]
		if n := len(r.failures); n > 1 {
			r.res.Message += fmt.Sprintf(" (and %d more)", n-1)
		}
	case len(r.warnings) > 0:
		r.res.Verdict = output.VerdictQualifiedFailure
		r.res.Message = "completed with warnings: " + strings.Join(r.warnings, "; ")
	default:
		r.res.Verdict = output.VerdictSuccess
		r.res.Message = fmt.Sprintf("all %d stages passed for %d files", len(r.plan.Stages), len(r.env.Files))
		if r.res.RepairCalls > 0 {
			r.res.Message += fmt.Sprintf(" after %d repair(s)", r.res.RepairCalls)
		}
	}
}

// runStage reports false when the run must stop.
func (r *runner) runStage(ctx context.Context, sp StagePlan) bool {
	c := sp.Check
	targets := r.targets(c)
	r.emit(output.Event{Type: output.EventStageStarted, Stage: c.Stage(), Message: stageStartMessage(c, targets)})

	before := len(r.res.Findings)
	cont := true
	for _, f := range targets {
		if !r.runTarget(ctx, sp, f) {
			cont = false
			break
		}
	}

	msg := "passed"
	if n := len(r.res.Findings) - before; n > 0 {
		msg = fmt.Sprintf("finished with %d unresolved finding(s)", n)
	}
	r.emit(output.Event{Type: output.EventStageFinished, Stage: c.Stage(), Message: msg})
	return cont
}

func (r *runner) targets(c checks.Check) []project.File {
	if c.Scope() == checks.ScopeEntry {
		return []project.File{r.env.Entry}
	}
	return r.env.Files
}

func stageStartMessage(c checks.Check, targets []project.File) string {
	if c.Scope() == checks.ScopeEntry && len(targets) == 1 {
		return fmt.Sprintf("checking %s", targets[0].Name())
	}
	return fmt.Sprintf("checking %d files", len(targets))
}

// runTarget evaluates one file, repairing it within the stage's budget.
// It reports false when the run must stop.
func (r *runner) runTarget(ctx context.Context, sp StagePlan, f project.File) bool {
	pol := sp.Policy
	for round := 1; ; round++ {
		res := r.evaluate(ctx, sp.Check, f)
		switch res.Status {
		case checks.StatusPass, checks.StatusSkipped:
			return true
		case checks.StatusError:
			return r.exhausted(sp, res, 0)
		}

		if round > pol.MaxRepairs || r.action == nil || ctx.Err() != nil {
			return r.exhausted(sp, res, round-1)
		}
		ok := r.repairRound(ctx, sp, res, round)
		r.env.Invalidate()
		if !ok {
			return r.exhausted(sp, res, round)
		}
		if !pol.Reverify {
			return true
		}
	}
}

func (r *runner) evaluate(ctx context.Context, c checks.Check, f project.File) checks.Result {
	res, err := c.Evaluate(ctx, r.env, f)
	if err != nil {
		res = checks.ErrorResult(c.Stage(), f.Path, fmt.Sprintf("evaluation failed: %v", err))
	}
	if res.Stage == "" {
		res.Stage = c.Stage()
	}
	if res.File == "" {
		res.File = f.Path
	}
	if res.Status == "" {
		res.Status = checks.StatusError
	}
	r.res.Results = append(r.res.Results, res)
	r.emit(res)
	return res
}

// repairRound repairs every offending file of res once. It reports whether
// the round committed something usable.
func (r *runner) repairRound(ctx context.Context, sp StagePlan, res checks.Result, attempt int) bool {
	stage := sp.Check.Stage()
	failure := res.FailureText()
	committed := 0
	usable := true
	for _, path := range res.Offending() {
		r.emit(output.Event{Type: output.EventRepairStarted, Stage: stage, File: path, Attempt: attempt})
		r.res.RepairCalls++

		fixed, err := r.action.Fix(ctx, path, failure, sp.Policy.FixType)
		if err != nil {
			r.log.Warn("repair failed", zap.String("stage", string(stage)), zap.String("file", filepath.Base(path)), zap.Error(err))
			r.emit(output.Event{Type: output.EventRepairFinished, Stage: stage, File: path, Attempt: attempt, Message: "repair failed: " + err.Error()})
			continue
		}
		committed++
		r.res.Repairs = append(r.res.Repairs, fixed)
		r.emit(output.Event{Type: output.EventRepairFinished, Stage: stage, File: path, Attempt: attempt, Message: fixed.Message})
		if sp.Policy.RequireParseable && !fixed.Parseable {
			usable = false
		}
	}
	return committed > 0 && usable
}

// exhausted records res as unresolved and applies the stage's exhaustion
// policy: Warn downgrades the verdict to a qualified failure, Abort to a
// failure. Either way later stages are skipped unless the run only reports.
// It reports false when the run must stop.
func (r *runner) exhausted(sp StagePlan, res checks.Result, repairs int) bool {
	findings := res.Findings
	if len(findings) == 0 {
		findings = []checks.Finding{{File: res.File, Stage: res.Stage, Message: res.Message}}
	}
	r.res.Findings = append(r.res.Findings, findings...)

	msg := fmt.Sprintf("%s stage failed for %s", res.Stage, filepath.Base(res.File))
	if repairs > 0 {
		msg += fmt.Sprintf(" after %d repair attempt(s)", repairs)
	}
	if text := firstLine(res.FailureText()); text != "" {
		msg += ": " + text
	}

	if sp.Policy.OnExhausted == checks.Warn {
		r.warnings = append(r.warnings, msg)
	} else {
		r.failures = append(r.failures, msg)
	}
	return r.reportOnly
}

func (r *runner) emit(v any) {
	if r.out == nil {
		return
	}
	if err := r.out.Write(v); err != nil {
		r.log.Debug("output sink write failed", zap.Error(err))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
