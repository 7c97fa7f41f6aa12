package engine

import (
	"codemedic/internal/checks"
	"codemedic/internal/output"
	"codemedic/internal/repair"
)

// Exit code contract:
// 0 = every stage passed
// 1 = qualified failure (fuzz budget exhausted or harness failure)
// 2 = failure (a stage that aborts on failure could not be repaired)
// 3 = fatal error (the run did not start)
const (
	ExitSuccess          = 0
	ExitQualifiedFailure = 1
	ExitFailure          = 2
	ExitFatal            = 3
)

// Result is the typed outcome of a validation run.
type Result struct {
	RunID   string `json:"run_id"`
	Verdict string `json:"verdict"`
	Message string `json:"message"`
	// Findings left unresolved when the run ended.
	Findings []checks.Finding `json:"findings,omitempty"`
	// Repairs committed during the run, in order.
	Repairs []repair.Result `json:"repairs,omitempty"`
	// Results holds every check evaluation, including superseded ones.
	Results []checks.Result `json:"results,omitempty"`
	// RepairCalls counts repair attempts, including failed ones.
	RepairCalls int `json:"repair_calls"`
}

// ExitCode maps the verdict onto the exit code contract.
func (r Result) ExitCode() int {
	return exitCodeForVerdict(r.Verdict)
}

// Succeeded reports whether the run passed every stage.
func (r Result) Succeeded() bool {
	return r.Verdict == output.VerdictSuccess
}

func exitCodeForVerdict(verdict string) int {
	switch verdict {
	case output.VerdictSuccess:
		return ExitSuccess
	case output.VerdictQualifiedFailure:
		return ExitQualifiedFailure
	case output.VerdictFailure:
		return ExitFailure
	default:
		return ExitFatal
	}
}

func fatalResult(runID, msg string) Result {
	return Result{RunID: runID, Verdict: output.VerdictFatal, Message: msg}
}
