package output

import "codemedic/internal/checks"

// Lifecycle event types.
const (
	EventRunStarted     = "run.started"
	EventStageStarted   = "stage.started"
	EventCheckResult    = "check.result"
	EventRepairStarted  = "repair.started"
	EventRepairFinished = "repair.finished"
	EventStageFinished  = "stage.finished"
	EventRunFinished    = "run.finished"
)

// Verdicts carried by run.finished.
const (
	VerdictSuccess          = "success"
	VerdictQualifiedFailure = "qualified_failure"
	VerdictFailure          = "failure"
	VerdictFatal            = "fatal"
)

// Event is a lifecycle record of a validation run.
//
// In NDJSON mode, sinks emit Events (one JSON object per line). In text mode
// the console renders one line per stage transition, check result and repair,
// and a final "SUCCESS: ..." or "FAILURE: ..." line for run.finished.
//
// JSON mode remains an aggregate of checks.Result values.
type Event struct {
	Type     string         `json:"type"`
	RunID    string         `json:"run_id,omitempty"`
	Stage    checks.Stage   `json:"stage,omitempty"`
	File     string         `json:"file,omitempty"`
	Message  string         `json:"message,omitempty"`
	Result   *checks.Result `json:"result,omitempty"`
	Files    int            `json:"files,omitempty"`
	Stages   int            `json:"stages,omitempty"`
	Attempt  int            `json:"attempt,omitempty"`
	Verdict  string         `json:"verdict,omitempty"`
	ExitCode int            `json:"exit_code,omitempty"`
}

func eventFromResult(r checks.Result) Event {
	return Event{Type: EventCheckResult, Stage: r.Stage, File: r.File, Result: &r}
}

// resultOf extracts the check result carried by v, if any.
func resultOf(v any) (checks.Result, bool) {
	switch t := v.(type) {
	case checks.Result:
		return t, true
	case Event:
		if t.Type == EventCheckResult && t.Result != nil {
			return *t.Result, true
		}
	}
	return checks.Result{}, false
}
