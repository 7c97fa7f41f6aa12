package checks

import "strings"

type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusSkipped Status = "SKIPPED"
	StatusError   Status = "ERROR"
)

// Finding is one unresolved problem reported by a check.
type Finding struct {
	File    string `json:"file"`
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	// OffendingFiles are the files a repair should target; empty means File.
	OffendingFiles []string `json:"offending_files,omitempty"`
}

type Result struct {
	Stage    Stage     `json:"stage"`
	File     string    `json:"file"`
	Status   Status    `json:"status"`
	Message  string    `json:"message,omitempty"`
	Findings []Finding `json:"findings,omitempty"`
	// Metadata contains structured data supporting the result (e.g. fuzz outcome kind).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Offending returns the distinct files the result's findings point at, in
// order, defaulting to the evaluated file.
func (r Result) Offending() []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, f := range r.Findings {
		for _, p := range f.OffendingFiles {
			add(p)
		}
	}
	if len(out) == 0 {
		add(r.File)
	}
	return out
}

// FailureText is the text handed to a repair: every finding message, or
// the result message when there are none.
func (r Result) FailureText() string {
	if len(r.Findings) == 0 {
		return r.Message
	}
	msgs := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "\n")
}

func NewResult(stage Stage, file string, status Status, message string) Result {
	return Result{Stage: stage, File: file, Status: status, Message: message}
}

func PassResult(stage Stage, file, message string) Result {
	return NewResult(stage, file, StatusPass, message)
}

func SkippedResult(stage Stage, file, message string) Result {
	return NewResult(stage, file, StatusSkipped, message)
}

func ErrorResult(stage Stage, file, message string) Result {
	return NewResult(stage, file, StatusError, message)
}

// FailResult builds a failing result with one finding per message.
func FailResult(stage Stage, file, message string, findings ...string) Result {
	res := NewResult(stage, file, StatusFail, message)
	for _, m := range findings {
		res.Findings = append(res.Findings, Finding{File: file, Stage: stage, Message: m})
	}
	if len(res.Findings) == 0 {
		res.Findings = []Finding{{File: file, Stage: stage, Message: message}}
	}
	return res
}

func (r Result) WithMetadata(metadata map[string]any) Result {
	r.Metadata = metadata
	return r
}
