package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"codemedic/internal/checks"
)

func TestConsoleSink_Filtering(t *testing.T) {
	tests := []struct {
		name           string
		format         string
		filterStatuses []string
		input          checks.Result
		shouldWrite    bool
	}{
		{
			name:        "text - no filter - pass",
			format:      "text",
			input:       checks.PassResult(checks.StageSyntax, "/p/main.py", ""),
			shouldWrite: true,
		},
		{
			name:           "text - filter FAIL - input PASS",
			format:         "text",
			filterStatuses: []string{"FAIL"},
			input:          checks.PassResult(checks.StageSyntax, "/p/main.py", ""),
		},
		{
			name:           "text - filter FAIL - input FAIL",
			format:         "text",
			filterStatuses: []string{"FAIL"},
			input:          checks.FailResult(checks.StageSyntax, "/p/main.py", "Syntax error: x"),
			shouldWrite:    true,
		},
		{
			name:           "text - filter FAIL,ERROR - input ERROR",
			format:         "text",
			filterStatuses: []string{"FAIL", "ERROR"},
			input:          checks.ErrorResult(checks.StageFuzz, "/p/main.py", "harness"),
			shouldWrite:    true,
		},
		{
			name:           "json - filter FAIL - input PASS",
			format:         "json",
			filterStatuses: []string{"FAIL"},
			input:          checks.PassResult(checks.StageLogic, "/p/main.py", ""),
		},
		{
			name:           "json - filter FAIL - input FAIL",
			format:         "json",
			filterStatuses: []string{"FAIL"},
			input:          checks.FailResult(checks.StageLogic, "/p/main.py", "Logic issue: x"),
			shouldWrite:    true,
		},
		{
			name:           "text - filter SKIPPED - input SKIPPED",
			format:         "text",
			filterStatuses: []string{"SKIPPED"},
			input:          checks.SkippedResult(checks.StageLogic, "/p/main.py", "no reviewer"),
			shouldWrite:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			sink := NewConsoleSink(&buf, tt.format, tt.filterStatuses)

			if err := sink.Write(tt.input); err != nil {
				t.Fatalf("Write error: %v", err)
			}

			if tt.format == "json" {
				want := 0
				if tt.shouldWrite {
					want = 1
				}
				if len(sink.results) != want {
					t.Errorf("expected %d results buffered, got %d", want, len(sink.results))
				}
				return
			}
			wrote := buf.Len() > 0
			if tt.shouldWrite != wrote {
				t.Errorf("shouldWrite=%v, output %q", tt.shouldWrite, buf.String())
			}
		})
	}
}

func TestConsoleSink_Filtering_CaseInsensitive(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "text", []string{"fail"})

	if err := sink.Write(checks.FailResult(checks.StageSyntax, "/p/a.py", "boom")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected output for case-insensitive match, got none")
	}
}

func TestConsoleSink_FilterKeepsLifecycleEvents(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "text", []string{"FAIL"})

	_ = sink.Write(Event{Type: EventStageStarted, Stage: checks.StageSyntax, Message: "checking 2 files"})
	_ = sink.Write(Event{Type: EventCheckResult, Result: &checks.Result{Stage: checks.StageSyntax, Status: checks.StatusPass}})
	if got := buf.String(); got != "[syntax] checking 2 files\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestConsoleSink_TextLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "text", nil)

	fail := checks.FailResult(checks.StageCrossFile, "/p/main.py", "'X' not found in local module 'config'")
	events := []any{
		Event{Type: EventRunStarted, RunID: "r1", Message: "Validating 2 files in /p"},
		Event{Type: EventStageStarted, Stage: checks.StageCrossFile, Message: "checking 2 files"},
		fail,
		Event{Type: EventRepairStarted, Stage: checks.StageCrossFile, File: "/p/main.py", Attempt: 1},
		Event{Type: EventRepairFinished, Stage: checks.StageCrossFile, File: "/p/main.py", Attempt: 1, Message: "main.py rewritten"},
		Event{Type: EventRunFinished, Verdict: VerdictSuccess, Message: "all stages passed"},
	}
	for _, e := range events {
		if err := sink.Write(e); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}

	want := strings.Join([]string{
		"Validating 2 files in /p",
		"[cross_file] checking 2 files",
		"[FAIL] cross_file main.py - 'X' not found in local module 'config'",
		"[cross_file] repairing main.py (attempt 1)",
		"[cross_file] main.py rewritten",
		"SUCCESS: all stages passed",
	}, "\n") + "\n"
	if got := buf.String(); got != want {
		t.Fatalf("text output mismatch\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestConsoleSink_MultiLineMessage(t *testing.T) {
	msg := "Traceback (most recent call last):\n  File \"main.py\", line 3, in on_update\nZeroDivisionError: division by zero"
	fail := checks.FailResult(checks.StageFuzz, "/p/main.py", msg)

	var text bytes.Buffer
	if err := NewConsoleSink(&text, "text", nil).Write(fail); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	want := "[FAIL] fuzz main.py - Traceback (most recent call last):\n"
	if got := text.String(); got != want {
		t.Fatalf("text line mismatch\nwant: %q\ngot:  %q", want, got)
	}

	var nd bytes.Buffer
	if err := NewConsoleSink(&nd, "ndjson", nil).Write(fail); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	var e Event
	if err := json.Unmarshal(nd.Bytes(), &e); err != nil {
		t.Fatalf("decode ndjson: %v", err)
	}
	if e.Result == nil || e.Result.Message != msg {
		t.Fatalf("ndjson must keep the full message, got %+v", e.Result)
	}
}

func TestConsoleSink_FailureMarker(t *testing.T) {
	for _, verdict := range []string{VerdictQualifiedFailure, VerdictFailure, VerdictFatal} {
		var buf bytes.Buffer
		sink := NewConsoleSink(&buf, "text", nil)
		_ = sink.Write(Event{Type: EventRunFinished, Verdict: verdict, Message: "done"})
		if got := buf.String(); got != "FAILURE: done\n" {
			t.Fatalf("verdict %s: got %q", verdict, got)
		}
	}
}

func TestConsoleSink_JSONAggregate(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "json", nil)

	_ = sink.Write(Event{Type: EventRunStarted})
	_ = sink.Write(checks.PassResult(checks.StageSyntax, "/p/a.py", ""))
	_ = sink.Write(eventFromResult(checks.FailResult(checks.StageSyntax, "/p/b.py", "bad")))
	if buf.Len() != 0 {
		t.Fatalf("json mode should buffer until Close, got %q", buf.String())
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	var got []checks.Result
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, buf.String())
	}
	if len(got) != 2 || got[1].Status != checks.StatusFail {
		t.Fatalf("unexpected aggregate %+v", got)
	}
}

func TestConsoleSink_EmptyJSONIsArray(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "json", nil)
	if err := sink.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Fatalf("expected [], got %q", got)
	}
}

func TestConsoleSink_Filtering_NDJSON(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "ndjson", []string{"FAIL"})

	if err := sink.Write(checks.PassResult(checks.StageSyntax, "/p/a.py", "")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if buf.Len() > 0 {
		t.Errorf("expected no output for PASS, got: %s", buf.String())
	}

	if err := sink.Write(checks.FailResult(checks.StageSyntax, "/p/a.py", "bad")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"type":"check.result"`) || !strings.Contains(out, `"status":"FAIL"`) {
		t.Errorf("expected check.result event for FAIL, got: %s", out)
	}
}

func TestConsoleSink_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "xml", nil)
	if err := sink.Write(checks.PassResult(checks.StageSyntax, "a.py", "")); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
