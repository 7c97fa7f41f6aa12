package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codemedic/internal/checks"
	"codemedic/internal/engine"
)

type cmdResult struct {
	stdout string
	stderr string
	code   int
	err    error
}

func runCLI(t *testing.T, args ...string) cmdResult {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("CODEMEDIC_MODEL", "")
	t.Setenv("CODEMEDIC_PYTHON", "")

	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	res := cmdResult{}
	err := root.Execute()
	var ee *exitError
	switch {
	case err == nil:
	case errors.As(err, &ee):
		res.code = ee.code
		res.err = ee.err
	default:
		res.code = -1
		res.err = err
	}
	res.stdout, res.stderr = stdout.String(), stderr.String()
	return res
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

var healthyProject = map[string]string{
	"helpers.py": "def add(a, b):\n    return a + b\n\nLIMIT = 3\n",
	"main.py":    "import helpers\n\nprint(helpers.add(1, helpers.LIMIT))\n",
}

func TestVersionCommand(t *testing.T) {
	res := runCLI(t, "version")
	if res.code != 0 {
		t.Fatalf("exit code = %d (%v)", res.code, res.err)
	}
	if !strings.HasPrefix(res.stdout, "codemedic dev") {
		t.Fatalf("unexpected version output: %q", res.stdout)
	}
}

func TestSetBuildInfoKeepsDefaultsForEmptyValues(t *testing.T) {
	v, c, d := BuildInfo()
	t.Cleanup(func() { buildVersion, buildCommit, buildDate = v, c, d })

	SetBuildInfo("1.2.3", "", "2026-01-02")
	gotV, gotC, gotD := BuildInfo()
	if gotV != "1.2.3" || gotC != c || gotD != "2026-01-02" {
		t.Fatalf("BuildInfo() = %q, %q, %q", gotV, gotC, gotD)
	}
}

func TestStagesListQuietIsInRunOrder(t *testing.T) {
	res := runCLI(t, "stages", "list", "-q")
	if res.code != 0 {
		t.Fatalf("exit code = %d (%v)", res.code, res.err)
	}
	got := strings.Fields(res.stdout)
	want := []string{"syntax", "cross_file", "fuzz", "logic"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("stages = %v, want %v", got, want)
	}
}

func TestStagesShowReportsEffectivePolicy(t *testing.T) {
	res := runCLI(t, "stages", "show", string(checks.StageFuzz))
	if res.code != 0 {
		t.Fatalf("exit code = %d (%v)", res.code, res.err)
	}
	for _, want := range []string{
		"STAGE: fuzz",
		"Scope:        entry",
		"Max repairs:  2",
		"On exhausted: warn",
	} {
		if !strings.Contains(res.stdout, want) {
			t.Fatalf("output missing %q:\n%s", want, res.stdout)
		}
	}
}

func TestStagesShowUnknownStage(t *testing.T) {
	res := runCLI(t, "stages", "show", "nope")
	if res.err == nil || !strings.Contains(res.err.Error(), "stage not found: nope") {
		t.Fatalf("expected not-found error, got %v", res.err)
	}
}

func TestCheckHealthyProject(t *testing.T) {
	dir := writeProject(t, healthyProject)

	res := runCLI(t, "check", dir)
	if res.code != engine.ExitSuccess {
		t.Fatalf("exit code = %d (%v)\n%s", res.code, res.err, res.stdout)
	}
	if !strings.Contains(res.stdout, "SUCCESS: ") {
		t.Fatalf("missing SUCCESS line:\n%s", res.stdout)
	}
	if strings.Contains(res.stdout, "[fuzz]") || strings.Contains(res.stdout, "[logic]") {
		t.Fatalf("check ran a non-static stage by default:\n%s", res.stdout)
	}
}

func TestCheckReportsFindingsWithoutTouchingFiles(t *testing.T) {
	broken := "def add(a, b)\n    return a + b\n"
	dir := writeProject(t, map[string]string{
		"helpers.py": broken,
		"main.py":    "import helpers\n",
	})

	res := runCLI(t, "check", dir)
	if res.code != engine.ExitFailure {
		t.Fatalf("exit code = %d, want %d\n%s", res.code, engine.ExitFailure, res.stdout)
	}
	if !strings.Contains(res.stdout, "FAILURE: ") {
		t.Fatalf("missing FAILURE line:\n%s", res.stdout)
	}
	got, err := os.ReadFile(filepath.Join(dir, "helpers.py"))
	if err != nil {
		t.Fatalf("read helpers.py: %v", err)
	}
	if string(got) != broken {
		t.Fatalf("check modified helpers.py:\n%s", got)
	}
}

func TestValidateWithoutAPIKeyIsFatal(t *testing.T) {
	dir := writeProject(t, healthyProject)

	res := runCLI(t, "validate", dir, "--stages", "syntax")
	if res.code != engine.ExitFatal {
		t.Fatalf("exit code = %d, want %d\n%s", res.code, engine.ExitFatal, res.stdout)
	}
	if !strings.Contains(res.stdout, "no API key") {
		t.Fatalf("missing API key message:\n%s", res.stdout)
	}
}

func TestValidateProviderNone(t *testing.T) {
	dir := writeProject(t, healthyProject)

	res := runCLI(t, "validate", dir, "--provider", "none", "--stages", "syntax,cross_file")
	if res.code != engine.ExitSuccess {
		t.Fatalf("exit code = %d (%v)\n%s", res.code, res.err, res.stdout)
	}
}

func TestValidateRejectsInvalidFlags(t *testing.T) {
	dir := writeProject(t, healthyProject)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing dir", args: []string{"validate", filepath.Join(dir, "missing")}, want: "missing"},
		{name: "bad provider", args: []string{"validate", dir, "--provider", "openai"}, want: "provider"},
		{name: "bad set", args: []string{"validate", dir, "--set", "syntax.max_repairs=-1"}, want: "max_repairs"},
		{name: "entry with path", args: []string{"validate", dir, "--entry", "sub/main.py"}, want: "entry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, tt.args...)
			if res.code != engine.ExitFatal {
				t.Fatalf("exit code = %d, want %d", res.code, engine.ExitFatal)
			}
			if res.err == nil || !strings.Contains(res.err.Error(), tt.want) {
				t.Fatalf("error = %v, want it to mention %q", res.err, tt.want)
			}
		})
	}
}

func TestConfigFileLayersUnderFlags(t *testing.T) {
	dir := writeProject(t, healthyProject)
	cfgPath := filepath.Join(t.TempDir(), "codemedic.yaml")
	yml := "stages:\n  selector: syntax\noutput:\n  console_format: ndjson\n"
	if err := os.WriteFile(cfgPath, []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	res := runCLI(t, "check", dir, "--config", cfgPath, "--console-format", "json")
	if res.code != engine.ExitSuccess {
		t.Fatalf("exit code = %d (%v)\n%s", res.code, res.err, res.stdout)
	}

	var results []checks.Result
	if err := json.Unmarshal([]byte(res.stdout), &results); err != nil {
		t.Fatalf("--console-format json should win over the file: %v\n%s", err, res.stdout)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 (one per file)", len(results))
	}
	for _, r := range results {
		if r.Stage != checks.StageSyntax {
			t.Fatalf("selector from the config file not applied: got stage %s", r.Stage)
		}
	}
}

func TestSymbolsJSON(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"helpers.py": "class Board:\n    pass\n\ndef add(a, b):\n    return a + b\n\nLIMIT = 3\n",
		"main.py":    "import helpers\n",
	})

	res := runCLI(t, "symbols", dir, "--format", "json")
	if res.code != 0 {
		t.Fatalf("exit code = %d (%v)", res.code, res.err)
	}
	var table map[string]struct {
		Functions []string `json:"functions"`
		Classes   []string `json:"classes"`
		Variables []string `json:"variables"`
	}
	if err := json.Unmarshal([]byte(res.stdout), &table); err != nil {
		t.Fatalf("decode: %v\n%s", err, res.stdout)
	}
	h, ok := table["helpers"]
	if !ok {
		t.Fatalf("helpers module missing: %v", table)
	}
	if len(h.Functions) != 1 || h.Functions[0] != "add" {
		t.Fatalf("functions = %v", h.Functions)
	}
	if len(h.Classes) != 1 || h.Classes[0] != "Board" {
		t.Fatalf("classes = %v", h.Classes)
	}
	if len(h.Variables) != 1 || h.Variables[0] != "LIMIT" {
		t.Fatalf("variables = %v", h.Variables)
	}
}

func TestSymbolsReportsSkippedModules(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"helpers.py": "def add(a, b):\n    return a + b\n",
		"main.py":    "def broken(:\n",
	})

	res := runCLI(t, "symbols", dir)
	if res.code != engine.ExitQualifiedFailure {
		t.Fatalf("exit code = %d, want %d", res.code, engine.ExitQualifiedFailure)
	}
	if !strings.Contains(res.stderr, "skipped:") {
		t.Fatalf("stderr missing skipped line: %q", res.stderr)
	}
	if !strings.Contains(res.stdout, "helpers:") {
		t.Fatalf("yaml output missing helpers:\n%s", res.stdout)
	}
}

func TestSymbolsRejectsUnknownFormat(t *testing.T) {
	res := runCLI(t, "symbols", t.TempDir(), "--format", "xml")
	if res.code != engine.ExitFatal {
		t.Fatalf("exit code = %d, want %d", res.code, engine.ExitFatal)
	}
}

func TestFuzzMissingEntryIsFatal(t *testing.T) {
	dir := writeProject(t, map[string]string{"helpers.py": "X = 1\n"})

	res := runCLI(t, "fuzz", dir)
	if res.code != engine.ExitFatal {
		t.Fatalf("exit code = %d, want %d", res.code, engine.ExitFatal)
	}
	if res.err == nil || !strings.Contains(res.err.Error(), "entry file main.py not found") {
		t.Fatalf("unexpected error: %v", res.err)
	}
}

func TestExitCodeZeroIsNil(t *testing.T) {
	if err := exitCode(0, nil); err != nil {
		t.Fatalf("exitCode(0, nil) = %v", err)
	}
	err := exitCode(2, nil)
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != 2 || ee.err != nil {
		t.Fatalf("exitCode(2, nil) = %#v", err)
	}
}
