package checks

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"codemedic/internal/project"
)

type dummyCheck struct {
	id    string
	order int
}

func (c *dummyCheck) ID() string          { return c.id }
func (c *dummyCheck) Title() string       { return "Dummy Check" }
func (c *dummyCheck) Description() string { return "Does nothing" }
func (c *dummyCheck) Stage() Stage        { return Stage(c.id) }
func (c *dummyCheck) Order() int          { return c.order }
func (c *dummyCheck) Scope() Scope        { return ScopeFiles }
func (c *dummyCheck) Policy() Policy      { return Policy{} }
func (c *dummyCheck) Evaluate(ctx context.Context, env *Env, file project.File) (Result, error) {
	return PassResult(c.Stage(), file.Path, ""), nil
}

func TestRegistry(t *testing.T) {
	mu.Lock()
	registry = make(map[string]Check)
	mu.Unlock()

	Register(&dummyCheck{id: "late", order: 20})
	Register(&dummyCheck{id: "early", order: 10})

	all := List()
	if len(all) != 2 || all[0].ID() != "early" || all[1].ID() != "late" {
		t.Fatalf("expected run order [early late], got %v", all)
	}

	selected, err := Resolve("late, early")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(selected) != 2 || selected[0].ID() != "early" {
		t.Fatalf("Resolve should keep run order, got %v", selected)
	}

	selected, err = Resolve("")
	if err != nil || len(selected) != 2 {
		t.Fatalf("Resolve all: %v %v", selected, err)
	}

	if _, err := Resolve("unknown"); err == nil {
		t.Fatalf("expected error for unknown check")
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	Register(&dummyCheck{id: "early"})
}

func TestResult_OffendingAndFailureText(t *testing.T) {
	res := FailResult(StageCrossFile, "/p/main.py", "2 problems", "first", "second")
	if got := res.Offending(); len(got) != 1 || got[0] != "/p/main.py" {
		t.Fatalf("Offending defaulted to %v", got)
	}
	if got := res.FailureText(); got != "first\nsecond" {
		t.Fatalf("FailureText = %q", got)
	}

	res = FailResult(StageFuzz, "/p/main.py", "Runtime crash")
	res.Findings[0].OffendingFiles = []string{"/p/player.py", "/p/main.py", "/p/player.py"}
	if got := res.Offending(); len(got) != 2 || got[0] != "/p/player.py" {
		t.Fatalf("Offending = %v", got)
	}
	if got := res.FailureText(); got != "Runtime crash" {
		t.Fatalf("FailureText = %q", got)
	}

	if got := ErrorResult(StageFuzz, "/p/main.py", "harness").FailureText(); got != "harness" {
		t.Fatalf("FailureText for error = %q", got)
	}
}

func TestResultSerialization(t *testing.T) {
	r := PassResult(StageSyntax, "main.py", "syntax OK")
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	expected := `{"stage":"syntax","file":"main.py","status":"PASS","message":"syntax OK"}`
	if string(data) != expected {
		t.Fatalf("expected %s, got %s", expected, data)
	}
}

func TestEnv_TableRebuiltAfterInvalidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.py")
	if err := os.WriteFile(path, []byte("A = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	files, err := project.List(dir)
	if err != nil {
		t.Fatal(err)
	}
	env := &Env{Dir: dir, Files: files}

	if !env.Table(context.Background())["config"].Has("A") {
		t.Fatalf("expected A in first table")
	}
	if err := os.WriteFile(path, []byte("B = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !env.Table(context.Background())["config"].Has("A") {
		t.Fatalf("table should be cached until invalidated")
	}
	env.Invalidate()
	if syms := env.Table(context.Background())["config"]; syms.Has("A") || !syms.Has("B") {
		t.Fatalf("expected rebuilt table with B only")
	}
}
