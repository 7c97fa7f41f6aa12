package stages

import (
	"context"
	"path/filepath"

	"codemedic/internal/checks"
	"codemedic/internal/fuzz"
	"codemedic/internal/project"
	"codemedic/internal/repair"
)

// DefaultFuzzRetries is the default number of fuzz repair rounds.
const DefaultFuzzRetries = 2

type FuzzCheck struct{}

func (c *FuzzCheck) ID() string { return string(checks.StageFuzz) }

func (c *FuzzCheck) Title() string { return "Entry Program Survives Random Input" }

func (c *FuzzCheck) Description() string {
	return "Runs the entry file with random pointer and key input injected into its on_update hook. Surviving the time budget or exiting cleanly passes. On a crash the files named in the traceback get a logic repair and the program is run again, for a bounded number of rounds; running out of rounds ends the run with a warning."
}

func (c *FuzzCheck) Stage() checks.Stage { return checks.StageFuzz }
func (c *FuzzCheck) Order() int          { return 30 }
func (c *FuzzCheck) Scope() checks.Scope { return checks.ScopeEntry }
func (c *FuzzCheck) Policy() checks.Policy {
	return checks.Policy{FixType: repair.FixLogic, MaxRepairs: DefaultFuzzRetries, Reverify: true, OnExhausted: checks.Warn}
}

func (c *FuzzCheck) Evaluate(ctx context.Context, env *checks.Env, file project.File) (checks.Result, error) {
	if env.Fuzzer == nil {
		return checks.SkippedResult(c.Stage(), file.Path, "no fuzz harness configured"), nil
	}
	out := env.Fuzzer.Run(ctx, file.Path, env.FuzzDuration)
	meta := map[string]any{"kind": string(out.Kind), "hooked": out.Hooked, "custom_snippet": out.CustomSnippet}

	switch {
	case out.Passed && out.Kind == fuzz.KindSurvived:
		return checks.PassResult(c.Stage(), file.Path, "survived randomized input").WithMetadata(meta), nil
	case out.Passed:
		return checks.PassResult(c.Stage(), file.Path, "exited cleanly").WithMetadata(meta), nil
	case out.Kind == fuzz.KindHarnessError:
		return checks.ErrorResult(c.Stage(), file.Path, out.Detail).WithMetadata(meta), nil
	}

	res := checks.FailResult(c.Stage(), file.Path, "Runtime crash: "+out.Detail)
	res.Findings[0].OffendingFiles = offendingFiles(env.Files, file, out.Detail)
	return res.WithMetadata(meta), nil
}

// offendingFiles maps traceback frames to project files by base name,
// falling back to the entry file.
func offendingFiles(files project.FileSet, entry project.File, detail string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, p := range fuzz.ExtractFiles(detail) {
		f, ok := files.Find(filepath.Base(p))
		if !ok {
			continue
		}
		if _, dup := seen[f.Path]; dup {
			continue
		}
		seen[f.Path] = struct{}{}
		out = append(out, f.Path)
	}
	if len(out) == 0 {
		out = []string{entry.Path}
	}
	return out
}

func init() {
	checks.Register(&FuzzCheck{})
}
