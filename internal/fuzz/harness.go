// Package fuzz runs a generated program with randomized input injected into
// its per-frame update hook and classifies how the program ended.
package fuzz

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"codemedic/internal/logging"
	"codemedic/internal/project"
)

// Kind classifies a fuzz outcome.
type Kind string

const (
	// KindSurvived: the program was still running when the budget elapsed.
	KindSurvived Kind = "survived"
	// KindExited: the program exited with status 0.
	KindExited Kind = "exited"
	// KindCrashed: the program exited with a non-zero status.
	KindCrashed Kind = "crashed"
	// KindHarnessError: the harness itself failed (I/O, spawn).
	KindHarnessError Kind = "harness_error"
)

// Outcome is the result of one fuzz run.
type Outcome struct {
	Passed bool   `json:"passed"`
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail,omitempty"`
	// Hooked reports whether the snippet was injected; false means the
	// program ran unmodified.
	Hooked bool `json:"hooked"`
	// CustomSnippet reports whether fuzz_logic.py was used.
	CustomSnippet bool `json:"custom_snippet"`
}

// DefaultEnv suppresses display and audio in the child process.
var DefaultEnv = []string{"SDL_AUDIODRIVER=dummy", "SDL_VIDEODRIVER=dummy"}

const killGrace = 2 * time.Second

var tracebackFile = regexp.MustCompile(`File "([^"]+)"`)

// Harness runs instrumented programs. The zero value uses python3 and
// DefaultEnv.
type Harness struct {
	Python string
	// Env entries (KEY=VALUE) appended to the child environment; nil means
	// DefaultEnv.
	Env    []string
	Logger *zap.Logger
}

// Run instruments entry, runs the instrumented copy for at most budget and
// classifies the result. The instrumented copy is always removed. Calls must
// be serialized per project directory since the copy's path is fixed.
func (h *Harness) Run(ctx context.Context, entry string, budget time.Duration) Outcome {
	log := h.logger().With(zap.String("entry", entry))

	src, err := os.ReadFile(entry)
	if err != nil {
		return harnessError("read entry file: %v", err)
	}
	snippet, custom := LoadSnippet(entry)
	instrumented, hooked := Inject(ctx, src, Sanitize(snippet))
	if !hooked {
		log.Info("no update hook found; running program unmodified")
	}

	temp := project.TempPath(entry)
	if err := os.WriteFile(temp, instrumented, 0o644); err != nil {
		_ = os.Remove(temp)
		return harnessError("write instrumented copy: %v", err)
	}
	defer func() {
		if err := os.Remove(temp); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("remove instrumented copy", zap.String("path", temp), zap.Error(err))
		}
	}()

	out := h.exec(ctx, entry, temp, budget, log)
	out.Hooked = hooked
	out.CustomSnippet = custom
	return out
}

func (h *Harness) exec(ctx context.Context, entry, temp string, budget time.Duration, log *zap.Logger) Outcome {
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	cmd := exec.CommandContext(runCtx, h.python(), temp)
	cmd.Dir = filepath.Dir(entry)
	cmd.Env = append(os.Environ(), h.env()...)
	cmd.WaitDelay = killGrace
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return harnessError("start %s: %v", h.python(), err)
	}
	err := cmd.Wait()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return harnessError("fuzz run cancelled: %v", ctx.Err())
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		log.Debug("program survived", zap.Duration("budget", budget))
		return Outcome{Passed: true, Kind: KindSurvived, Detail: "program survived randomized input"}
	}
	if err == nil {
		log.Debug("program exited cleanly", zap.Duration("elapsed", elapsed))
		return Outcome{Passed: true, Kind: KindExited, Detail: "program exited cleanly"}
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return harnessError("wait for %s: %v", h.python(), err)
	}
	detail := crashDetail(stderr.String(), entry, temp)
	if detail == "" {
		detail = exitErr.Error()
	}
	log.Info("program crashed", zap.Int("exit_code", exitErr.ExitCode()), zap.Duration("elapsed", elapsed))
	return Outcome{Passed: false, Kind: KindCrashed, Detail: detail}
}

// crashDetail keeps stderr from the first traceback marker onward and maps
// the instrumented copy's name back to the entry file's.
func crashDetail(stderr, entry, temp string) string {
	if i := strings.Index(stderr, "Traceback"); i >= 0 {
		stderr = stderr[i:]
	}
	stderr = strings.ReplaceAll(stderr, temp, entry)
	stderr = strings.ReplaceAll(stderr, filepath.Base(temp), filepath.Base(entry))
	return strings.TrimSpace(stderr)
}

// ExtractFiles returns the distinct file paths named by `File "..."` frames
// in a traceback, in order of appearance, with instrumented copies mapped
// back to their originals.
func ExtractFiles(detail string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range tracebackFile.FindAllStringSubmatch(detail, -1) {
		p := m[1]
		if project.IsTempFile(p) {
			p = filepath.Join(filepath.Dir(p), project.OriginalName(filepath.Base(p)))
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func harnessError(format string, args ...any) Outcome {
	return Outcome{Passed: false, Kind: KindHarnessError, Detail: fmt.Sprintf("fuzz harness failure: "+format, args...)}
}

func (h *Harness) python() string {
	if h.Python == "" {
		return "python3"
	}
	return h.Python
}

func (h *Harness) env() []string {
	if h.Env == nil {
		return DefaultEnv
	}
	return h.Env
}

func (h *Harness) logger() *zap.Logger {
	return logging.OrNop(h.Logger)
}
