package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"codemedic/internal/logging"
	"codemedic/internal/pyast"
)

const defaultIntrospectTimeout = 20 * time.Second

// probeScript locates a module without importing it (parents of dotted names
// are imported by find_spec) and reports where its source or stub lives.
const probeScript = `
import importlib.util, json, os, pkgutil, sys
name = sys.argv[1]
out = {"found": False, "origin": None, "stub": None, "package": False, "submodules": []}
try:
    spec = importlib.util.find_spec(name)
except Exception:
    spec = None
if spec is not None:
    out["found"] = True
    if spec.has_location:
        out["origin"] = spec.origin
    locs = spec.submodule_search_locations
    if locs is not None:
        out["package"] = True
        out["submodules"] = sorted({m.name for m in pkgutil.iter_modules(list(locs))})
    if spec.origin and spec.origin.endswith(".py"):
        stub = spec.origin[:-3] + ".pyi"
        if os.path.exists(stub):
            out["stub"] = stub
print(json.dumps(out))
`

// dirScript imports the module in the child and dumps dir(module).
const dirScript = `
import importlib, json, sys
mod = importlib.import_module(sys.argv[1])
print(json.dumps(sorted(dir(mod))))
`

var moduleDunders = []string{
	"__name__", "__doc__", "__file__", "__spec__", "__loader__",
	"__package__", "__builtins__", "__cached__", "__dict__",
}

type probeResult struct {
	Found      bool     `json:"found"`
	Origin     string   `json:"origin"`
	Stub       string   `json:"stub"`
	Package    bool     `json:"package"`
	Submodules []string `json:"submodules"`
}

// PythonIntrospector introspects modules with an external interpreter. It
// prefers reading the module's stub or source statically and imports the
// module in a child process only when that is not conclusive.
type PythonIntrospector struct {
	Python  string
	Timeout time.Duration
	// Env entries (KEY=VALUE) appended to the child environment.
	Env    []string
	Logger *zap.Logger
}

// Introspect implements Introspector. A statically read surface is returned
// incomplete; Import confirms members it lacks.
func (p *PythonIntrospector) Introspect(ctx context.Context, module string) (Surface, error) {
	probe, err := p.probe(ctx, module)
	if err != nil {
		return Surface{}, fmt.Errorf("locate %s: %w", module, err)
	}
	if !probe.Found {
		return Surface{}, fmt.Errorf("module %s not found", module)
	}

	if names, ok := p.static(ctx, probe); ok {
		p.logger().Debug("introspected statically", zap.String("module", module), zap.Int("members", len(names)))
		return Surface{Names: names}, nil
	}

	names, err := p.Import(ctx, module)
	if err != nil {
		return Surface{}, err
	}
	return Surface{Names: names, Complete: true}, nil
}

// Import implements Introspector by importing module in a child interpreter
// and listing dir(module).
func (p *PythonIntrospector) Import(ctx context.Context, module string) ([]string, error) {
	out, err := p.run(ctx, dirScript, module)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", module, err)
	}
	var names []string
	if err := json.Unmarshal(lastLine(out), &names); err != nil {
		return nil, fmt.Errorf("decode members of %s: %w", module, err)
	}
	p.logger().Debug("introspected by import", zap.String("module", module), zap.Int("members", len(names)))
	return names, nil
}

func (p *PythonIntrospector) probe(ctx context.Context, module string) (probeResult, error) {
	var res probeResult
	out, err := p.run(ctx, probeScript, module)
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(lastLine(out), &res); err != nil {
		return res, fmt.Errorf("decode probe output: %w", err)
	}
	return res, nil
}

// static parses the stub or pure-Python source named by the probe. It gives
// up on extension modules, built-ins, star re-exports and module __getattr__;
// a parsed surface is still only a lower bound.
func (p *PythonIntrospector) static(ctx context.Context, probe probeResult) ([]string, bool) {
	path := probe.Stub
	if path == "" && strings.HasSuffix(probe.Origin, ".py") {
		path = probe.Origin
	}
	if path == "" {
		return nil, false
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	f, err := pyast.Parse(ctx, src)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	if f.SyntaxError() != nil {
		return nil, false
	}
	names, dynamic := f.ExportedNames()
	if dynamic {
		return nil, false
	}

	names = append(names, probe.Submodules...)
	names = append(names, moduleDunders...)
	if probe.Package {
		names = append(names, "__path__")
	}
	return names, true
}

func (p *PythonIntrospector) run(ctx context.Context, script, module string) ([]byte, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultIntrospectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	python := p.Python
	if python == "" {
		python = "python3"
	}
	cmd := exec.CommandContext(ctx, python, "-c", script, module)
	cmd.Env = append(os.Environ(), p.Env...)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %s", timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if i := strings.LastIndex(msg, "\n"); i >= 0 {
			msg = msg[i+1:]
		}
		if msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

func (p *PythonIntrospector) logger() *zap.Logger {
	return logging.OrNop(p.Logger)
}

// lastLine returns the final non-empty line; imported modules may print.
func lastLine(out []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	return lines[len(lines)-1]
}
