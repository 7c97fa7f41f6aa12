package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names accepted by Repair.Provider.
const (
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// Environment variables read by ApplyEnv.
const (
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvGoogleAPIKey = "GOOGLE_API_KEY"
	EnvModel        = "CODEMEDIC_MODEL"
	EnvPython       = "CODEMEDIC_PYTHON"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields that affect run
	// behavior, keep these in sync:
	// - CLI flags in internal/cli/validate.go
	// - flag names in internal/flags
	Project   Project   `yaml:"project"`
	Stages    Stages    `yaml:"stages"`
	Fuzz      Fuzz      `yaml:"fuzz"`
	Repair    Repair    `yaml:"repair"`
	Retrieval Retrieval `yaml:"retrieval"`
	Output    Output    `yaml:"output"`
	Runtime   Runtime   `yaml:"runtime"`
}

type Project struct {
	// Dir is the directory of generated Python files to validate (positional argument).
	Dir string `yaml:"dir"`

	// RunID partitions retrieval snippets (see --run-id).
	// Defaults to the base name of Dir.
	RunID string `yaml:"run_id"`

	// NewRunID replaces the run id with a fresh UUID (see --new-run-id).
	NewRunID bool `yaml:"-"`

	// Entry is the file name of the program entry point inside Dir (see --entry).
	Entry string `yaml:"entry"`
}

type Stages struct {
	// Selector selects which stages run, as a comma-separated list (see --stages).
	// Empty means all stages.
	Selector string `yaml:"selector"`

	// Set provides per-stage option overrides.
	// Entries are of the form stage.option=value (repeatable; comma-separated accepted; see --set).
	// Known options: max_repairs (integer >= 0), on_exhausted (abort, warn).
	Set []string `yaml:"set"`
}

type Fuzz struct {
	// Duration is the wall-clock budget of one harness run (see --fuzz-duration).
	// A program still running at the deadline survived.
	Duration time.Duration `yaml:"duration"`

	// Retries bounds the crash repair rounds of the fuzz stage (see --fuzz-retries).
	Retries int `yaml:"retries"`

	// Python is the interpreter used for the harness and for introspection (see --python).
	Python string `yaml:"python"`

	// Env entries (KEY=VALUE) passed to the harness child process.
	// Empty means the harness default (SDL dummy drivers).
	Env []string `yaml:"env"`
}

type Repair struct {
	// Provider selects the repair and review collaborator (see --provider).
	// Allowed values: gemini, none. With none, failures are reported without repairs
	// and the logic stage is skipped.
	Provider string `yaml:"provider"`

	// Model is the provider model name (see --model).
	Model string `yaml:"model"`

	// APIKey is read from the environment only.
	APIKey string `yaml:"-"`

	// ContextK is the number of retrieval snippets attached to a repair request.
	ContextK int `yaml:"context_k"`

	// Temperature of generation requests. Must be within [0, 2].
	Temperature float32 `yaml:"temperature"`
}

type Retrieval struct {
	// DBPath is the SQLite snippet store (see --db). Empty means in-memory.
	DBPath string `yaml:"db_path"`
}

type Output struct {
	// ConsoleFormat controls the human-facing console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string `yaml:"console_format"`

	// ConsoleFilterStatus filters console output by result status (see --console-filter-status).
	// Allowed values: PASS, FAIL, SKIPPED, ERROR.
	ConsoleFilterStatus []string `yaml:"console_filter_status"`

	// Report writes a Markdown report to this path (see --report).
	Report string `yaml:"report"`

	// Out writes structured output to this path (see --out).
	Out string `yaml:"out"`

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out file extension.
	OutFormat string `yaml:"out_format"`

	// Emit writes an additional structured event stream to stdout (see --emit).
	// Allowed values: json, ndjson.
	Emit []string `yaml:"emit"`

	// NoConsole suppresses the console sink (see --no-console).
	// Use with --emit/--out/--report for machine-readable output.
	NoConsole bool `yaml:"no_console"`
}

type Runtime struct {
	// Timeout bounds the whole run (see --timeout). Must be > 0.
	Timeout time.Duration `yaml:"timeout"`

	// Verbose switches the diagnostic logger to the development encoder (see --verbose).
	Verbose bool `yaml:"verbose"`

	// LogLevel of the diagnostic logger (see --log-level).
	// Allowed values: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

func New() *Config {
	return &Config{
		Project: Project{
			Entry: "main.py",
		},
		Fuzz: Fuzz{
			Duration: 5 * time.Second,
			Retries:  2,
			Python:   "python3",
		},
		Repair: Repair{
			Provider:    ProviderGemini,
			Model:       "gemini-2.5-flash",
			ContextK:    3,
			Temperature: 0.2,
		},
		Output: Output{
			ConsoleFormat: "text",
		},
		Runtime: Runtime{
			Timeout:  30 * time.Minute,
			LogLevel: "warn",
		},
	}
}

// LoadFile reads a YAML config on top of the defaults. Fields absent from
// the file keep their default values.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads .env files from the working directory and the project
// directory into the process environment. Variables already set win, and
// missing files are ignored.
func LoadDotEnv(dirs ...string) error {
	seen := make(map[string]struct{})
	for _, dir := range append([]string{"."}, dirs...) {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, ".env")
		abs, err := filepath.Abs(path)
		if err == nil {
			path = abs
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv copies provider credentials and overrides from the environment.
// getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if c.Repair.APIKey == "" {
		c.Repair.APIKey = getenv(EnvGeminiAPIKey)
	}
	if c.Repair.APIKey == "" {
		c.Repair.APIKey = getenv(EnvGoogleAPIKey)
	}
	if v := strings.TrimSpace(getenv(EnvModel)); v != "" {
		c.Repair.Model = v
	}
	if v := strings.TrimSpace(getenv(EnvPython)); v != "" {
		c.Fuzz.Python = v
	}
}

func (c *Config) Validate() error {
	// Normalize comma-delimited list inputs.
	c.Stages.Set = splitCommaList(c.Stages.Set)
	c.Output.ConsoleFilterStatus = splitCommaList(c.Output.ConsoleFilterStatus)

	// Project validation
	if strings.TrimSpace(c.Project.Dir) == "" {
		return errors.New("project directory must be provided")
	}
	dir, err := filepath.Abs(c.Project.Dir)
	if err != nil {
		return fmt.Errorf("invalid project directory: %w", err)
	}
	st, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("project directory: %w", err)
	}
	if !st.IsDir() {
		return fmt.Errorf("project directory %s is not a directory", dir)
	}
	c.Project.Dir = dir

	c.Project.Entry = strings.TrimSpace(c.Project.Entry)
	if c.Project.Entry == "" {
		return errors.New("--entry must not be empty")
	}
	if filepath.Base(c.Project.Entry) != c.Project.Entry || !strings.HasSuffix(c.Project.Entry, ".py") {
		return fmt.Errorf("--entry must be a .py file name inside the project directory, got %q", c.Project.Entry)
	}

	if c.Project.NewRunID {
		c.Project.RunID = uuid.NewString()
	}
	c.Project.RunID = strings.TrimSpace(c.Project.RunID)
	if c.Project.RunID == "" {
		c.Project.RunID = filepath.Base(dir)
	}

	// Stage option syntax validation (stage.option=value)
	if len(c.Stages.Set) > 0 {
		if _, err := ParseStageOptions(c.Stages.Set); err != nil {
			return err
		}
	}

	// Fuzz validation
	if c.Fuzz.Duration <= 0 {
		return errors.New("--fuzz-duration must be > 0")
	}
	if c.Fuzz.Retries < 0 {
		return errors.New("--fuzz-retries must be >= 0")
	}
	c.Fuzz.Python = strings.TrimSpace(c.Fuzz.Python)
	if c.Fuzz.Python == "" {
		return errors.New("--python must not be empty")
	}
	for _, kv := range c.Fuzz.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || strings.TrimSpace(k) == "" {
			return fmt.Errorf("invalid fuzz env entry %q: expected KEY=VALUE", kv)
		}
	}

	// Repair validation
	c.Repair.Provider = normalizeEnumValue(c.Repair.Provider)
	if c.Repair.Provider != ProviderGemini && c.Repair.Provider != ProviderNone {
		return fmt.Errorf("unsupported --provider: %q (must be one of: gemini, none)", c.Repair.Provider)
	}
	if c.Repair.Provider == ProviderGemini && strings.TrimSpace(c.Repair.Model) == "" {
		return errors.New("--model must not be empty")
	}
	if c.Repair.ContextK < 0 {
		return errors.New("repair context_k must be >= 0")
	}
	if c.Repair.Temperature < 0 || c.Repair.Temperature > 2 {
		return errors.New("repair temperature must be within [0, 2]")
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, json, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	for i, st := range c.Output.ConsoleFilterStatus {
		v := strings.ToUpper(strings.TrimSpace(st))
		if v != "PASS" && v != "FAIL" && v != "SKIPPED" && v != "ERROR" {
			return fmt.Errorf("unsupported --console-filter-status: %s (must be one of: PASS, FAIL, SKIPPED, ERROR)", st)
		}
		c.Output.ConsoleFilterStatus[i] = v
	}

	for _, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v == "" {
			return errors.New("--emit must be one of: json, ndjson")
		}
		if v != "json" && v != "ndjson" {
			return fmt.Errorf("unsupported --emit value: %s (must be one of: json, ndjson)", v)
		}
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	// Runtime validation
	if c.Runtime.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}
	c.Runtime.LogLevel = normalizeEnumValue(c.Runtime.LogLevel)
	if c.Runtime.LogLevel == "" {
		c.Runtime.LogLevel = "warn"
	}
	switch c.Runtime.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported --log-level: %s (must be one of: debug, info, warn, error)", c.Runtime.LogLevel)
	}

	return nil
}

// StageOption is a parsed override for one stage's repair policy.
type StageOption struct {
	MaxRepairs  *int
	OnExhausted string
}

// ParseStageOptions parses values of the form "stage.option=value".
//
// Notes:
// - Entries may be provided via repeated flags and/or comma-delimited lists.
// - Stage ids are not validated here; the engine rejects unknown stages.
func ParseStageOptions(values []string) (map[string]StageOption, error) {
	out := make(map[string]StageOption)
	for _, raw := range splitCommaList(values) {
		left, value, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set entry %q: expected stage.option=value", raw)
		}
		value = strings.TrimSpace(value)
		stage, opt, ok := strings.Cut(strings.TrimSpace(left), ".")
		if !ok {
			return nil, fmt.Errorf("invalid --set entry %q: expected stage.option=value", raw)
		}
		stage = strings.TrimSpace(stage)
		opt = strings.TrimSpace(opt)
		if stage == "" || opt == "" {
			return nil, fmt.Errorf("invalid --set entry %q: expected non-empty stage and option", raw)
		}

		o := out[stage]
		switch opt {
		case "max_repairs":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid --set entry %q: max_repairs must be an integer >= 0", raw)
			}
			o.MaxRepairs = &n
		case "on_exhausted":
			v := normalizeEnumValue(value)
			if v != "abort" && v != "warn" {
				return nil, fmt.Errorf("invalid --set entry %q: on_exhausted must be abort or warn", raw)
			}
			o.OnExhausted = v
		default:
			return nil, fmt.Errorf("invalid --set entry %q: unknown option %q", raw, opt)
		}
		out[stage] = o
	}
	return out, nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
