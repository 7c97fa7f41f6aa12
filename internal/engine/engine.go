package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"codemedic/internal/checks"
	"codemedic/internal/config"
	"codemedic/internal/fuzz"
	"codemedic/internal/llm"
	"codemedic/internal/logging"
	"codemedic/internal/output"
	"codemedic/internal/project"
	"codemedic/internal/repair"
	"codemedic/internal/resolver"
	"codemedic/internal/retrieval"

	_ "codemedic/internal/checks/stages"
)

func setupOutputManager(cfg *config.Config, stdout io.Writer) (*output.Manager, error) {
	outMgr := output.NewManager()

	// Console Sink
	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(output.NewConsoleSink(stdout, cfg.Output.ConsoleFormat, cfg.Output.ConsoleFilterStatus)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Emit Sinks (additional structured streams)
	for _, emit := range cfg.Output.Emit {
		es, err := output.NewEmitSink(stdout, emit)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(es); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// File Sink
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Report Sink
	if cfg.Output.Report != "" {
		rs, err := output.NewReportSink(cfg.Output.Report)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(rs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	return outMgr, nil
}

// Engine runs validation and repair over one project directory.
//
// Collaborator fields left nil are built from the config on each run: the
// fuzz harness and introspector use the configured interpreter, the
// retrieval store opens the configured SQLite database, and the repairer and
// reviewer use the configured LLM provider.
type Engine struct {
	Repairer     repair.Repairer
	Reviewer     checks.Reviewer
	Fuzzer       checks.Fuzzer
	Introspector resolver.Introspector
	Store        retrieval.Store
	Logger       *zap.Logger

	// Stdout receives the console and emit sinks; nil means os.Stdout.
	Stdout io.Writer
	// Stderr receives errors raised before the sinks exist; nil means os.Stderr.
	Stderr io.Writer
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{Logger: logger}
}

// Run performs a full validation and repair run and returns its exit code.
func (e *Engine) Run(ctx context.Context, cfg *config.Config) int {
	return e.Validate(ctx, cfg, false).ExitCode()
}

// Check runs the selected stages without repairs or LLM calls and returns
// the exit code.
func (e *Engine) Check(ctx context.Context, cfg *config.Config) int {
	return e.Validate(ctx, cfg, true).ExitCode()
}

// Validate executes the planned stages against cfg.Project.Dir. In
// reportOnly mode files are never modified and every finding is reported.
func (e *Engine) Validate(ctx context.Context, cfg *config.Config, reportOnly bool) Result {
	log := logging.OrNop(e.Logger).With(zap.String("run_id", cfg.Project.RunID))

	if cfg.Runtime.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Runtime.Timeout)
		defer cancel()
	}

	plan, err := BuildPlan(cfg, reportOnly)
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error resolving stages: %v\n", err)
		return fatalResult(cfg.Project.RunID, err.Error())
	}

	outMgr, err := setupOutputManager(cfg, e.stdout())
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error creating output sinks: %v\n", err)
		return fatalResult(cfg.Project.RunID, err.Error())
	}
	defer func() {
		if err := outMgr.Close(); err != nil {
			fmt.Fprintf(e.stderr(), "Error closing output sinks: %v\n", err)
		}
	}()

	fatal := func(msg string) Result {
		res := fatalResult(cfg.Project.RunID, msg)
		log.Error("run could not start", zap.String("reason", msg))
		_ = outMgr.Write(output.Event{Type: output.EventRunFinished, RunID: res.RunID, Verdict: res.Verdict, Message: msg, ExitCode: res.ExitCode()})
		return res
	}

	files, err := project.List(cfg.Project.Dir)
	if err != nil {
		return fatal(err.Error())
	}
	if len(files) == 0 {
		return fatal(fmt.Sprintf("no Python files in %s", cfg.Project.Dir))
	}
	entry, hasEntry := files.Find(cfg.Project.Entry)
	if !hasEntry && plan.Has(checks.StageFuzz) {
		return fatal(fmt.Sprintf("entry file %s not found in %s", cfg.Project.Entry, cfg.Project.Dir))
	}

	collab, err := e.collaborators(ctx, cfg, reportOnly, log)
	if err != nil {
		return fatal(err.Error())
	}
	defer collab.close(log)

	symbolResolver, err := resolver.New(collab.intro, resolver.DefaultCacheSize, resolver.WithLogger(log))
	if err != nil {
		return fatal(fmt.Sprintf("external symbol cache: %v", err))
	}

	env := &checks.Env{
		Dir:          cfg.Project.Dir,
		RunID:        cfg.Project.RunID,
		Files:        files,
		Entry:        entry,
		Resolver:     symbolResolver,
		Fuzzer:       collab.fuzzer,
		FuzzDuration: cfg.Fuzz.Duration,
		Reviewer:     collab.reviewer,
		Logger:       log,
	}

	var action *repair.Action
	if collab.repairer != nil {
		action = &repair.Action{
			Repairer: collab.repairer,
			Store:    collab.store,
			RunID:    cfg.Project.RunID,
			K:        cfg.Repair.ContextK,
			Logger:   log,
		}
		if err := action.IndexProject(ctx, files); err != nil {
			log.Warn("seeding retrieval index failed", zap.Error(err))
		}
	}

	_ = outMgr.Write(output.Event{
		Type:    output.EventRunStarted,
		RunID:   cfg.Project.RunID,
		Message: fmt.Sprintf("Validating %d files in %s (run %s)", len(files), cfg.Project.Dir, cfg.Project.RunID),
		Files:   len(files),
		Stages:  len(plan.Stages),
	})

	r := &runner{
		plan:       plan,
		env:        env,
		action:     action,
		out:        outMgr,
		log:        log,
		reportOnly: reportOnly,
		res:        Result{RunID: cfg.Project.RunID},
	}
	res := r.run(ctx)

	log.Info("run finished", zap.String("verdict", res.Verdict), zap.Int("repair_calls", res.RepairCalls))
	_ = outMgr.Write(output.Event{Type: output.EventRunFinished, RunID: res.RunID, Verdict: res.Verdict, Message: res.Message, ExitCode: res.ExitCode()})
	return res
}

type collaborators struct {
	repairer repair.Repairer
	reviewer checks.Reviewer
	fuzzer   checks.Fuzzer
	intro    resolver.Introspector
	store    retrieval.Store
	closers  []io.Closer
}

func (c *collaborators) close(log *zap.Logger) {
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			log.Warn("closing collaborator failed", zap.Error(err))
		}
	}
}

// collaborators fills in whatever the Engine was not given. Report-only runs
// never build LLM clients or open the retrieval store.
func (e *Engine) collaborators(ctx context.Context, cfg *config.Config, reportOnly bool, log *zap.Logger) (*collaborators, error) {
	c := &collaborators{
		repairer: e.Repairer,
		reviewer: e.Reviewer,
		fuzzer:   e.Fuzzer,
		intro:    e.Introspector,
		store:    e.Store,
	}
	if c.fuzzer == nil {
		c.fuzzer = &fuzz.Harness{Python: cfg.Fuzz.Python, Env: cfg.Fuzz.Env, Logger: log}
	}
	if c.intro == nil {
		c.intro = &resolver.PythonIntrospector{Python: cfg.Fuzz.Python, Logger: log}
	}
	if reportOnly {
		c.repairer, c.reviewer, c.store = nil, nil, nil
		return c, nil
	}

	if cfg.Repair.Provider == config.ProviderGemini && (c.repairer == nil || c.reviewer == nil) {
		if cfg.Repair.APIKey == "" {
			return nil, errors.New("no API key for the gemini provider: set " + config.EnvGeminiAPIKey + " or use --provider none")
		}
		gen, err := llm.NewGemini(ctx, llm.Options{
			APIKey:      cfg.Repair.APIKey,
			Model:       cfg.Repair.Model,
			Temperature: cfg.Repair.Temperature,
			Logger:      log,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		log.Debug("llm provider ready", zap.String("provider", gen.Name()))
		if c.repairer == nil {
			c.repairer = &llm.Repairer{Gen: gen}
		}
		if c.reviewer == nil {
			c.reviewer = &llm.Reviewer{Gen: gen}
		}
	}

	if c.store == nil && c.repairer != nil {
		st, err := retrieval.OpenSQLite(cfg.Retrieval.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open retrieval store: %w", err)
		}
		c.store = st
		c.closers = append(c.closers, st)
	}
	return c, nil
}

func (e *Engine) stdout() io.Writer {
	if e.Stdout == nil {
		return os.Stdout
	}
	return e.Stdout
}

func (e *Engine) stderr() io.Writer {
	if e.Stderr == nil {
		return os.Stderr
	}
	return e.Stderr
}
