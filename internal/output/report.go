package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"codemedic/internal/checks"
)

// ReportSink writes a Markdown summary of a run on Close.
type ReportSink struct {
	path         string
	file         *os.File
	mu           sync.Mutex
	runID        string
	results      []checks.Result
	repairs      []repairRecord
	files        map[string]struct{}
	verdict      string
	message      string
	exitCode     int
	haveExitCode bool
}

func NewReportSink(path string) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	return &ReportSink{
		path:  path,
		file:  f,
		files: make(map[string]struct{}),
	}, nil
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := resultOf(v); ok {
		s.results = append(s.results, r)
		if r.File != "" {
			s.files[r.File] = struct{}{}
		}
		return nil
	}
	e, ok := v.(Event)
	if !ok {
		return nil
	}
	switch e.Type {
	case EventRunStarted:
		s.runID = e.RunID
	case EventRepairFinished:
		s.repairs = append(s.repairs, repairRecord{Stage: e.Stage, File: e.File, Attempt: e.Attempt, Message: e.Message})
	case EventRunFinished:
		s.verdict = e.Verdict
		s.message = e.Message
		s.exitCode = e.ExitCode
		s.haveExitCode = true
	}
	return nil
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	b.WriteString("# codemedic Validation Report\n\n")

	if s.runID != "" {
		b.WriteString(fmt.Sprintf("- **Run:** `%s`\n", s.runID))
	}
	if s.verdict != "" {
		b.WriteString(fmt.Sprintf("- **Verdict:** %s\n", s.verdict))
	}
	if s.haveExitCode {
		b.WriteString(fmt.Sprintf("- **Exit code:** %d\n", s.exitCode))
	}
	if s.message != "" {
		b.WriteString(fmt.Sprintf("- **Summary:** %s\n", oneLine(s.message, 300)))
	}
	b.WriteString(fmt.Sprintf("- **Files:** %d\n\n", len(s.files)))

	// --- Stages ---
	b.WriteString("## Stages\n\n")
	stats := computeStageStats(s.results, s.repairs)
	if len(stats) == 0 {
		b.WriteString("No checks ran.\n\n")
	} else {
		b.WriteString("| Stage | PASS | FAIL | SKIPPED | ERROR | Repairs |\n")
		b.WriteString("| --- | ---: | ---: | ---: | ---: | ---: |\n")
		for _, st := range stats {
			b.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d | %d |\n", st.Stage, st.Pass, st.Fail, st.Skipped, st.Error, st.Repairs))
		}
		b.WriteString("\n")
	}

	// --- Unresolved ---
	final := finalResults(s.results)
	b.WriteString("## Unresolved findings\n\n")
	open := unresolved(final)
	if len(open) == 0 {
		b.WriteString("None.\n\n")
	} else {
		for _, r := range open {
			b.WriteString(fmt.Sprintf("### %s `%s` (%s)\n\n", r.Stage, baseName(r.File), r.Status))
			text := r.FailureText()
			if strings.Contains(text, "\n") {
				b.WriteString("```\n" + strings.TrimRight(text, "\n") + "\n```\n\n")
			} else {
				b.WriteString(text + "\n\n")
			}
		}
	}

	// --- Repairs ---
	b.WriteString("## Repairs\n\n")
	if len(s.repairs) == 0 {
		b.WriteString("No repairs attempted.\n\n")
	} else {
		b.WriteString("| Stage | File | Attempt | Outcome |\n")
		b.WriteString("| --- | --- | ---: | --- |\n")
		for _, r := range s.repairs {
			b.WriteString(fmt.Sprintf("| %s | %s | %d | %s |\n", r.Stage, baseName(r.File), r.Attempt, oneLine(r.Message, 120)))
		}
		b.WriteString("\n")
	}

	// --- Per-file status ---
	b.WriteString("## Per-file status\n\n")
	var files []string
	for f := range s.files {
		files = append(files, f)
	}
	sort.Strings(files)
	if len(files) == 0 {
		b.WriteString("No files evaluated.\n")
	} else {
		header := "| File |"
		sep := "| --- |"
		for _, st := range stageOrder {
			header += " " + string(st) + " |"
			sep += " --- |"
		}
		b.WriteString(header + "\n" + sep + "\n")
		for _, f := range files {
			row := "| " + baseName(f) + " |"
			for _, st := range stageOrder {
				cell := "-"
				if r, ok := final[finalKey{Stage: st, File: f}]; ok {
					cell = string(r.Status)
				}
				row += " " + cell + " |"
			}
			b.WriteString(row + "\n")
		}
	}

	if _, err := s.file.WriteString(b.String()); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}
