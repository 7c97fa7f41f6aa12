package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fatih/color"

	"codemedic/internal/checks"
)

// Terminal markers of the text progress stream.
const (
	MarkerSuccess = "SUCCESS"
	MarkerFailure = "FAILURE"
)

type ConsoleSink struct {
	writer          io.Writer
	format          string // "text", "json", "ndjson"
	mu              sync.Mutex
	results         []checks.Result // For JSON array output
	allowedStatuses map[string]bool
	colorize        bool
}

func NewConsoleSink(w io.Writer, format string, filterStatuses []string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}

	s := &ConsoleSink{
		writer:   w,
		format:   format,
		colorize: w == io.Writer(os.Stdout) && !color.NoColor,
	}

	if len(filterStatuses) > 0 {
		s.allowedStatuses = make(map[string]bool)
		for _, st := range filterStatuses {
			s.allowedStatuses[strings.ToUpper(st)] = true
		}
	}

	return s
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) writeLocked(v any) error {
	// Apply filtering if configured
	if len(s.allowedStatuses) > 0 {
		if r, ok := resultOf(v); ok && !s.allowedStatuses[string(r.Status)] {
			return nil
		}
	}

	switch s.format {
	case "json":
		if r, ok := resultOf(v); ok {
			s.results = append(s.results, r)
		}
		return nil
	case "ndjson":
		return encodeLine(s.writer, v)
	case "text":
		var line string
		switch t := v.(type) {
		case Event:
			line = s.textLine(t)
		case checks.Result:
			line = s.textLine(eventFromResult(t))
		}
		if line == "" {
			return nil
		}
		if _, err := fmt.Fprintln(s.writer, line); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func (s *ConsoleSink) textLine(e Event) string {
	switch e.Type {
	case EventRunStarted:
		return e.Message
	case EventStageStarted, EventStageFinished, EventRepairFinished:
		return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
	case EventRepairStarted:
		return fmt.Sprintf("[%s] repairing %s (attempt %d)", e.Stage, filepath.Base(e.File), e.Attempt)
	case EventCheckResult:
		if e.Result == nil {
			return ""
		}
		r := e.Result
		line := fmt.Sprintf("[%s] %s %s", s.paintStatus(r.Status), r.Stage, filepath.Base(r.File))
		if msg := firstLine(r.Message); msg != "" {
			line += " - " + msg
		}
		return line
	case EventRunFinished:
		marker := MarkerFailure
		if e.Verdict == VerdictSuccess {
			marker = MarkerSuccess
		}
		return fmt.Sprintf("%s: %s", s.paintMarker(marker), e.Message)
	}
	return ""
}

func (s *ConsoleSink) paintStatus(st checks.Status) string {
	if !s.colorize {
		return string(st)
	}
	switch st {
	case checks.StatusPass:
		return color.GreenString(string(st))
	case checks.StatusFail, checks.StatusError:
		return color.RedString(string(st))
	default:
		return color.YellowString(string(st))
	}
}

func (s *ConsoleSink) paintMarker(m string) string {
	if !s.colorize {
		return m
	}
	if m == MarkerSuccess {
		return color.New(color.FgGreen, color.Bold).Sprint(m)
	}
	return color.New(color.FgRed, color.Bold).Sprint(m)
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == "json" {
		return encodeResults(s.writer, s.results)
	}
	if s.format != "text" && s.format != "ndjson" {
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
	return nil
}

// firstLine keeps a console line to one line; the other sinks carry the rest.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
