package output

import (
	"fmt"
	"io"
	"sync"

	"codemedic/internal/checks"
)

// stream is the machine-readable encoding shared by EmitSink and FileSink:
// ndjson streams every event as it happens, json aggregates check results
// into one array written on close.
type stream struct {
	mu      sync.Mutex
	w       io.Writer
	format  string
	results []checks.Result
}

func validStreamFormat(format string) bool {
	return format == "json" || format == "ndjson"
}

func (s *stream) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format == "ndjson" {
		return encodeLine(s.w, v)
	}
	if r, ok := resultOf(v); ok {
		s.results = append(s.results, r)
	}
	return nil
}

func (s *stream) finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format != "json" {
		return nil
	}
	return encodeResults(s.w, s.results)
}

// EmitSink writes an additional machine-readable stream to stdout next to
// the console, for agents driving codemedic.
type EmitSink struct {
	s stream
}

func NewEmitSink(w io.Writer, format string) (*EmitSink, error) {
	if w == nil {
		return nil, fmt.Errorf("emit sink writer must not be nil")
	}
	if !validStreamFormat(format) {
		return nil, fmt.Errorf("unsupported emit format: %s", format)
	}
	return &EmitSink{s: stream{w: w, format: format}}, nil
}

func (e *EmitSink) Write(v any) error { return e.s.write(v) }

func (e *EmitSink) Close() error { return e.s.finish() }
