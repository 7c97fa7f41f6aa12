package output

import (
	"errors"
	"fmt"
	"sync"

	"codemedic/internal/checks"
)

// Sink is a destination for run events and check results.
type Sink interface {
	Write(v any) error
	Close() error
}

// Manager fans every event out to its sinks. It is safe for concurrent use.
// Once closed it rejects writes, and further Close calls are no-ops.
type Manager struct {
	mu     sync.Mutex
	sinks  []Sink
	closed bool
}

// ErrClosed is returned by Write and AddSink after Close.
var ErrClosed = errors.New("output manager is closed")

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddSink(s Sink) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	if s == nil {
		return fmt.Errorf("sink must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.sinks = append(m.sinks, s)
	return nil
}

// Write delivers v to every sink. v must be an Event or a checks.Result;
// one failing sink does not keep the others from receiving it.
func (m *Manager) Write(v any) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	switch v.(type) {
	case Event, checks.Result:
	default:
		return fmt.Errorf("unsupported output value %T", v)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	var errs []error
	for i, s := range m.sinks {
		if err := s.Write(v); err != nil {
			errs = append(errs, fmt.Errorf("sink %d (%T): %w", i, s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors writing to sinks: %w", errors.Join(errs...))
	}
	return nil
}

// Close closes every sink once. Aggregate sinks (json, report) write their
// output here.
func (m *Manager) Close() error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for i, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %d (%T): %w", i, s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing sinks: %w", errors.Join(errs...))
	}
	return nil
}
