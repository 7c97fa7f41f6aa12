package repair

import "fmt"

// Op names the repair step that failed.
type Op string

const (
	OpRead     Op = "read"
	OpRepairer Op = "repairer"
	OpExtract  Op = "extract"
	OpWrite    Op = "write"
)

// Error is a failed repair attempt. It is returned as a value; the caller
// decides whether the run continues.
type Error struct {
	Op   Op
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("repair %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
