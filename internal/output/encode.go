package output

import (
	"encoding/json"
	"io"

	"codemedic/internal/checks"
)

// encodeLine writes v as one NDJSON line. Bare results are wrapped in a
// check.result event; other values are ignored.
func encodeLine(w io.Writer, v any) error {
	var e Event
	switch t := v.(type) {
	case Event:
		e = t
	case checks.Result:
		e = eventFromResult(t)
	default:
		return nil
	}
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return err
	}
	return flushIfPossible(w)
}

// encodeResults writes the aggregate as an indented JSON array. A nil slice
// is written as [] so consumers always get an array.
func encodeResults(w io.Writer, results []checks.Result) error {
	if results == nil {
		results = []checks.Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}
	return flushIfPossible(w)
}

// flushIfPossible flushes buffered writers such as bufio.Writer so NDJSON
// consumers see each line as soon as it is written.
func flushIfPossible(w io.Writer) error {
	if f, ok := w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
