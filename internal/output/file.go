package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSink persists the run to a file; the format follows the extension
// unless given explicitly.
type FileSink struct {
	path string
	file *os.File
	s    stream
}

// FormatForPath infers a file sink format from the extension.
func FormatForPath(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return "json", nil
	case ".ndjson", ".jsonl":
		return "ndjson", nil
	default:
		return "", fmt.Errorf("cannot infer output format from file extension %q", ext)
	}
}

func NewFileSink(path string, format string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("output path required")
	}
	if format == "" {
		var err error
		if format, err = FormatForPath(path); err != nil {
			return nil, err
		}
	}
	if !validStreamFormat(format) {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return &FileSink{path: path, file: f, s: stream{w: f, format: format}}, nil
}

func (fs *FileSink) Write(v any) error { return fs.s.write(v) }

// Close writes the json aggregate, if any, and closes the file.
func (fs *FileSink) Close() error {
	err := fs.s.finish()
	if closeErr := fs.file.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("close %s: %w", fs.path, closeErr)
	}
	return err
}
