package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// SourceExt is the only file extension that belongs to a project.
	SourceExt = ".py"

	// TempSuffix marks instrumented copies written by the fuzz harness.
	TempSuffix = "_fuzz_temp.py"

	// SnippetFile is the optional project-provided fuzz logic snippet.
	SnippetFile = "fuzz_logic.py"
)

// File is one module of a generated project.
type File struct {
	Path   string `json:"path" yaml:"path"`
	Module string `json:"module" yaml:"module"`
}

// Name returns the base file name (e.g. "main.py").
func (f File) Name() string {
	return filepath.Base(f.Path)
}

// FileSet is the ordered list of project modules in a run directory.
type FileSet []File

// List enumerates the project modules in dir (non-recursive), sorted by name.
//
// Non-Python files, fuzz harness temp files and the fuzz snippet file are
// excluded.
func List(dir string) (FileSet, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read project dir: %w", err)
	}

	var out FileSet
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !IsModuleFile(name) {
			continue
		}
		p := filepath.Join(abs, name)
		out = append(out, File{Path: p, Module: ModuleName(p)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// IsModuleFile reports whether a base file name is a project module.
func IsModuleFile(name string) bool {
	if !strings.HasSuffix(name, SourceExt) {
		return false
	}
	if IsTempFile(name) || name == SnippetFile {
		return false
	}
	return true
}

// IsTempFile reports whether name is a fuzz harness temp file.
func IsTempFile(name string) bool {
	return strings.HasSuffix(filepath.Base(name), TempSuffix)
}

// ModuleName derives the module name from a file path ("pkg/config.py" -> "config").
func ModuleName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), SourceExt)
}

// TempPath returns the sibling temp file path used to run an instrumented entry file.
func TempPath(entry string) string {
	return strings.TrimSuffix(entry, SourceExt) + TempSuffix
}

// OriginalName maps a temp file base name back to the entry file base name.
func OriginalName(name string) string {
	if !IsTempFile(name) {
		return name
	}
	return strings.TrimSuffix(name, TempSuffix) + SourceExt
}

// Find looks a file up by base name ("utils.py") or module name ("utils").
func (s FileSet) Find(name string) (File, bool) {
	for _, f := range s {
		if f.Name() == name || f.Module == name {
			return f, true
		}
	}
	return File{}, false
}

// Without returns the set minus the given path.
func (s FileSet) Without(path string) FileSet {
	out := make(FileSet, 0, len(s))
	for _, f := range s {
		if f.Path == path {
			continue
		}
		out = append(out, f)
	}
	return out
}
