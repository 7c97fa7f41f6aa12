// Package symbols builds the cross-file symbol table of a generated project
// and validates attribute references on imported modules against it.
package symbols

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"codemedic/internal/project"
	"codemedic/internal/pyast"
)

// Set is a set of member names.
type Set map[string]struct{}

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MarshalYAML and MarshalJSON render sets as sorted lists.
func (s Set) MarshalYAML() (interface{}, error) { return s.Sorted(), nil }

func (s Set) MarshalJSON() ([]byte, error) { return json.Marshal(s.Sorted()) }

// ModuleSymbols are the names a project module declares at top level.
type ModuleSymbols struct {
	Functions Set `json:"functions" yaml:"functions"`
	Classes   Set `json:"classes" yaml:"classes"`
	Variables Set `json:"variables" yaml:"variables"`
}

func newModuleSymbols() *ModuleSymbols {
	return &ModuleSymbols{Functions: Set{}, Classes: Set{}, Variables: Set{}}
}

// Has reports whether name is declared as a function, class or variable.
func (m *ModuleSymbols) Has(name string) bool {
	return m.Functions.Has(name) || m.Classes.Has(name) || m.Variables.Has(name)
}

// Table maps a module name to its declared symbols.
type Table map[string]*ModuleSymbols

// BuildTable parses every project module in dir and records its top-level
// declarations. Files that cannot be read or parsed are skipped and reported
// in the returned error slice; the table still holds all other modules.
func BuildTable(ctx context.Context, dir string) (Table, []error) {
	files, err := project.List(dir)
	if err != nil {
		return Table{}, []error{err}
	}
	return BuildTableFrom(ctx, files)
}

// BuildTableFrom is BuildTable over an explicit file set.
func BuildTableFrom(ctx context.Context, files project.FileSet) (Table, []error) {
	table := make(Table, len(files))
	var errs []error
	for _, pf := range files {
		f, err := pyast.ParseFile(ctx, pf.Path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pf.Name(), err))
			continue
		}
		if se := f.SyntaxError(); se != nil {
			f.Close()
			errs = append(errs, se)
			continue
		}

		syms := newModuleSymbols()
		for _, d := range f.TopLevel() {
			switch d.Kind {
			case pyast.DeclFunction:
				syms.Functions[d.Name] = struct{}{}
			case pyast.DeclClass:
				syms.Classes[d.Name] = struct{}{}
			case pyast.DeclVariable:
				syms.Variables[d.Name] = struct{}{}
			}
		}
		f.Close()
		table[pf.Module] = syms
	}
	return table, errs
}

// Modules returns the module names in lexical order.
func (t Table) Modules() []string {
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
