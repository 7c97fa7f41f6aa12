package symbols

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"codemedic/internal/project"
	"codemedic/internal/pyast"
)

// ExternalResolver answers member lookups on installed packages. known is
// false when the package's surface could not be established.
type ExternalResolver interface {
	HasMember(ctx context.Context, module, member string) (has, known bool)
}

// CheckReferences validates every attribute access made directly on an
// imported module alias in the file at path. It returns one message per
// distinct (module, member) pair that does not resolve, or nil.
//
// Local modules (present in table) are checked strictly. External packages
// are checked only when ext can establish their surface; an unknown surface
// never produces a finding. A nil ext disables external checks.
func CheckReferences(ctx context.Context, path string, table Table, ext ExternalResolver) []string {
	f, err := pyast.ParseFile(ctx, path)
	if err != nil {
		return []string{fmt.Sprintf("Failed to read file for semantic check: %v", err)}
	}
	defer f.Close()
	if se := f.SyntaxError(); se != nil {
		return []string{fmt.Sprintf("Failed to read file for semantic check: %v", se)}
	}

	aliases := aliasMap(f)
	dir := filepath.Dir(path)

	var out []string
	seen := make(map[[2]string]struct{})
	for _, ref := range f.AttributeRefs() {
		module, ok := aliases[ref.Root]
		if !ok {
			continue
		}
		key := [2]string{module, ref.Member}
		if _, dup := seen[key]; dup {
			continue
		}

		if local, ok := table[module]; ok {
			if !local.Has(ref.Member) {
				seen[key] = struct{}{}
				out = append(out, fmt.Sprintf("'%s' not found in local module '%s'", ref.Member, module))
			}
			continue
		}
		if ext == nil || isLocalFile(dir, module) {
			continue
		}
		if has, known := ext.HasMember(ctx, module, ref.Member); known && !has {
			seen[key] = struct{}{}
			out = append(out, fmt.Sprintf("'%s' not found in external package '%s'", ref.Member, module))
		}
	}
	return out
}

// aliasMap maps local names to module paths. "import a.b" binds a to a,
// "import X as Y" binds Y to X, and "from X import ..." registers a plain X
// under its own name.
func aliasMap(f *pyast.File) map[string]string {
	out := make(map[string]string)
	for _, imp := range f.Imports() {
		if imp.Module == "" || imp.Module[0] == '.' {
			continue
		}
		if imp.From {
			if _, taken := out[imp.Module]; !taken && isIdentifier(imp.Module) {
				out[imp.Module] = imp.Module
			}
			continue
		}
		if imp.Alias != "" {
			out[imp.Alias] = imp.Module
			continue
		}
		head := imp.Bound()
		out[head] = head
	}
	return out
}

func isLocalFile(dir, module string) bool {
	fi, err := os.Stat(filepath.Join(dir, module+project.SourceExt))
	return err == nil && !fi.IsDir()
}

func isIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return s != ""
}
