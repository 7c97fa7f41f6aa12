// Package pyast wraps tree-sitter-python with the handful of queries the
// verification engine needs: syntax validation, top-level declarations,
// imports, attribute references and signature summaries.
package pyast

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// File is a parsed Python source file. Call Close when done.
type File struct {
	Path   string
	Source []byte
	tree   *sitter.Tree
	root   *sitter.Node
}

// Parse parses src. A returned File may still contain syntax errors; use
// SyntaxError to find out. The error return is reserved for parser failures.
func Parse(ctx context.Context, src []byte) (*File, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse python source: %w", err)
	}
	return &File{Source: src, tree: tree, root: tree.RootNode()}, nil
}

// ParseFile reads and parses the file at path.
func ParseFile(ctx context.Context, path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(ctx, src)
	if err != nil {
		return nil, err
	}
	f.Path = path
	return f, nil
}

// Close releases the underlying tree.
func (f *File) Close() {
	if f == nil || f.tree == nil {
		return
	}
	f.tree.Close()
	f.tree = nil
}

// Root returns the module node.
func (f *File) Root() *sitter.Node {
	return f.root
}

// Text returns the source text covered by n.
func (f *File) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(f.Source)
}

// SyntaxError describes the first syntax error found in a file.
type SyntaxError struct {
	File   string
	Line   int
	Column int
	Msg    string
	Text   string
}

func (e *SyntaxError) Error() string {
	loc := fmt.Sprintf("line %d, column %d", e.Line, e.Column)
	if e.File != "" {
		loc = filepath.Base(e.File) + ", " + loc
	}
	s := fmt.Sprintf("%s (%s)", e.Msg, loc)
	if e.Text != "" {
		s += "\n    " + e.Text
	}
	return s
}

// SyntaxError returns the first (in source order) syntax error, or nil.
// Besides parse errors it reports Python 2 constructs the grammar still
// accepts (print and exec statements) and augmented assignment to a tuple or
// list, all of which Python 3 rejects.
func (f *File) SyntaxError() *SyntaxError {
	if f == nil || f.root == nil {
		return nil
	}
	bad, msg := firstInvalidNode(f.root)
	if bad == nil {
		if !f.root.HasError() {
			return nil
		}
		// HasError without a locatable node; report the module start.
		return &SyntaxError{File: f.Path, Line: 1, Column: 1, Msg: "invalid syntax"}
	}

	pt := bad.StartPoint()
	line := int(pt.Row) + 1
	return &SyntaxError{
		File:   f.Path,
		Line:   line,
		Column: int(pt.Column) + 1,
		Msg:    msg,
		Text:   sourceLine(f.Source, line),
	}
}

// CheckSyntax parses src and returns a *SyntaxError if it is not valid Python.
func CheckSyntax(ctx context.Context, path string, src []byte) error {
	f, err := Parse(ctx, src)
	if err != nil {
		return err
	}
	defer f.Close()
	f.Path = path
	if se := f.SyntaxError(); se != nil {
		return se
	}
	return nil
}

// firstInvalidNode returns the first node, in pre-order, that makes the file
// invalid Python 3, with the message to report for it.
func firstInvalidNode(n *sitter.Node) (*sitter.Node, string) {
	if n == nil {
		return nil, ""
	}
	if n.IsMissing() {
		return n, fmt.Sprintf("missing %q", n.Type())
	}
	switch n.Type() {
	case "ERROR":
		return n, "invalid syntax"
	case "print_statement":
		return n, "Missing parentheses in call to 'print'"
	case "exec_statement":
		return n, "Missing parentheses in call to 'exec'"
	case "augmented_assignment":
		if left := n.ChildByFieldName("left"); left != nil && illegalAugmentedTarget(left.Type()) {
			return n, fmt.Sprintf("'%s' is an illegal expression for augmented assignment", targetKind(left.Type()))
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found, msg := firstInvalidNode(n.Child(i)); found != nil {
			return found, msg
		}
	}
	return nil, ""
}

func illegalAugmentedTarget(typ string) bool {
	switch typ {
	case "pattern_list", "expression_list", "tuple", "tuple_pattern", "list", "list_pattern":
		return true
	}
	return false
}

func targetKind(typ string) string {
	if typ == "list" || typ == "list_pattern" {
		return "list"
	}
	return "tuple"
}

func sourceLine(src []byte, line int) string {
	lines := strings.Split(string(src), "\n")
	if line < 1 || line > len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[line-1])
}

// Walk visits n and its named descendants in pre-order. Returning false from
// fn skips the children of the visited node.
func Walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		Walk(n.NamedChild(i), fn)
	}
}

// NamedChildren returns the named children of n.
func NamedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Line returns the 1-based line of n.
func Line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}
