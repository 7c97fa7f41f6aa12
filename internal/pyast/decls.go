package pyast

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// DeclKind classifies a top-level binding.
type DeclKind int

const (
	DeclFunction DeclKind = iota
	DeclClass
	DeclVariable
)

func (k DeclKind) String() string {
	switch k {
	case DeclFunction:
		return "function"
	case DeclClass:
		return "class"
	case DeclVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// Decl is a name bound at module level.
type Decl struct {
	Kind DeclKind
	Name string
	Node *sitter.Node
}

// TopLevel returns the functions, classes and simple-name assignments bound
// directly in the module body, in source order.
func (f *File) TopLevel() []Decl {
	var out []Decl
	for _, n := range NamedChildren(f.root) {
		out = f.appendDecls(out, n, false)
	}
	return out
}

// appendDecls records bindings made by stmt. With nested set, the bodies of
// module-level if/try/with statements are searched too.
func (f *File) appendDecls(out []Decl, stmt *sitter.Node, nested bool) []Decl {
	switch stmt.Type() {
	case "function_definition":
		out = append(out, Decl{Kind: DeclFunction, Name: f.Text(stmt.ChildByFieldName("name")), Node: stmt})
	case "class_definition":
		out = append(out, Decl{Kind: DeclClass, Name: f.Text(stmt.ChildByFieldName("name")), Node: stmt})
	case "decorated_definition":
		if def := stmt.ChildByFieldName("definition"); def != nil {
			out = f.appendDecls(out, def, nested)
		}
	case "expression_statement":
		for _, c := range NamedChildren(stmt) {
			if c.Type() == "assignment" {
				for _, name := range f.assignedNames(c) {
					out = append(out, Decl{Kind: DeclVariable, Name: name, Node: stmt})
				}
			}
		}
	case "if_statement", "try_statement", "with_statement", "else_clause",
		"elif_clause", "except_clause", "finally_clause", "block":
		if !nested {
			return out
		}
		for _, c := range NamedChildren(stmt) {
			out = f.appendDecls(out, c, nested)
		}
	}
	return out
}

// assignedNames follows an assignment chain (a = b = 1) and returns the plain
// identifier targets. Annotated assignments count only when they carry a value.
func (f *File) assignedNames(n *sitter.Node) []string {
	var names []string
	for n != nil && n.Type() == "assignment" {
		right := n.ChildByFieldName("right")
		left := n.ChildByFieldName("left")
		if left != nil && left.Type() == "identifier" && right != nil {
			names = append(names, f.Text(left))
		}
		n = right
	}
	return names
}

// Import is one imported module binding.
type Import struct {
	// Module is the dotted module path ("os.path", ".utils" for relative).
	Module string
	// Alias is the local name bound for "import X as Y"; empty otherwise.
	Alias string
	// From is set for "from X import ..." statements.
	From bool
	// Names are the local names bound by a from-import.
	Names []string
	// Wildcard is set for "from X import *".
	Wildcard bool
	Line     int
}

// Bound returns the local name a plain import binds ("import os.path" binds
// "os"; "import numpy as np" binds "np").
func (i Import) Bound() string {
	if i.From {
		return ""
	}
	if i.Alias != "" {
		return i.Alias
	}
	head, _, _ := strings.Cut(i.Module, ".")
	return head
}

// Imports returns every import statement in the file, including nested ones.
func (f *File) Imports() []Import {
	var out []Import
	Walk(f.root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "import_statement":
			for _, c := range NamedChildren(n) {
				switch c.Type() {
				case "dotted_name":
					out = append(out, Import{Module: f.Text(c), Line: Line(n)})
				case "aliased_import":
					out = append(out, Import{
						Module: f.Text(c.ChildByFieldName("name")),
						Alias:  f.Text(c.ChildByFieldName("alias")),
						Line:   Line(n),
					})
				}
			}
			return false
		case "import_from_statement":
			out = append(out, f.fromImport(n))
			return false
		}
		return true
	})
	return out
}

func (f *File) fromImport(n *sitter.Node) Import {
	imp := Import{From: true, Line: Line(n)}
	mod := n.ChildByFieldName("module_name")
	if mod != nil {
		imp.Module = f.Text(mod)
	}
	for _, c := range NamedChildren(n) {
		if mod != nil && c.StartByte() == mod.StartByte() && c.EndByte() == mod.EndByte() {
			continue
		}
		switch c.Type() {
		case "wildcard_import":
			imp.Wildcard = true
		case "dotted_name":
			imp.Names = append(imp.Names, f.Text(c))
		case "aliased_import":
			imp.Names = append(imp.Names, f.Text(c.ChildByFieldName("alias")))
		}
	}
	return imp
}

// AttrRef is an attribute access whose object is a bare identifier
// ("config.SCREEN_WIDTH" -> Root "config", Member "SCREEN_WIDTH").
type AttrRef struct {
	Root   string
	Member string
	Line   int
	Column int
}

// AttributeRefs returns every attribute access made directly on a name, in
// source order. For a chain a.b.c only (a, b) is reported.
func (f *File) AttributeRefs() []AttrRef {
	var out []AttrRef
	Walk(f.root, func(n *sitter.Node) bool {
		if n.Type() != "attribute" {
			return true
		}
		obj := n.ChildByFieldName("object")
		attr := n.ChildByFieldName("attribute")
		if obj != nil && attr != nil && obj.Type() == "identifier" {
			pt := attr.StartPoint()
			out = append(out, AttrRef{
				Root:   f.Text(obj),
				Member: f.Text(attr),
				Line:   int(pt.Row) + 1,
				Column: int(pt.Column) + 1,
			})
		}
		return true
	})
	return out
}

// ExportedNames returns the names a module makes available as attributes:
// its declarations (including those inside module-level if/try blocks) and
// the names it imports. dynamic is reported when the module re-exports with
// a star import or defines a module-level __getattr__, in which case the
// static list is not authoritative.
func (f *File) ExportedNames() (names []string, dynamic bool) {
	seen := make(map[string]struct{})
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	var decls []Decl
	for _, n := range NamedChildren(f.root) {
		decls = f.appendDecls(decls, n, true)
	}
	for _, d := range decls {
		if d.Kind == DeclFunction && d.Name == "__getattr__" {
			dynamic = true
		}
		add(d.Name)
	}

	for _, imp := range f.moduleLevelImports() {
		if imp.Wildcard {
			dynamic = true
		}
		if imp.From {
			for _, n := range imp.Names {
				add(n)
			}
			continue
		}
		add(imp.Bound())
	}
	return names, dynamic
}

// moduleLevelImports returns imports outside function and class bodies.
func (f *File) moduleLevelImports() []Import {
	var out []Import
	Walk(f.root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "function_definition", "class_definition":
			return false
		case "import_statement", "import_from_statement":
			sub := &File{Source: f.Source, root: n}
			if n.Type() == "import_from_statement" {
				out = append(out, sub.fromImport(n))
			} else {
				out = append(out, sub.Imports()...)
			}
			return false
		}
		return true
	})
	return out
}
