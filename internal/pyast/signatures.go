package pyast

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

var literalTypes = map[string]bool{
	"integer": true,
	"float":   true,
	"string":  true,
	"true":    true,
	"false":   true,
	"none":    true,
}

// Signatures summarizes the module's public surface: imports, constants
// (literal values only), classes with their method signatures, and function
// signatures. Bodies are elided. It is used as compact context for sibling
// files during repair.
func (f *File) Signatures() string {
	var lines []string
	for _, n := range NamedChildren(f.root) {
		lines = f.appendSignature(lines, n)
	}
	return strings.Join(lines, "\n")
}

// SignaturesOf parses src and returns its Signatures. Unparsable input yields
// an empty summary.
func SignaturesOf(ctx context.Context, src []byte) string {
	f, err := Parse(ctx, src)
	if err != nil {
		return ""
	}
	defer f.Close()
	return f.Signatures()
}

func (f *File) appendSignature(lines []string, n *sitter.Node) []string {
	switch n.Type() {
	case "import_statement", "import_from_statement":
		lines = append(lines, squash(f.Text(n)))
	case "expression_statement":
		for _, c := range NamedChildren(n) {
			if c.Type() != "assignment" {
				continue
			}
			left, right := c.ChildByFieldName("left"), c.ChildByFieldName("right")
			if left == nil || left.Type() != "identifier" || right == nil {
				continue
			}
			value := "..."
			if literalTypes[right.Type()] && !strings.Contains(f.Text(right), "\n") {
				value = f.Text(right)
			}
			lines = append(lines, f.Text(left)+" = "+value)
		}
	case "class_definition":
		head := "class " + f.Text(n.ChildByFieldName("name"))
		if sup := n.ChildByFieldName("superclasses"); sup != nil {
			head += squash(f.Text(sup))
		}
		lines = append(lines, head+":")
		var methods []string
		for _, c := range NamedChildren(n.ChildByFieldName("body")) {
			if def := unwrapDecorated(c); def != nil && def.Type() == "function_definition" {
				methods = append(methods, "    "+f.funcSignature(def))
			}
		}
		if len(methods) == 0 {
			methods = []string{"    pass"}
		}
		lines = append(lines, methods...)
	case "function_definition":
		lines = append(lines, f.funcSignature(n))
	case "decorated_definition":
		if def := n.ChildByFieldName("definition"); def != nil {
			lines = f.appendSignature(lines, def)
		}
	}
	return lines
}

func (f *File) funcSignature(def *sitter.Node) string {
	sig := "def " + f.Text(def.ChildByFieldName("name")) + squash(f.Text(def.ChildByFieldName("parameters")))
	if ret := def.ChildByFieldName("return_type"); ret != nil {
		sig += " -> " + squash(f.Text(ret))
	}
	if first := def.Child(0); first != nil && first.Type() == "async" {
		sig = "async " + sig
	}
	return sig + ": ..."
}

func unwrapDecorated(n *sitter.Node) *sitter.Node {
	if n.Type() == "decorated_definition" {
		return n.ChildByFieldName("definition")
	}
	return n
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
