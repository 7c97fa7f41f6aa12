package fuzz

import (
	"bytes"
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"codemedic/internal/pyast"
)

const (
	MarkerBegin = "# --- codemedic fuzz harness: begin ---"
	MarkerEnd   = "# --- codemedic fuzz harness: end ---"
	hookName    = "on_update"
	bodyIndent  = "    "
)

// Inject splices the sanitized snippet into the first statements of the
// program's per-frame hook, a method "def on_update(self, delta_time...)".
// The snippet runs inside a try/except guard that swallows its exceptions.
// Any block left by a previous injection is removed first. When the source
// has no such hook (or does not parse) it is returned unchanged with
// hooked=false.
func Inject(ctx context.Context, src []byte, snippet string) (out []byte, hooked bool) {
	src = Strip(src)
	f, err := pyast.Parse(ctx, src)
	if err != nil {
		return src, false
	}
	defer f.Close()
	if f.SyntaxError() != nil {
		return src, false
	}

	def := findHook(f)
	if def == nil {
		return src, false
	}
	body := def.ChildByFieldName("body")
	stmts := statements(body)
	if len(stmts) == 0 {
		return src, false
	}

	first := stmts[0]
	defIndent := lineIndent(src, int(def.StartByte()))

	// Body on the same line as the signature: break it onto its own line.
	if first.StartPoint().Row == def.StartPoint().Row {
		indent := defIndent + bodyIndent
		pos := int(first.StartByte())
		block := "\n" + guardBlock(snippet, indent) + indent
		return splice(src, pos, block), true
	}

	indent := lineIndent(src, int(first.StartByte()))
	pos := lineStart(src, int(first.StartByte()))
	if isDocstring(first) {
		end := int(first.EndByte())
		if nl := bytes.IndexByte(src[end:], '\n'); nl >= 0 {
			pos = end + nl + 1
		} else {
			src = splice(src, len(src), "\n")
			pos = len(src)
		}
	}
	return splice(src, pos, guardBlock(snippet, indent)), true
}

// Strip removes every injected block, leaving the rest of src untouched.
func Strip(src []byte) []byte {
	if !bytes.Contains(src, []byte(MarkerBegin)) {
		return src
	}
	lines := strings.SplitAfter(string(src), "\n")
	var b strings.Builder
	inside := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == MarkerBegin:
			inside = true
		case trimmed == MarkerEnd && inside:
			inside = false
		case !inside:
			b.WriteString(line)
		}
	}
	return []byte(b.String())
}

func guardBlock(snippet, indent string) string {
	var b strings.Builder
	line := func(depth int, s string) {
		if s == "" {
			b.WriteString("\n")
			return
		}
		b.WriteString(indent)
		b.WriteString(strings.Repeat(bodyIndent, depth))
		b.WriteString(s)
		b.WriteString("\n")
	}
	line(0, MarkerBegin)
	line(0, "try:")
	line(1, "import random as "+RandomAlias)
	for _, s := range strings.Split(snippet, "\n") {
		if strings.TrimSpace(s) == "" {
			line(0, "")
			continue
		}
		line(1, s)
	}
	line(0, "except Exception:")
	line(1, "pass")
	line(0, MarkerEnd)
	return b.String()
}

// findHook returns the first method named on_update whose parameters are
// (self, delta_time...).
func findHook(f *pyast.File) *sitter.Node {
	var hook *sitter.Node
	pyast.Walk(f.Root(), func(n *sitter.Node) bool {
		if hook != nil {
			return false
		}
		if n.Type() != "function_definition" || f.Text(n.ChildByFieldName("name")) != hookName {
			return true
		}
		if !isMethod(n) {
			return true
		}
		params := paramNames(f, n.ChildByFieldName("parameters"))
		if len(params) >= 2 && params[0] == "self" && strings.HasPrefix(params[1], "delta_time") {
			hook = n
			return false
		}
		return true
	})
	return hook
}

func isMethod(def *sitter.Node) bool {
	p := def.Parent()
	if p != nil && p.Type() == "decorated_definition" {
		p = p.Parent()
	}
	if p == nil || p.Type() != "block" {
		return false
	}
	cls := p.Parent()
	return cls != nil && cls.Type() == "class_definition"
}

func paramNames(f *pyast.File, params *sitter.Node) []string {
	var out []string
	for _, p := range pyast.NamedChildren(params) {
		switch p.Type() {
		case "identifier":
			out = append(out, f.Text(p))
		case "typed_parameter":
			if id := p.NamedChild(0); id != nil && id.Type() == "identifier" {
				out = append(out, f.Text(id))
			}
		case "default_parameter", "typed_default_parameter":
			out = append(out, f.Text(p.ChildByFieldName("name")))
		}
	}
	return out
}

func statements(block *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for _, c := range pyast.NamedChildren(block) {
		if c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func isDocstring(stmt *sitter.Node) bool {
	if stmt.Type() != "expression_statement" || stmt.NamedChildCount() != 1 {
		return false
	}
	return stmt.NamedChild(0).Type() == "string"
}

func lineStart(src []byte, pos int) int {
	return bytes.LastIndexByte(src[:pos], '\n') + 1
}

func lineIndent(src []byte, pos int) string {
	start := lineStart(src, pos)
	line := src[start:]
	n := 0
	for n < len(line) && (line[n] == ' ' || line[n] == '\t') {
		n++
	}
	return string(line[:n])
}

func splice(src []byte, pos int, insert string) []byte {
	out := make([]byte, 0, len(src)+len(insert))
	out = append(out, src[:pos]...)
	out = append(out, insert...)
	out = append(out, src[pos:]...)
	return out
}
