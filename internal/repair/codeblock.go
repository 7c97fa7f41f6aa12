package repair

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"codemedic/internal/pyast"
)

var (
	fencedBlock = regexp.MustCompile("(?s)```(?:python|py)?[ \t]*\\n?(.*?)```")
	leadFence   = regexp.MustCompile("^```(?:python|py)?\\s*")
	trailFence  = regexp.MustCompile("\\s*```$")
)

// statementStarts are leading words that make a line Python rather than prose.
var statementStarts = map[string]bool{
	"and": true, "as": true, "assert": true, "async": true, "await": true,
	"break": true, "case": true, "class": true, "continue": true, "def": true,
	"del": true, "elif": true, "else": true, "except": true, "finally": true,
	"for": true, "from": true, "global": true, "if": true, "import": true,
	"in": true, "is": true, "lambda": true, "match": true, "nonlocal": true,
	"not": true, "or": true, "pass": true, "raise": true, "return": true,
	"try": true, "type": true, "while": true, "with": true, "yield": true,
}

// ExtractCodeBlock returns the code carried by a model response: the first
// fenced block when there is one, otherwise the response with stray fences
// removed. An unfenced response that does not parse has its leading and
// trailing prose lines dropped.
func ExtractCodeBlock(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	clean := strings.TrimSpace(text)
	clean = leadFence.ReplaceAllString(clean, "")
	clean = trailFence.ReplaceAllString(clean, "")
	clean = strings.TrimSpace(clean)
	if parses(clean) {
		return clean
	}
	trimmed := trimProse(clean)
	if trimmed != "" && parses(trimmed) {
		return trimmed
	}
	return clean
}

func parses(code string) bool {
	return pyast.CheckSyntax(context.Background(), "", []byte(code)) == nil
}

// trimProse drops blank and prose lines from both ends of text.
func trimProse(text string) string {
	lines := strings.Split(text, "\n")
	start, end := 0, len(lines)
	for start < end && (strings.TrimSpace(lines[start]) == "" || isProse(lines[start])) {
		start++
	}
	for end > start && (strings.TrimSpace(lines[end-1]) == "" || isProse(lines[end-1])) {
		end--
	}
	return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
}

// isProse reports whether line reads as a sentence: unindented, several
// words, starting with a letter, and free of the punctuation code leans on.
func isProse(line string) bool {
	if line != strings.TrimLeft(line, " \t") {
		return false
	}
	t := strings.TrimSpace(line)
	words := strings.Fields(t)
	if len(words) < 2 || !unicode.IsLetter([]rune(t)[0]) {
		return false
	}
	if statementStarts[words[0]] {
		return false
	}
	return !strings.ContainsAny(t, "=()[]{}#@'\"")
}
