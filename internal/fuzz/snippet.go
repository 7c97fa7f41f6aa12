package fuzz

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"codemedic/internal/project"
)

// DefaultSnippet drives an arcade-style window through its public input
// handlers: random left clicks and random arrow/space key presses.
const DefaultSnippet = `
# random pointer press/release
if random.random() < 0.05:
    _mx = random.randint(0, self.width)
    _my = random.randint(0, self.height)
    self.on_mouse_press(_mx, _my, arcade.MOUSE_BUTTON_LEFT, 0)
    self.on_mouse_release(_mx, _my, arcade.MOUSE_BUTTON_LEFT, 0)

# random key press
if random.random() < 0.05:
    _keys = [arcade.key.SPACE, arcade.key.LEFT, arcade.key.RIGHT, arcade.key.UP, arcade.key.DOWN]
    self.on_key_press(random.choice(_keys), 0)
`

// RandomAlias is the harness-private name the snippet's random module is bound to.
const RandomAlias = "_fuzz_random"

var randomRef = regexp.MustCompile(`(^|[^\w.])random\.`)

// LoadSnippet returns the project's fuzz_logic.py next to entry when it exists
// and is readable, otherwise DefaultSnippet. custom reports which was used.
func LoadSnippet(entry string) (snippet string, custom bool) {
	b, err := os.ReadFile(filepath.Join(filepath.Dir(entry), project.SnippetFile))
	if err != nil || strings.TrimSpace(string(b)) == "" {
		return DefaultSnippet, false
	}
	return string(b), true
}

// Sanitize prepares a snippet for injection: it is dedented, its top-level
// imports are dropped, and bare "random." references are redirected to
// RandomAlias.
func Sanitize(snippet string) string {
	lines := strings.Split(dedent(snippet), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if isTopLevelImport(line) {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.Trim(dedent(strings.Join(kept, "\n")), "\n")
	lines = strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = randomRef.ReplaceAllString(line, "${1}"+RandomAlias+".")
	}
	return strings.Join(lines, "\n")
}

func isTopLevelImport(line string) bool {
	if strings.HasPrefix(line, "import ") {
		return true
	}
	return strings.HasPrefix(line, "from ") && strings.Contains(line, " import ")
}

// dedent removes the whitespace prefix common to all non-blank lines.
func dedent(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	prefix := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		ws := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix, first = ws, false
			continue
		}
		for !strings.HasPrefix(ws, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}
