package pyast

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *File {
	t.Helper()
	f, err := Parse(context.Background(), []byte(src))
	require.NoError(t, err)
	t.Cleanup(f.Close)
	return f
}

func TestCheckSyntax_Valid(t *testing.T) {
	err := CheckSyntax(context.Background(), "ok.py", []byte("import os\n\nx = 1\n\ndef f(a, b=2):\n    return a + b\n"))
	assert.NoError(t, err)
}

func TestCheckSyntax_ReportsLine(t *testing.T) {
	src := "x = 1\ny = 2\ndef broken(:\n    pass\n"
	err := CheckSyntax(context.Background(), "/tmp/p/bad.py", []byte(src))
	require.Error(t, err)

	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 3, se.Line)
	assert.GreaterOrEqual(t, se.Column, 1)
	assert.Contains(t, se.Error(), "bad.py, line 3")
}

func TestCheckSyntax_RejectsConstructsPython3Forbids(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		msg  string
	}{
		{name: "print statement", src: "x = 1\nprint \"hello\"\n", line: 2, msg: "parentheses in call to 'print'"},
		{name: "print with tuple", src: "score = 3\nprint 'score', score\n", line: 2, msg: "parentheses in call to 'print'"},
		{name: "exec statement", src: "exec \"x = 1\"\n", line: 1, msg: "parentheses in call to 'exec'"},
		{name: "tuple augmented assignment", src: "a = b = 0\na, b += 1\n", line: 2, msg: "illegal expression for augmented assignment"},
		{name: "nested in function", src: "def f():\n    print \"x\"\n", line: 2, msg: "'print'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSyntax(context.Background(), "legacy.py", []byte(tt.src))
			var se *SyntaxError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.line, se.Line)
			assert.Contains(t, se.Msg, tt.msg)
		})
	}
}

func TestCheckSyntax_AcceptsPython3Equivalents(t *testing.T) {
	src := "a = b = 0\nprint(\"hello\")\nexec(\"x = 1\")\na += 1\nitems = [0]\nitems[0] += 1\n"
	assert.NoError(t, CheckSyntax(context.Background(), "ok.py", []byte(src)))
}

func TestTopLevel(t *testing.T) {
	f := parse(t, strings.Join([]string{
		"import os",
		"SCREEN_WIDTH = 800",
		"A = B = 3",
		"LIMIT: int = 10",
		"TYPED_ONLY: int",
		"a, b = 1, 2",
		"def helper():",
		"    inner = 1",
		"async def fetch():",
		"    pass",
		"@decorator",
		"def wrapped():",
		"    pass",
		"class Game:",
		"    speed = 1",
		"    def run(self):",
		"        pass",
		"if True:",
		"    HIDDEN = 1",
	}, "\n")+"\n")

	byKind := map[DeclKind][]string{}
	for _, d := range f.TopLevel() {
		byKind[d.Kind] = append(byKind[d.Kind], d.Name)
	}
	assert.Equal(t, []string{"helper", "fetch", "wrapped"}, byKind[DeclFunction])
	assert.Equal(t, []string{"Game"}, byKind[DeclClass])
	assert.Equal(t, []string{"SCREEN_WIDTH", "A", "B", "LIMIT"}, byKind[DeclVariable])
}

func TestImports(t *testing.T) {
	f := parse(t, "import os.path\nimport numpy as np, sys\nfrom config import WIDTH, HEIGHT as H\nfrom helpers import *\n")
	imps := f.Imports()
	require.Len(t, imps, 5)

	assert.Equal(t, "os.path", imps[0].Module)
	assert.Equal(t, "os", imps[0].Bound())
	assert.Equal(t, "np", imps[1].Bound())
	assert.Equal(t, "sys", imps[2].Bound())

	assert.True(t, imps[3].From)
	assert.Equal(t, "config", imps[3].Module)
	assert.Equal(t, []string{"WIDTH", "H"}, imps[3].Names)

	assert.True(t, imps[4].Wildcard)
}

func TestAttributeRefs_DirectOnly(t *testing.T) {
	f := parse(t, "import config\nw = config.SCREEN_WIDTH\nconfig.player.speed.x = 3\n")
	refs := f.AttributeRefs()

	var got []string
	for _, r := range refs {
		got = append(got, r.Root+"."+r.Member)
	}
	assert.ElementsMatch(t, []string{"config.SCREEN_WIDTH", "config.player"}, got)
	assert.Equal(t, 2, refs[0].Line)
}

func TestExportedNames(t *testing.T) {
	f := parse(t, "import sys\nfrom os import path as p\nif sys.version_info >= (3, 8):\n    def modern(): ...\nelse:\n    def legacy(): ...\nclass C: ...\n")
	names, dynamic := f.ExportedNames()
	assert.False(t, dynamic)
	assert.ElementsMatch(t, []string{"sys", "p", "modern", "legacy", "C"}, names)

	g := parse(t, "from ._impl import *\n")
	_, dynamic = g.ExportedNames()
	assert.True(t, dynamic)

	h := parse(t, "def __getattr__(name):\n    return 1\n")
	_, dynamic = h.ExportedNames()
	assert.True(t, dynamic)
}

func TestSignatures(t *testing.T) {
	src := strings.Join([]string{
		"import arcade",
		"from config import SCREEN_WIDTH",
		"TITLE = \"Game\"",
		"SPEED = compute()",
		"class Player(arcade.Sprite):",
		"    def __init__(self, x, y):",
		"        super().__init__()",
		"    @property",
		"    def pos(self) -> tuple:",
		"        return (1, 2)",
		"class Empty:",
		"    x = 1",
		"def main():",
		"    print('hi')",
	}, "\n") + "\n"

	got := SignaturesOf(context.Background(), []byte(src))
	want := strings.Join([]string{
		"import arcade",
		"from config import SCREEN_WIDTH",
		"TITLE = \"Game\"",
		"SPEED = ...",
		"class Player(arcade.Sprite):",
		"    def __init__(self, x, y): ...",
		"    def pos(self) -> tuple: ...",
		"class Empty:",
		"    pass",
		"def main(): ...",
	}, "\n")
	assert.Equal(t, want, got)
}
