package static

import (
	"testing"

	"tickstep/internal/lexer"
	"tickstep/internal/parser"
)

func preprocessSource(t *testing.T, src string) *Static {
	t.Helper()
	l := lexer.New(src)
	p := parser.New(l)
	module := p.ParseModule()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	st, err := Preprocess(module)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	return st
}

func assertIntMap(t *testing.T, name string, got map[int]int, cases [][2]int) {
	t.Helper()
	for _, c := range cases {
		cur, want := c[0], c[1]
		if got[cur] != want {
			t.Errorf("%s[%d] = %d, want %d", name, cur, got[cur], want)
		}
	}
}

func assertDecVars(t *testing.T, st *Static, scope int, names ...string) {
	t.Helper()
	for _, n := range names {
		if !st.DecVars[scope][n] {
			t.Errorf("decvars[%d] missing %q; got %v", scope, n, st.DecVars[scope])
		}
	}
	if len(st.DecVars[scope]) != len(names) {
		t.Errorf("decvars[%d] = %v, want exactly %v", scope, st.DecVars[scope], names)
	}
}

func TestPreprocessSimpleSequential(t *testing.T) {
	src := "\nx = 3\ny = 6\nz = x + y\n"
	st := preprocessSource(t, src)

	assertIntMap(t, "next_stmt", st.NextStmt, [][2]int{{2, 3}, {3, 4}, {4, 4}})
	assertDecVars(t, st, ModuleScope, "x", "y", "z")
}

func TestPreprocessIfStatement(t *testing.T) {
	src := "" +
		"\n" +
		"x = 3\n" +
		"y = 6\n" +
		"if True:\n" +
		"    if True:\n" +
		"        if True:\n" +
		"            z = x + y\n" +
		"        else:\n" +
		"            y = x\n" +
		"            if False:\n" +
		"                if True:\n" +
		"                    z = 2\n" +
		"                else:\n" +
		"                    z = 3\n" +
		"\n" +
		"if False:\n" +
		"    if True:\n" +
		"        z = 10\n" +
		"    else:\n" +
		"        z = 20\n" +
		"\n" +
		"z = x + y\n"
	st := preprocessSource(t, src)

	assertDecVars(t, st, ModuleScope, "x", "y", "z")

	assertIntMap(t, "next_stmt", st.NextStmt, [][2]int{
		{2, 3}, {3, 4}, {7, 16}, {9, 10}, {12, 16}, {14, 16}, {18, 22}, {20, 22},
	})
	assertIntMap(t, "true_stmt", st.TrueStmt, [][2]int{
		{4, 5}, {5, 6}, {6, 7}, {10, 11}, {11, 12}, {16, 17}, {17, 18},
	})
	assertIntMap(t, "false_stmt", st.FalseStmt, [][2]int{
		{4, 16}, {5, 16}, {6, 9}, {10, 16}, {11, 14}, {16, 22}, {17, 20},
	})
}

func TestPreprocessWhileWithIfStatement(t *testing.T) {
	src := "" +
		"\n" +
		"x = 3\n" +
		"y = 6\n" +
		"while True:\n" +
		"    while True:\n" +
		"        while True:\n" +
		"            z = x + y\n" +
		"            y = x\n" +
		"            if False:\n" +
		"                if True:\n" +
		"                    z = 2\n" +
		"                else:\n" +
		"                    z = 3\n" +
		"            continue\n" +
		"        continue\n" +
		"    continue\n" +
		"\n" +
		"while False:\n" +
		"    if True:\n" +
		"        z = 10\n" +
		"    else:\n" +
		"        z = 20\n" +
		"    continue\n" +
		"\n" +
		"z = x + y\n"
	st := preprocessSource(t, src)

	assertDecVars(t, st, ModuleScope, "x", "y", "z")

	assertIntMap(t, "next_stmt", st.NextStmt, [][2]int{
		{2, 3}, {3, 4}, {7, 8}, {8, 9}, {11, 14}, {13, 14}, {14, 6}, {15, 5}, {16, 4},
		{20, 23}, {22, 23}, {23, 18},
	})
	assertIntMap(t, "true_stmt", st.TrueStmt, [][2]int{
		{4, 5}, {5, 6}, {6, 7}, {9, 10}, {10, 11}, {18, 19}, {19, 20},
	})
	assertIntMap(t, "false_stmt", st.FalseStmt, [][2]int{
		{4, 18}, {5, 16}, {6, 15}, {9, 14}, {10, 13}, {18, 25}, {19, 22},
	})
}

func TestPreprocessWhileWithBreak(t *testing.T) {
	src := "" +
		"\n" +
		"while True:\n" +
		"    break\n" +
		"    continue\n" +
		"\n" +
		"while True:\n" +
		"    while True:\n" +
		"        break\n" +
		"        continue\n" +
		"    break\n" +
		"    continue\n" +
		"\n" +
		"z = 4\n"
	st := preprocessSource(t, src)

	assertDecVars(t, st, ModuleScope, "z")

	assertIntMap(t, "next_stmt", st.NextStmt, [][2]int{
		{3, 6}, {4, 2}, {8, 10}, {9, 7}, {10, 13}, {11, 6},
	})
	assertIntMap(t, "true_stmt", st.TrueStmt, [][2]int{
		{2, 3}, {6, 7}, {7, 8},
	})
	assertIntMap(t, "false_stmt", st.FalseStmt, [][2]int{
		{2, 6}, {6, 13}, {7, 10},
	})
}

func TestPreprocessFunctionWithWhile(t *testing.T) {
	src := "" +
		"\n" +
		"def f(x, y):\n" +
		"    a = 2\n" +
		"    while True:\n" +
		"        break\n" +
		"        continue\n" +
		"    def g(z):\n" +
		"        return x + y + z\n" +
		"\n" +
		"    return g\n" +
		"\n" +
		"x = f()\n" +
		"y = x()\n" +
		"\n" +
		"pass\n"
	st := preprocessSource(t, src)

	assertDecVars(t, st, ModuleScope, "f", "x", "y")
	assertDecVars(t, st, 2, "a", "x", "y", "g")
	assertDecVars(t, st, 7, "z")

	assertIntMap(t, "next_stmt", st.NextStmt, [][2]int{
		{2, 12}, {3, 4}, {5, 7}, {6, 4}, {7, 10}, {12, 13}, {13, 15},
	})
	assertIntMap(t, "true_stmt", st.TrueStmt, [][2]int{{4, 5}})
	assertIntMap(t, "false_stmt", st.FalseStmt, [][2]int{{4, 7}})
}

func TestPreprocessSimpleClass(t *testing.T) {
	src := "" +
		"\n" +
		"x = 5\n" +
		"class A:\n" +
		"    x = 3\n" +
		"    y = 4\n" +
		"y = 10\n" +
		"\n" +
		"pass\n"
	st := preprocessSource(t, src)

	assertDecVars(t, st, ModuleScope, "x", "A", "y")
	assertDecVars(t, st, 3, "x", "y")
}

func TestPreprocessClassWithScope(t *testing.T) {
	src := "" +
		"\n" +
		"def f(x, y):\n" +
		"    class A:\n" +
		"        x = 3\n" +
		"        y = 5\n" +
		"\n" +
		"        def __init__(self):\n" +
		"            self.x = x\n" +
		"            self.y = y\n" +
		"\n" +
		"        def some_method(self):\n" +
		"            pass\n" +
		"\n" +
		"    return A\n" +
		"\n" +
		"z = f(2, 3)\n" +
		"\n" +
		"pass\n"
	st := preprocessSource(t, src)

	assertDecVars(t, st, ModuleScope, "f", "z")
	assertDecVars(t, st, 2, "x", "y", "A")
	assertDecVars(t, st, 7, "self")
	assertDecVars(t, st, 11, "self")
	assertDecVars(t, st, 3, "x", "y", "__init__", "some_method")
}
