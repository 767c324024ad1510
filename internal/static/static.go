// Package static performs the single pre-analysis pass over a parsed
// module: a flat per-line statement table, the control-flow successor
// relation (fall-through, true/false branches, break/continue
// targets) and per-scope declared-name sets. The machine package
// steps purely off these tables; it never re-walks the AST.
package static

import (
	"fmt"

	"tickstep/internal/ast"
)

// ModuleScope is the scope line of the module itself: decvars[0] is
// the set of names bound at module top level.
const ModuleScope = 0

type lineSet map[string]bool

func newLineSet() lineSet { return make(lineSet) }

func (s lineSet) add(name string)      { s[name] = true }
func (s lineSet) has(name string) bool { return s[name] }

// Static is the immutable table set produced by Preprocess. Every
// field is keyed by 1-based source line (scope_line = 0 for the
// module itself).
type Static struct {
	Statements map[int]ast.Statement
	NextStmt   map[int]int
	TrueStmt   map[int]int
	FalseStmt  map[int]int
	DecVars    map[int]map[string]bool
	Globals    map[int]map[string]bool
	Nonlocals  map[int]map[string]bool
	Block      map[int][2]int // header_line -> (first_body_line, last_body_line)
	Parent     map[int]int
}

func newStatic() *Static {
	return &Static{
		Statements: make(map[int]ast.Statement),
		NextStmt:   make(map[int]int),
		TrueStmt:   make(map[int]int),
		FalseStmt:  make(map[int]int),
		DecVars:    make(map[int]map[string]bool),
		Globals:    make(map[int]map[string]bool),
		Nonlocals:  make(map[int]map[string]bool),
		Block:      make(map[int][2]int),
		Parent:     make(map[int]int),
	}
}

type UnsupportedConstructError struct {
	Line int
	Kind string
}

func (e *UnsupportedConstructError) Error() string {
	return fmt.Sprintf("line %d: unsupported construct %s", e.Line, e.Kind)
}

// walker carries the mutable cursor (current scope line) through the
// traversal; everything it touches lands in the shared Static tables.
type walker struct {
	st           *Static
	curScopeLine int
}

// Preprocess runs the one pre-analysis pass over a parsed module and
// returns the tables the stepper consumes. The module must contain at
// least one statement.
func Preprocess(module *ast.Module) (*Static, error) {
	st := newStatic()
	st.DecVars[ModuleScope] = map[string]bool{}

	w := &walker{st: st, curScopeLine: ModuleScope}
	if err := w.traverseModule(module); err != nil {
		return nil, err
	}

	lastLine := -1
	for line := range st.Statements {
		if line > lastLine {
			lastLine = line
		}
	}
	if lastLine < 0 {
		return nil, fmt.Errorf("module has no statements")
	}
	st.NextStmt[lastLine] = lastLine

	return st, nil
}

func lineOf(s ast.Statement) int { return s.Line() }

// newBlock computes, for a body of statements, the (line, stmt) pairs
// and the fall-through chain between consecutive statements — the
// last statement's successor is deliberately left unset here; the
// caller wires it to whatever follows the block.
func newBlock(body []ast.Statement) ([]int, map[int]int) {
	lines := make([]int, len(body))
	for i, s := range body {
		lines[i] = lineOf(s)
	}
	next := make(map[int]int, len(lines))
	for i := 0; i+1 < len(lines); i++ {
		next[lines[i]] = lines[i+1]
	}
	return lines, next
}

func (w *walker) traverseModule(module *ast.Module) error {
	lines, next := newBlock(module.Statements)
	for i, s := range module.Statements {
		w.st.Statements[lines[i]] = s
	}
	for l, n := range next {
		w.st.NextStmt[l] = n
	}
	for _, s := range module.Statements {
		if err := w.traverseStmt(s); err != nil {
			return err
		}
	}
	return nil
}

// traverseBody handles a nested block (while/if/def/class body):
// records its statements and internal fall-through chain, wires its
// first/last line into Block[parentLine], and threads the block's
// last line to whatever follows the parent header (or, for a while
// body, back to the while header so the loop closes), before
// recursing into each child statement.
func (w *walker) traverseBody(parentLine int, body []ast.Statement) error {
	lines, next := newBlock(body)

	if len(lines) > 0 {
		startLine, endLine := lines[0], lines[len(lines)-1]
		w.st.Block[parentLine] = [2]int{startLine, endLine}
		if _, isWhile := w.st.Statements[parentLine].(*ast.WhileStmt); isWhile {
			w.st.NextStmt[endLine] = parentLine
		} else if parentNext, ok := w.st.NextStmt[parentLine]; ok {
			w.st.NextStmt[endLine] = parentNext
		}
	}

	for i, s := range body {
		w.st.Statements[lines[i]] = s
	}
	for l, n := range next {
		w.st.NextStmt[l] = n
	}

	for _, s := range body {
		l := lineOf(s)
		w.st.Parent[l] = parentLine
		if err := w.traverseStmt(s); err != nil {
			return err
		}
	}
	return nil
}

// nearestEnclosingWhile walks the parent chain from line looking for
// the nearest ancestor statement that is a WhileStmt, mirroring the
// reference implementation's break/continue resolution: it climbs
// past intervening if-statements (and, were it legal source, function
// or class boundaries) until it finds a loop or runs out of parents.
func (w *walker) nearestEnclosingWhile(line int) (int, bool) {
	for {
		parentLine, ok := w.st.Parent[line]
		if !ok {
			return 0, false
		}
		if _, isWhile := w.st.Statements[parentLine].(*ast.WhileStmt); isWhile {
			return parentLine, true
		}
		line = parentLine
	}
}

func (w *walker) traverseStmt(s ast.Statement) error {
	line := lineOf(s)

	switch stmt := s.(type) {
	case *ast.WhileStmt:
		if len(stmt.Body) == 0 {
			return &UnsupportedConstructError{Line: line, Kind: "empty while body"}
		}
		w.st.TrueStmt[line] = lineOf(stmt.Body[0])
		if falseLine, ok := w.whileFalseTarget(line); ok {
			w.st.FalseStmt[line] = falseLine
		}
		return w.traverseBody(line, stmt.Body)

	case *ast.IfStmt:
		if len(stmt.Then) == 0 {
			return &UnsupportedConstructError{Line: line, Kind: "empty if body"}
		}
		w.st.TrueStmt[line] = lineOf(stmt.Then[0])

		var falseLine int
		var haveFalse bool
		if len(stmt.Else) > 0 {
			falseLine, haveFalse = lineOf(stmt.Else[0]), true
		} else {
			falseLine, haveFalse = w.successorOf(line)
		}
		if haveFalse {
			w.st.FalseStmt[line] = falseLine
		}

		if err := w.traverseBody(line, stmt.Then); err != nil {
			return err
		}
		return w.traverseBody(line, stmt.Else)

	case *ast.ContinueStmt:
		whileLine, ok := w.nearestEnclosingWhile(line)
		if !ok {
			return &UnsupportedConstructError{Line: line, Kind: "continue outside loop"}
		}
		w.st.NextStmt[line] = whileLine
		return nil

	case *ast.BreakStmt:
		whileLine, ok := w.nearestEnclosingWhile(line)
		if !ok {
			return &UnsupportedConstructError{Line: line, Kind: "break outside loop"}
		}
		if falseLine, ok := w.st.FalseStmt[whileLine]; ok {
			w.st.NextStmt[line] = falseLine
		}
		return nil

	case *ast.FunctionDef:
		w.declare(stmt.Name)

		oldScope := w.curScopeLine
		w.curScopeLine = line

		params := newLineSet()
		for _, p := range stmt.Params {
			params.add(p)
		}
		w.st.DecVars[line] = params
		w.st.Globals[line] = newLineSet()
		w.st.Nonlocals[line] = newLineSet()

		if err := w.traverseBody(line, stmt.Body); err != nil {
			return err
		}
		w.pruneScopedDecls(line)
		w.curScopeLine = oldScope
		return nil

	case *ast.ClassDef:
		w.declare(stmt.Name)

		oldScope := w.curScopeLine
		w.curScopeLine = line

		w.st.DecVars[line] = newLineSet()
		w.st.Globals[line] = newLineSet()
		w.st.Nonlocals[line] = newLineSet()

		if err := w.traverseBody(line, stmt.Body); err != nil {
			return err
		}
		w.pruneScopedDecls(line)
		w.curScopeLine = oldScope
		return nil

	case *ast.AssignStmt:
		if _, isAttr := stmt.Target.(*ast.AttributeExpr); !isAttr {
			if id, ok := stmt.Target.(*ast.Identifier); ok {
				w.declare(id.Value)
			}
		}
		return nil

	case *ast.GlobalStmt:
		set := lineSet(w.st.Globals[w.curScopeLine])
		for _, n := range stmt.Names {
			set.add(n)
		}
		return nil

	case *ast.NonlocalStmt:
		set := lineSet(w.st.Nonlocals[w.curScopeLine])
		for _, n := range stmt.Names {
			set.add(n)
		}
		return nil

	case *ast.ReturnStmt, *ast.PassStmt:
		return nil

	default:
		return &UnsupportedConstructError{Line: line, Kind: fmt.Sprintf("%T", s)}
	}
}

func (w *walker) declare(name string) {
	w.st.DecVars[w.curScopeLine][name] = true
}

// pruneScopedDecls removes from a just-closed function/class scope's
// decvars any name that was instead declared global or nonlocal in
// that same scope — those names don't get a fresh local slot.
func (w *walker) pruneScopedDecls(scopeLine int) {
	globals := lineSet(w.st.Globals[scopeLine])
	nonlocals := lineSet(w.st.Nonlocals[scopeLine])
	for name := range w.st.DecVars[scopeLine] {
		if globals.has(name) || nonlocals.has(name) {
			delete(w.st.DecVars[scopeLine], name)
		}
	}
}

// successorOf finds the line that follows line, looking first at its
// own fall-through (already wired, since if/while precede their own
// bodies in traversal order) and then, failing that, its parent's.
func (w *walker) successorOf(line int) (int, bool) {
	if n, ok := w.st.NextStmt[line]; ok {
		return n, true
	}
	if parentLine, ok := w.st.Parent[line]; ok {
		return w.successorOf(parentLine)
	}
	return 0, false
}

func (w *walker) whileFalseTarget(line int) (int, bool) {
	return w.successorOf(line)
}
