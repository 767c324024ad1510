package machine

import (
	"sort"

	"tickstep/internal/static"
	"tickstep/internal/value"
)

// Frame is either a return continuation pushed on function call, or a
// class-body marker pushed while a class statement's body executes.
type Frame interface {
	isFrame()
}

// LexicalFrame records where to resume the caller and which local env
// to restore once the callee returns.
type LexicalFrame struct {
	ReturnLine    int
	SavedLocalEnv value.Env // nil if the call happened at module scope
	// SavedScopeLine is the caller's scope line (the header line of the
	// function/class/module the caller was executing in), restored on
	// return so global/nonlocal resolution outlives the callee's own
	// activation.
	SavedScopeLine int
	// IsInit marks a frame pushed to run a constructor's __init__: its
	// return value is discarded rather than rebinding ReturnLine's
	// assignment target, since the target was already bound to the
	// freshly-allocated instance at instantiation time.
	IsInit bool
}

func (LexicalFrame) isFrame() {}

// ClassFrame marks an in-progress class body: while it sits on top of
// the stack, name bindings inside the body accumulate in ClassEnv
// rather than the surrounding local/global scope.
type ClassFrame struct {
	ClassDefLine int
	ClassEnv     value.Env
	// SavedScopeLine is the scope line in effect just before the class
	// body began executing, restored once the class-body coda fires.
	SavedScopeLine int
}

func (ClassFrame) isFrame() {}

// State is the machine state tick advances one statement at a time.
type State struct {
	Lineno    int
	GlobalEnv value.Env
	LocalEnv  value.Env // nil iff execution is at module scope
	Store     []value.Value
	Stack     []Frame
	// ScopeLine is the header line of the innermost function or class
	// scope currently executing (static.ModuleScope at module level).
	// It only changes on call/return and class-body entry/exit — unlike
	// Lineno, it is never affected by stepping through an if/while body,
	// since those are control-flow blocks, not scopes. Globals/Nonlocals
	// lookups and the class-frame-peek check in assignTarget key off
	// this field rather than re-deriving a scope from Lineno.
	ScopeLine int
}

// Clone produces an independent copy of every mutable part of State,
// so a caller can retain a state (for history/back-stepping) across a
// Tick call that would otherwise mutate shared map/slice backing
// storage in place.
func (s *State) Clone() *State {
	clone := &State{
		Lineno:    s.Lineno,
		GlobalEnv: cloneEnv(s.GlobalEnv),
		Store:     make([]value.Value, len(s.Store)),
		ScopeLine: s.ScopeLine,
	}
	copy(clone.Store, s.Store)
	if s.LocalEnv != nil {
		clone.LocalEnv = cloneEnv(s.LocalEnv)
	}
	if len(s.Stack) > 0 {
		clone.Stack = make([]Frame, len(s.Stack))
		for i, f := range s.Stack {
			switch fr := f.(type) {
			case LexicalFrame:
				clone.Stack[i] = LexicalFrame{ReturnLine: fr.ReturnLine, SavedLocalEnv: cloneEnv(fr.SavedLocalEnv), SavedScopeLine: fr.SavedScopeLine, IsInit: fr.IsInit}
			case ClassFrame:
				clone.Stack[i] = ClassFrame{ClassDefLine: fr.ClassDefLine, ClassEnv: cloneEnv(fr.ClassEnv), SavedScopeLine: fr.SavedScopeLine}
			}
		}
	}
	return clone
}

func cloneEnv(e value.Env) value.Env {
	if e == nil {
		return nil
	}
	out := make(value.Env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// InitState seeds global_env with one Bottom slot per name declared at
// module scope and positions lineno at the smallest statement line.
func InitState(st *static.Static) *State {
	names := make([]string, 0, len(st.DecVars[static.ModuleScope]))
	for name := range st.DecVars[static.ModuleScope] {
		names = append(names, name)
	}
	sort.Strings(names)

	store := make([]value.Value, 0, len(names))
	globalEnv := make(value.Env, len(names))
	for _, name := range names {
		globalEnv[name] = len(store)
		store = append(store, value.Bot())
	}

	lineno := -1
	for line := range st.Statements {
		if lineno == -1 || line < lineno {
			lineno = line
		}
	}

	return &State{
		Lineno:    lineno,
		GlobalEnv: globalEnv,
		Store:     store,
		ScopeLine: static.ModuleScope,
	}
}

// IsFixedPoint reports whether lineno is its own fall-through
// successor: execution has halted.
func IsFixedPoint(s *State, st *static.Static) bool {
	return st.NextStmt[s.Lineno] == s.Lineno
}

func alloc(store *[]value.Value, v value.Value) int {
	addr := len(*store)
	*store = append(*store, v)
	return addr
}
