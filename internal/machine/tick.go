package machine

import (
	"tickstep/internal/ast"
	"tickstep/internal/static"
	"tickstep/internal/value"
)

// Tick is the small-step transition function: given a state and the
// static tables, it advances execution by exactly one source
// statement and returns the resulting state, or an error describing
// why execution cannot continue. It never mutates its input — the
// caller's state remains a valid point to resume or rewind to.
func Tick(state *State, st *static.Static) (*State, error) {
	s := state.Clone()

	stmt, ok := st.Statements[s.Lineno]
	if !ok {
		return nil, errUnsupportedConstruct(s.Lineno, "no statement recorded at this line")
	}

	var err error
	switch stmt := stmt.(type) {
	case *ast.AssignStmt:
		err = tickAssign(s, st, stmt)
	case *ast.WhileStmt:
		err = tickCond(s, st, stmt.Test)
	case *ast.IfStmt:
		err = tickCond(s, st, stmt.Test)
	case *ast.BreakStmt, *ast.ContinueStmt, *ast.PassStmt, *ast.GlobalStmt, *ast.NonlocalStmt:
		s.Lineno = st.NextStmt[s.Lineno]
	case *ast.FunctionDef:
		err = tickFunctionDef(s, st, stmt)
	case *ast.ClassDef:
		err = tickClassDef(s, st, stmt)
	case *ast.ReturnStmt:
		err = tickReturn(s, st, stmt)
	default:
		err = errUnsupportedConstruct(s.Lineno, "unhandled statement kind")
	}
	if err != nil {
		return nil, err
	}

	if err := finalizeClassBodies(s, st); err != nil {
		return nil, err
	}
	return s, nil
}

func tickCond(s *State, st *static.Static, test ast.Expression) error {
	lineno := s.Lineno
	v, err := eval(s, test)
	if err != nil {
		return err
	}
	if v.Type != value.BoolType {
		return errTypeMismatch(lineno, "condition must evaluate to a bool")
	}
	if v.AsBool {
		next, ok := st.TrueStmt[lineno]
		if !ok {
			return errUnsupportedConstruct(lineno, "missing true-branch target")
		}
		s.Lineno = next
	} else {
		next, ok := st.FalseStmt[lineno]
		if !ok {
			return errUnsupportedConstruct(lineno, "program has no successor for the false branch")
		}
		s.Lineno = next
	}
	return nil
}

func tickFunctionDef(s *State, st *static.Static, stmt *ast.FunctionDef) error {
	closure := value.Closure{
		DefLine: s.Lineno,
		Env:     cloneEnv(s.LocalEnv),
		Params:  append([]string(nil), stmt.Params...),
	}
	assignTarget(s, st, stmt.Name, value.ClosureVal(closure))
	s.Lineno = st.NextStmt[s.Lineno]
	return nil
}

func tickClassDef(s *State, st *static.Static, stmt *ast.ClassDef) error {
	lineno := s.Lineno
	block, ok := st.Block[lineno]
	if !ok {
		return errUnsupportedConstruct(lineno, "class has an empty body")
	}
	s.Stack = append(s.Stack, ClassFrame{ClassDefLine: lineno, ClassEnv: value.Env{}, SavedScopeLine: s.ScopeLine})
	s.ScopeLine = lineno
	s.Lineno = block[0]
	return nil
}

func tickReturn(s *State, st *static.Static, stmt *ast.ReturnStmt) error {
	var v value.Value
	if stmt.Value != nil {
		var err error
		v, err = eval(s, stmt.Value)
		if err != nil {
			return err
		}
	} else {
		v = value.None()
	}

	if len(s.Stack) == 0 {
		return errUnsupportedConstruct(s.Lineno, "return outside any call")
	}
	top, ok := s.Stack[len(s.Stack)-1].(LexicalFrame)
	if !ok {
		return errUnsupportedConstruct(s.Lineno, "return while a class body is still open")
	}
	s.Stack = s.Stack[:len(s.Stack)-1]
	s.LocalEnv = top.SavedLocalEnv
	s.ScopeLine = top.SavedScopeLine

	if !top.IsInit {
		retStmt, ok := st.Statements[top.ReturnLine].(*ast.AssignStmt)
		if !ok {
			return errUnsupportedConstruct(top.ReturnLine, "functions must be called in an assignment statement")
		}
		if err := assignValue(s, st, retStmt.Target, v); err != nil {
			return err
		}
	}
	s.Lineno = st.NextStmt[top.ReturnLine]
	return nil
}

// assignValue dispatches an assignment's target: a bare name uses the
// target-context rule, an attribute target mutates the referenced
// object's namespace regardless of class context.
func assignValue(s *State, st *static.Static, target ast.Expression, v value.Value) error {
	switch t := target.(type) {
	case *ast.Identifier:
		assignTarget(s, st, t.Value, v)
		return nil
	case *ast.AttributeExpr:
		objAddr, err := evalObjectAddr(s, t.Left)
		if err != nil {
			return err
		}
		return updateAttr(s, objAddr, t.Attr, v)
	default:
		return errUnsupportedConstruct(s.Lineno, "invalid assignment target")
	}
}

func evalArgs(s *State, exprs []ast.Expression) ([]value.Value, error) {
	out := make([]value.Value, len(exprs))
	for i, e := range exprs {
		v, err := eval(s, e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func tickAssign(s *State, st *static.Static, stmt *ast.AssignStmt) error {
	callerLine := s.Lineno

	if call, ok := stmt.Value.(*ast.CallExpression); ok {
		return tickCall(s, st, stmt, call, callerLine)
	}

	v, err := eval(s, stmt.Value)
	if err != nil {
		return err
	}
	if err := assignValue(s, st, stmt.Target, v); err != nil {
		return err
	}
	s.Lineno = st.NextStmt[callerLine]
	return nil
}

func tickCall(s *State, st *static.Static, assignStmt *ast.AssignStmt, call *ast.CallExpression, callerLine int) error {
	switch fn := call.Function.(type) {
	case *ast.Identifier:
		callee, err := lookupName(s, fn.Value)
		if err != nil {
			return err
		}
		switch callee.Type {
		case value.ClosureType:
			cl, _ := callee.AsClosure()
			args, err := evalArgs(s, call.Arguments)
			if err != nil {
				return err
			}
			return callSetup(s, st, cl, args, callerLine, false)
		case value.ObjectType:
			obj, _ := callee.AsObject()
			if obj.IsInstance {
				return errNotCallable(callerLine)
			}
			return instantiate(s, st, assignStmt, obj, call.Arguments, callerLine)
		default:
			return errNotCallable(callerLine)
		}

	case *ast.AttributeExpr:
		objAddr, err := evalObjectAddr(s, fn.Left)
		if err != nil {
			return err
		}
		method, err := lookupAttr(s, objAddr, fn.Attr)
		if err != nil {
			return err
		}
		cl, ok := method.AsClosure()
		if !ok {
			return errNotCallable(callerLine)
		}
		args, err := evalArgs(s, call.Arguments)
		if err != nil {
			return err
		}
		return callSetup(s, st, cl, args, callerLine, false)

	default:
		return errUnsupportedConstruct(callerLine, "unsupported call target")
	}
}

// callSetup implements §4.3's call-setup procedure: push a return
// continuation, build the callee's local_env from its captured
// snapshot extended with fresh slots for its own declared locals,
// bind actuals to formals, and branch into the body.
func callSetup(s *State, st *static.Static, closure value.Closure, args []value.Value, callerLine int, isInit bool) error {
	if len(closure.Params) != len(args) {
		return errArityMismatch(callerLine, len(closure.Params), len(args))
	}

	bodyLine := closure.DefLine
	block, ok := st.Block[bodyLine]
	if !ok {
		return errUnsupportedConstruct(callerLine, "function has an empty body")
	}

	bodyGlobals := st.Globals[bodyLine]
	newLocal := make(value.Env, len(closure.Env)+len(st.DecVars[bodyLine]))
	for name, addr := range closure.Env {
		if bodyGlobals != nil && bodyGlobals[name] {
			continue
		}
		newLocal[name] = addr
	}
	for name := range st.DecVars[bodyLine] {
		if _, exists := newLocal[name]; !exists {
			newLocal[name] = alloc(&s.Store, value.Bot())
		}
	}
	for i, p := range closure.Params {
		addr, ok := newLocal[p]
		if !ok {
			addr = alloc(&s.Store, value.Bot())
			newLocal[p] = addr
		}
		s.Store[addr] = args[i]
	}

	s.Stack = append(s.Stack, LexicalFrame{ReturnLine: callerLine, SavedLocalEnv: s.LocalEnv, SavedScopeLine: s.ScopeLine, IsInit: isInit})
	s.LocalEnv = newLocal
	s.ScopeLine = bodyLine
	s.Lineno = block[0]
	return nil
}

// instantiate implements §4.3's instantiation procedure. The new
// instance is bound to the call's assignment target immediately,
// mirroring how a constructor's return value is always discarded: if
// the class's MRO has an __init__, it still runs (so stepping through
// shows its body executing and its side effects on the instance take
// hold), but via a frame marked IsInit so tickReturn never overwrites
// the target with __init__'s own return value.
func instantiate(s *State, st *static.Static, assignStmt *ast.AssignStmt, classObj value.ObjectVal, argExprs []ast.Expression, callerLine int) error {
	classAddr, ok := resolveAddr(s, calleeName(assignStmt))
	if !ok {
		return errNotCallable(callerLine)
	}

	instNs := value.EnvObjectVal{Env: value.Env{}}
	instEnvAddr := alloc(&s.Store, value.EnvObject(instNs))
	instAddr := alloc(&s.Store, value.Object(value.ObjectVal{IsInstance: true, Class: classAddr, EnvAddr: instEnvAddr}))

	if err := assignValue(s, st, assignStmt.Target, s.Store[instAddr]); err != nil {
		return err
	}

	initClosure, found := findMethodInMRO(s.Store, classObj.MRO, "__init__")
	if !found {
		if len(argExprs) > 0 {
			return errMissingInit(callerLine)
		}
		s.Lineno = st.NextStmt[callerLine]
		return nil
	}

	args, err := evalArgs(s, argExprs)
	if err != nil {
		return err
	}
	bound := bindMethod(initClosure, instAddr)
	return callSetup(s, st, bound, args, callerLine, true)
}

// calleeName recovers the bare class name from an instantiation's
// call expression; tickCall only reaches instantiate from its
// bare-name branch, so this always succeeds when instantiate is reached.
func calleeName(assignStmt *ast.AssignStmt) string {
	call := assignStmt.Value.(*ast.CallExpression)
	return call.Function.(*ast.Identifier).Value
}

func findMethodInMRO(store []value.Value, mro []int, attr string) (value.Closure, bool) {
	for _, classAddr := range mro {
		classObj, ok := store[classAddr].AsObject()
		if !ok {
			continue
		}
		ns, _ := store[classObj.EnvAddr].AsEnvObject()
		if addr, ok := ns.Env[attr]; ok {
			if cl, ok := store[addr].AsClosure(); ok {
				return cl, true
			}
		}
	}
	return value.Closure{}, false
}

// finalizeClassBodies runs the class-body termination coda (§4.3)
// repeatedly, since a class may end immediately inside an enclosing
// class body that is itself ending.
func finalizeClassBodies(s *State, st *static.Static) error {
	for {
		if len(s.Stack) == 0 {
			return nil
		}
		cf, ok := s.Stack[len(s.Stack)-1].(ClassFrame)
		if !ok {
			return nil
		}
		block, ok := st.Block[cf.ClassDefLine]
		if !ok {
			return nil
		}
		if st.NextStmt[block[1]] != s.Lineno {
			return nil
		}

		s.Stack = s.Stack[:len(s.Stack)-1]
		s.ScopeLine = cf.SavedScopeLine
		envAddr := alloc(&s.Store, value.EnvObject(value.EnvObjectVal{Env: cf.ClassEnv}))

		classDef, ok := st.Statements[cf.ClassDefLine].(*ast.ClassDef)
		if !ok {
			return errUnsupportedConstruct(cf.ClassDefLine, "class frame without a class definition")
		}

		baseAddrs := make([]int, len(classDef.Bases))
		for i, b := range classDef.Bases {
			addr, ok := resolveAddr(s, b.Value)
			if !ok {
				return errUnboundLocal(cf.ClassDefLine, b.Value)
			}
			baseAddrs[i] = addr
		}

		mro, err := findMRO(cf.ClassDefLine, -1, baseAddrs, s.Store)
		if err != nil {
			return err
		}

		// The class object lives in the slot its name is bound to, so its
		// MRO head, later base lookups and instances all name the class by
		// that one address.
		assignTarget(s, st, classDef.Name, value.Object(value.ObjectVal{IsInstance: false, EnvAddr: envAddr}))
		classIdx, _ := resolveAddr(s, classDef.Name)
		mro[0] = classIdx
		s.Store[classIdx] = value.Object(value.ObjectVal{IsInstance: false, MRO: mro, EnvAddr: envAddr})
	}
}
