package machine

import (
	"tickstep/internal/static"
	"tickstep/internal/value"
)

func topClassFrame(s *State) (ClassFrame, bool) {
	if len(s.Stack) == 0 {
		return ClassFrame{}, false
	}
	cf, ok := s.Stack[len(s.Stack)-1].(ClassFrame)
	return cf, ok
}

// readAddr dereferences a store slot, turning a Bottom read into
// *UnboundLocal*.
func readAddr(s *State, addr int, name string) (value.Value, error) {
	v := s.Store[addr]
	if v.IsBottom() {
		return value.Value{}, errUnboundLocal(s.Lineno, name)
	}
	return v, nil
}

// resolveAddr finds the store address a name denotes in the current
// scope chain, extended with the class-frame peek rule from §4.3:
// while a class body is executing, its class_env is an extra
// frontmost scope ahead of local/global.
func resolveAddr(s *State, name string) (int, bool) {
	if cf, ok := topClassFrame(s); ok {
		if addr, ok := cf.ClassEnv[name]; ok {
			return addr, true
		}
	}
	if s.LocalEnv != nil {
		if addr, ok := s.LocalEnv[name]; ok {
			return addr, true
		}
	}
	if addr, ok := s.GlobalEnv[name]; ok {
		return addr, true
	}
	return 0, false
}

// lookupName implements name lookup (spec §4.2).
func lookupName(s *State, name string) (value.Value, error) {
	addr, ok := resolveAddr(s, name)
	if !ok {
		return value.Value{}, errUnboundLocal(s.Lineno, name)
	}
	return readAddr(s, addr, name)
}

// assignTarget implements the target-context rule of §4.2/§4.3: a
// global-declared name always binds in global_env; a name bound
// directly inside an executing class body binds in that body's
// class_env; otherwise names bind in local_env if an activation is
// current, else in global_env at module scope.
func assignTarget(s *State, st *static.Static, name string, v value.Value) {
	scope := s.ScopeLine

	if st.Globals[scope] != nil && st.Globals[scope][name] {
		writeEnv(&s.GlobalEnv, &s.Store, name, v)
		return
	}
	if cf, ok := topClassFrame(s); ok && cf.ClassDefLine == scope {
		writeEnv(&cf.ClassEnv, &s.Store, name, v)
		s.Stack[len(s.Stack)-1] = cf
		return
	}
	if s.LocalEnv != nil {
		writeEnv(&s.LocalEnv, &s.Store, name, v)
		return
	}
	writeEnv(&s.GlobalEnv, &s.Store, name, v)
}

// writeEnv overwrites an existing binding's store slot, or allocates
// a fresh one and indexes it if the name is new to this env.
func writeEnv(env *value.Env, store *[]value.Value, name string, v value.Value) {
	if *env == nil {
		*env = value.Env{}
	}
	if addr, ok := (*env)[name]; ok {
		(*store)[addr] = v
		return
	}
	(*env)[name] = alloc(store, v)
}

// lookupAttr implements obj_lookup (§4.2): own-namespace hit first
// (no MRO walk, no method binding), then an MRO walk where a Closure
// hit on an instance receiver is bound to that instance.
func lookupAttr(s *State, objAddr int, attr string) (value.Value, error) {
	obj, ok := s.Store[objAddr].AsObject()
	if !ok {
		return value.Value{}, errTypeMismatch(s.Lineno, "attribute access on a non-object value")
	}
	ns, _ := s.Store[obj.EnvAddr].AsEnvObject()
	if addr, ok := ns.Env[attr]; ok {
		return s.Store[addr], nil
	}

	var mro []int
	if obj.IsInstance {
		classObj, _ := s.Store[obj.Class].AsObject()
		mro = classObj.MRO
	} else {
		mro = obj.MRO
	}

	for _, classAddr := range mro {
		classObj, _ := s.Store[classAddr].AsObject()
		classNs, _ := s.Store[classObj.EnvAddr].AsEnvObject()
		addr, ok := classNs.Env[attr]
		if !ok {
			continue
		}
		found := s.Store[addr]
		if cl, ok := found.AsClosure(); ok && obj.IsInstance {
			return value.ClosureVal(bindMethod(cl, objAddr)), nil
		}
		return found, nil
	}
	return value.Value{}, errAttributeNotFound(s.Lineno, attr)
}

// lookupAttrAddr resolves an attribute to its store slot address
// rather than its value, for attribute-chain traversal (`a.b.c`):
// only Object values own further attributes, so the bound-method
// rebinding lookupAttr performs for Closures never applies here.
func lookupAttrAddr(s *State, objAddr int, attr string) (int, error) {
	obj, ok := s.Store[objAddr].AsObject()
	if !ok {
		return 0, errTypeMismatch(s.Lineno, "attribute access on a non-object value")
	}
	ns, _ := s.Store[obj.EnvAddr].AsEnvObject()
	if addr, ok := ns.Env[attr]; ok {
		return addr, nil
	}

	var mro []int
	if obj.IsInstance {
		classObj, _ := s.Store[obj.Class].AsObject()
		mro = classObj.MRO
	} else {
		mro = obj.MRO
	}
	for _, classAddr := range mro {
		classObj, _ := s.Store[classAddr].AsObject()
		classNs, _ := s.Store[classObj.EnvAddr].AsEnvObject()
		if addr, ok := classNs.Env[attr]; ok {
			return addr, nil
		}
	}
	return 0, errAttributeNotFound(s.Lineno, attr)
}

// bindMethod fuses the receiver into a Closure's captured env under
// its first formal's name and drops that formal, per the bound-method
// rule in §4.2.
func bindMethod(cl value.Closure, receiverAddr int) value.Closure {
	if len(cl.Params) == 0 {
		return cl
	}
	newEnv := make(value.Env, len(cl.Env)+1)
	for k, v := range cl.Env {
		newEnv[k] = v
	}
	newEnv[cl.Params[0]] = receiverAddr
	return value.Closure{DefLine: cl.DefLine, Env: newEnv, Params: cl.Params[1:]}
}

// updateAttr mutates (or creates) a binding in an object's own
// namespace, per update_obj in §4.2.
func updateAttr(s *State, objAddr int, attr string, v value.Value) error {
	obj, ok := s.Store[objAddr].AsObject()
	if !ok {
		return errTypeMismatch(s.Lineno, "attribute assignment on a non-object value")
	}
	ns, _ := s.Store[obj.EnvAddr].AsEnvObject()
	ns.Env = cloneEnv(ns.Env) // the map is shared with earlier states' stores
	writeEnv(&ns.Env, &s.Store, attr, v)
	s.Store[obj.EnvAddr] = value.EnvObject(ns)
	return nil
}

// findMRO computes the C3 linearization of a class given its base
// class store addresses, per §4.2. Each base's own MRO must already
// be computed (bases are finalized classes by construction).
func findMRO(lineno int, selfIdx int, baseIdxs []int, store []value.Value) ([]int, error) {
	if len(baseIdxs) == 0 {
		return []int{selfIdx}, nil
	}

	sequences := make([][]int, 0, len(baseIdxs)+1)
	for _, b := range baseIdxs {
		baseObj, _ := store[b].AsObject()
		seq := make([]int, len(baseObj.MRO))
		copy(seq, baseObj.MRO)
		sequences = append(sequences, seq)
	}
	bases := make([]int, len(baseIdxs))
	copy(bases, baseIdxs)
	sequences = append(sequences, bases)

	result := []int{selfIdx}
	for {
		anyNonEmpty := false
		for _, seq := range sequences {
			if len(seq) > 0 {
				anyNonEmpty = true
				break
			}
		}
		if !anyNonEmpty {
			return result, nil
		}

		found := false
		for _, seq := range sequences {
			if len(seq) == 0 {
				continue
			}
			candidate := seq[0]
			if appearsInTail(candidate, sequences) {
				continue
			}
			result = append(result, candidate)
			for i := range sequences {
				if len(sequences[i]) > 0 && sequences[i][0] == candidate {
					sequences[i] = sequences[i][1:]
				}
			}
			found = true
			break
		}
		if !found {
			return nil, errMROConflict(lineno)
		}
	}
}

func appearsInTail(candidate int, sequences [][]int) bool {
	for _, seq := range sequences {
		for _, v := range seq[minInt(1, len(seq)):] {
			if v == candidate {
				return true
			}
		}
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
