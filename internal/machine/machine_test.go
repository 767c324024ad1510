package machine

import (
	"strings"
	"testing"

	"tickstep/internal/lexer"
	"tickstep/internal/parser"
	"tickstep/internal/static"
	"tickstep/internal/value"
)

// parse lexes and parses source text into a Static table set, failing
// the test on any parser error - every fixture here is expected to be
// syntactically valid.
func parse(t *testing.T, src string) *static.Static {
	t.Helper()
	l := lexer.New(src)
	p := parser.New(l)
	module := p.ParseModule()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors: %s", strings.Join(errs, "; "))
	}
	st, err := static.Preprocess(module)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	return st
}

// runToFixedPoint repeatedly ticks from InitState until lineno is its
// own successor, or returns the error the offending tick produced.
// The module's last statement is that fixed point and is never
// executed, so fixtures whose final statement matters end with a pass.
func runToFixedPoint(t *testing.T, st *static.Static) (*State, error) {
	t.Helper()
	s := InitState(st)
	for i := 0; !IsFixedPoint(s, st); i++ {
		if i > 10000 {
			t.Fatalf("did not reach a fixed point within 10000 ticks")
		}
		next, err := Tick(s, st)
		if err != nil {
			return s, err
		}
		s = next
	}
	return s, nil
}

func globalInt(t *testing.T, s *State, name string) *value.Value {
	t.Helper()
	addr, ok := s.GlobalEnv[name]
	if !ok {
		t.Fatalf("name %q never bound at module scope", name)
	}
	v := s.Store[addr]
	return &v
}

func TestRecursionAndLoop(t *testing.T) {
	src := `i=0
s=1.0
while i<3:
    s=s+5.0
    i=i+1
def fib(x):
    if x==0:
        return 0
    if x==1:
        return 1
    a=fib(x-1)
    b=fib(x-2)
    return a+b
z=fib(5)
pass
`
	st := parse(t, src)
	final, err := runToFixedPoint(t, st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	z := globalInt(t, final, "z")
	if z.Type != value.IntType || z.AsInt.Int64() != 5 {
		t.Fatalf("z = %v, want Int(5)", z)
	}
	i := globalInt(t, final, "i")
	if i.Type != value.IntType || i.AsInt.Int64() != 3 {
		t.Fatalf("i = %v, want Int(3)", i)
	}
}

func TestClosureCapturesDefinitionTimeEnv(t *testing.T) {
	src := `def f(x):
    def g(y):
        return x+y
    return g
a=f(2)
b=a(3)
pass
`
	st := parse(t, src)
	final, err := runToFixedPoint(t, st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b := globalInt(t, final, "b")
	if b.Type != value.IntType || b.AsInt.Int64() != 5 {
		t.Fatalf("b = %v, want Int(5)", b)
	}
}

func TestClassAttributeOverrideViaAliasing(t *testing.T) {
	src := `x=3
class A:
    x=x+1
    y=6
    z=x+2
B=A
B.x=10
d=A.z
pass
`
	st := parse(t, src)
	final, err := runToFixedPoint(t, st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := globalInt(t, final, "d")
	if d.Type != value.IntType || d.AsInt.Int64() != 6 {
		t.Fatalf("d = %v, want Int(6)", d)
	}

	aAddr, ok := final.GlobalEnv["A"]
	if !ok {
		t.Fatalf("A never bound at module scope")
	}
	aObj, ok := final.Store[aAddr].AsObject()
	if !ok {
		t.Fatalf("A is not an object value")
	}
	ns, _ := final.Store[aObj.EnvAddr].AsEnvObject()
	xAddr, ok := ns.Env["x"]
	if !ok {
		t.Fatalf("A has no class attribute x")
	}
	xv := final.Store[xAddr]
	if xv.Type != value.IntType || xv.AsInt.Int64() != 10 {
		t.Fatalf("A.x = %v, want Int(10) (B is an alias of A)", xv)
	}
}

func TestMRODiamond(t *testing.T) {
	src := `class A:
    pass
class B(A):
    pass
class C(A):
    pass
class D(B,C):
    pass
`
	st := parse(t, src)
	final, err := runToFixedPoint(t, st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := []string{"D", "B", "C", "A"}
	addrs := make([]int, len(names))
	for i, n := range names {
		addr, ok := final.GlobalEnv[n]
		if !ok {
			t.Fatalf("%s never bound at module scope", n)
		}
		addrs[i] = addr
	}

	dObj, ok := final.Store[addrs[0]].AsObject()
	if !ok {
		t.Fatalf("D is not an object value")
	}
	if len(dObj.MRO) != 4 {
		t.Fatalf("D.mro has length %d, want 4: %v", len(dObj.MRO), dObj.MRO)
	}
	for i, want := range addrs {
		if dObj.MRO[i] != want {
			t.Fatalf("D.mro[%d] = %d, want %d (%s); full mro=%v", i, dObj.MRO[i], want, names[i], dObj.MRO)
		}
	}
}

func TestBoundMethodViaMRO(t *testing.T) {
	src := `class A:
    def m(self):
        return "A"
class B(A):
    pass
b=B()
r=b.m()
pass
`
	st := parse(t, src)
	final, err := runToFixedPoint(t, st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := globalInt(t, final, "r")
	if r.Type != value.StringType || r.AsStr != "A" {
		t.Fatalf("r = %v, want String(\"A\")", r)
	}
}

func TestInstantiationWithoutInit(t *testing.T) {
	src := `class B:
    def m(self):
        return 1
b=B()
r=b.m()
pass
`
	st := parse(t, src)
	final, err := runToFixedPoint(t, st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := globalInt(t, final, "r")
	if r.Type != value.IntType || r.AsInt.Int64() != 1 {
		t.Fatalf("r = %v, want Int(1)", r)
	}
}

func TestUnboundLocalError(t *testing.T) {
	src := `def f():
    x=y
    y=1
    return None
_=f()
pass
`
	st := parse(t, src)
	_, err := runToFixedPoint(t, st)
	if err == nil {
		t.Fatalf("expected an UnboundLocal error, got none")
	}
	merr, ok := err.(*MachineError)
	if !ok {
		t.Fatalf("expected *MachineError, got %T: %v", err, err)
	}
	if merr.Kind != "UnboundLocal" {
		t.Fatalf("error kind = %q, want UnboundLocal", merr.Kind)
	}
}

func TestBooleanConnectivesRejectNonBoolOperands(t *testing.T) {
	cases := []string{
		"x = 1 and True\npass\n",
		"x = True or 0\npass\n",
		"x = not 1\npass\n",
	}
	for _, src := range cases {
		st := parse(t, src)
		_, err := runToFixedPoint(t, st)
		if err == nil {
			t.Fatalf("src %q: expected a TypeMismatch error, got none", src)
		}
		merr, ok := err.(*MachineError)
		if !ok {
			t.Fatalf("src %q: expected *MachineError, got %T: %v", src, err, err)
		}
		if merr.Kind != "TypeMismatch" {
			t.Fatalf("src %q: error kind = %q, want TypeMismatch", src, merr.Kind)
		}
	}
}

func TestGlobalDeclarationInsideNestedIf(t *testing.T) {
	src := `x=0
def f():
    global x
    if True:
        x=5
    return None
_=f()
pass
`
	st := parse(t, src)
	final, err := runToFixedPoint(t, st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	x := globalInt(t, final, "x")
	if x.Type != value.IntType || x.AsInt.Int64() != 5 {
		t.Fatalf("x = %v, want Int(5) (global x=5 inside a nested if must bind to global_env)", x)
	}
}

func TestClassBodyAssignmentInsideNestedIf(t *testing.T) {
	src := `class A:
    if True:
        y=1
pass
`
	st := parse(t, src)
	final, err := runToFixedPoint(t, st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := final.GlobalEnv["y"]; ok {
		t.Fatalf("y leaked into global_env; it must bind inside A's class namespace instead")
	}
	aAddr, ok := final.GlobalEnv["A"]
	if !ok {
		t.Fatalf("A never bound at module scope")
	}
	aObj, ok := final.Store[aAddr].AsObject()
	if !ok {
		t.Fatalf("A is not an object value")
	}
	ns, _ := final.Store[aObj.EnvAddr].AsEnvObject()
	yAddr, ok := ns.Env["y"]
	if !ok {
		t.Fatalf("A has no class attribute y; got namespace %v", ns.Env)
	}
	yv := final.Store[yAddr]
	if yv.Type != value.IntType || yv.AsInt.Int64() != 1 {
		t.Fatalf("A.y = %v, want Int(1)", yv)
	}
}

func TestDeterminismOfTick(t *testing.T) {
	src := `x=1
y=x+1
`
	st := parse(t, src)
	s := InitState(st)
	a, errA := Tick(s, st)
	b, errB := Tick(s, st)
	if errA != nil || errB != nil {
		t.Fatalf("unexpected errors: %v, %v", errA, errB)
	}
	if a.Lineno != b.Lineno {
		t.Fatalf("two ticks from the same state disagree on lineno: %d vs %d", a.Lineno, b.Lineno)
	}
	if len(a.Store) != len(b.Store) {
		t.Fatalf("two ticks from the same state disagree on store size: %d vs %d", len(a.Store), len(b.Store))
	}
}

func TestStoreGrowsMonotonically(t *testing.T) {
	src := `x=1
y=2
z=x+y
`
	st := parse(t, src)
	s := InitState(st)
	for !IsFixedPoint(s, st) {
		before := len(s.Store)
		next, err := Tick(s, st)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(next.Store) < before {
			t.Fatalf("store shrank from %d to %d", before, len(next.Store))
		}
		s = next
	}
}
