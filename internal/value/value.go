// Package value defines the runtime Value domain the stepper operates
// on: a small tagged union plus the arithmetic, comparison and boolean
// coercion rules the source language's operators reduce to.
package value

import (
	"fmt"
	"math"
	"math/big"

	"github.com/remyoudompheng/bigfft"
)

// Env maps a name visible in some scope to a store address. It lives
// here, not in the machine package, so both value (bound methods close
// over an Env) and machine (which owns the Store) can see the type
// without an import cycle.
type Env map[string]int

type Type int

const (
	Bottom Type = iota
	NoneType
	BoolType
	IntType
	FloatType
	StringType
	ClosureType
	EnvObjectType
	ObjectType
)

func (t Type) String() string {
	switch t {
	case Bottom:
		return "bottom"
	case NoneType:
		return "NoneType"
	case BoolType:
		return "bool"
	case IntType:
		return "int"
	case FloatType:
		return "float"
	case StringType:
		return "str"
	case ClosureType:
		return "closure"
	case EnvObjectType:
		return "envobject"
	case ObjectType:
		return "object"
	default:
		return "unknown"
	}
}

// Closure captures a function definition's header line together with
// the environment that was live at definition time (not call time),
// so nested functions see their enclosing scope's bindings as they
// stood when the def statement ran.
type Closure struct {
	DefLine int
	Env     Env
	Params  []string
}

// EnvObjectVal reifies a class body's namespace: the set of methods
// and class attributes assigned while the class statement executed.
type EnvObjectVal struct {
	Env Env
}

// ObjectVal is either a class (IsInstance false, MRO populated by C3
// linearization over its bases) or an instance of one (IsInstance
// true, Class pointing at the originating class's store address).
// EnvAddr is the store address of this object's own Env, used for
// both per-instance attributes and, for classes, class attributes.
type ObjectVal struct {
	IsInstance bool
	Class      int
	MRO        []int
	EnvAddr    int
}

// Value is a tagged union over every value this language's programs
// can hold. Operands to an operator must share a Type; the language
// never coerces Int and Float against each other.
type Value struct {
	Type    Type
	AsBool  bool
	AsInt   *big.Int
	AsFloat float64
	AsStr   string
	Obj     interface{} // Closure, EnvObjectVal or ObjectVal
}

// Bound methods are formed by attribute lookup producing a new
// Closure whose captured Env already has the receiver bound at
// formals[0] and whose Params list drops the leading parameter — see
// internal/machine's attribute lookup. There is no separate wrapper
// type; a bound method is just another Closure.

func None() Value        { return Value{Type: NoneType} }
func Bot() Value         { return Value{Type: Bottom} }
func Bool(b bool) Value  { return Value{Type: BoolType, AsBool: b} }
func Int(i *big.Int) Value {
	return Value{Type: IntType, AsInt: i}
}
func IntFromInt64(i int64) Value { return Int(big.NewInt(i)) }
func Float(f float64) Value      { return Value{Type: FloatType, AsFloat: f} }
func Str(s string) Value         { return Value{Type: StringType, AsStr: s} }

func ClosureVal(c Closure) Value     { return Value{Type: ClosureType, Obj: c} }
func EnvObject(e EnvObjectVal) Value { return Value{Type: EnvObjectType, Obj: e} }
func Object(o ObjectVal) Value       { return Value{Type: ObjectType, Obj: o} }

func (v Value) IsBottom() bool { return v.Type == Bottom }
func (v Value) IsNone() bool   { return v.Type == NoneType }

func (v Value) AsClosure() (Closure, bool) {
	c, ok := v.Obj.(Closure)
	return c, ok
}
func (v Value) AsEnvObject() (EnvObjectVal, bool) {
	e, ok := v.Obj.(EnvObjectVal)
	return e, ok
}
func (v Value) AsObject() (ObjectVal, bool) {
	o, ok := v.Obj.(ObjectVal)
	return o, ok
}

func (v Value) String() string {
	switch v.Type {
	case Bottom:
		return "<bottom>"
	case NoneType:
		return "None"
	case BoolType:
		if v.AsBool {
			return "True"
		}
		return "False"
	case IntType:
		return v.AsInt.String()
	case FloatType:
		return fmt.Sprintf("%g", v.AsFloat)
	case StringType:
		return v.AsStr
	case ClosureType:
		return fmt.Sprintf("<closure line %d>", v.Obj.(Closure).DefLine)
	case EnvObjectType:
		return "<envobject>"
	case ObjectType:
		o := v.Obj.(ObjectVal)
		if o.IsInstance {
			return "<instance>"
		}
		return "<class>"
	default:
		return "<unknown>"
	}
}

// OpError reports an operator applied to operand types or values the
// language rejects: a type mismatch, or a division/modulo by zero.
type OpError struct {
	Op  string
	msg string
}

func (e *OpError) Error() string { return e.msg }

func typeMismatch(op string, a, b Value) *OpError {
	return &OpError{Op: op, msg: fmt.Sprintf("unsupported operand type(s) for %s: %q and %q", op, a.Type, b.Type)}
}

func zeroDivision(op string) *OpError {
	return &OpError{Op: op, msg: fmt.Sprintf("%s by zero", op)}
}

// bigMulThreshold is the operand bit-length above which bigfft's
// Schönhage-Strassen multiplication wins over math/big's
// schoolbook/Karatsuba fallback; below it the constant overhead of
// bigfft's FFT setup dominates.
const bigMulThreshold = 1 << 12

func mulInt(a, b *big.Int) *big.Int {
	if a.BitLen() > bigMulThreshold && b.BitLen() > bigMulThreshold {
		return bigfft.Mul(a, b)
	}
	return new(big.Int).Mul(a, b)
}

// Add implements binary +. String is the only non-numeric type that
// supports it, and only as concatenation against another String.
func Add(a, b Value) (Value, error) {
	if a.Type != b.Type {
		return Value{}, typeMismatch("+", a, b)
	}
	switch a.Type {
	case IntType:
		return Int(new(big.Int).Add(a.AsInt, b.AsInt)), nil
	case FloatType:
		return Float(a.AsFloat + b.AsFloat), nil
	case StringType:
		return Str(a.AsStr + b.AsStr), nil
	default:
		return Value{}, typeMismatch("+", a, b)
	}
}

func Sub(a, b Value) (Value, error) {
	if a.Type != b.Type {
		return Value{}, typeMismatch("-", a, b)
	}
	switch a.Type {
	case IntType:
		return Int(new(big.Int).Sub(a.AsInt, b.AsInt)), nil
	case FloatType:
		return Float(a.AsFloat - b.AsFloat), nil
	default:
		return Value{}, typeMismatch("-", a, b)
	}
}

func Mul(a, b Value) (Value, error) {
	if a.Type != b.Type {
		return Value{}, typeMismatch("*", a, b)
	}
	switch a.Type {
	case IntType:
		return Int(mulInt(a.AsInt, b.AsInt)), nil
	case FloatType:
		return Float(a.AsFloat * b.AsFloat), nil
	default:
		return Value{}, typeMismatch("*", a, b)
	}
}

// Div implements /. Int division truncates toward zero, matching the
// reference implementation's native division (not Euclidean floor
// division).
func Div(a, b Value) (Value, error) {
	if a.Type != b.Type {
		return Value{}, typeMismatch("/", a, b)
	}
	switch a.Type {
	case IntType:
		if b.AsInt.Sign() == 0 {
			return Value{}, zeroDivision("division")
		}
		return Int(new(big.Int).Quo(a.AsInt, b.AsInt)), nil
	case FloatType:
		if b.AsFloat == 0 {
			return Value{}, zeroDivision("division")
		}
		return Float(a.AsFloat / b.AsFloat), nil
	default:
		return Value{}, typeMismatch("/", a, b)
	}
}

// FloorDiv implements //. For Int operands this is identical to Div:
// the reference implementation's floor division truncates toward zero
// for integers and only actually floors the Float case.
func FloorDiv(a, b Value) (Value, error) {
	if a.Type != b.Type {
		return Value{}, typeMismatch("//", a, b)
	}
	switch a.Type {
	case IntType:
		if b.AsInt.Sign() == 0 {
			return Value{}, zeroDivision("division")
		}
		return Int(new(big.Int).Quo(a.AsInt, b.AsInt)), nil
	case FloatType:
		if b.AsFloat == 0 {
			return Value{}, zeroDivision("division")
		}
		return Float(math.Floor(a.AsFloat / b.AsFloat)), nil
	default:
		return Value{}, typeMismatch("//", a, b)
	}
}

// Mod implements %. Sign follows the dividend (big.Int.Rem / math.Mod),
// not the divisor (big.Int.Mod), matching the reference's native %.
func Mod(a, b Value) (Value, error) {
	if a.Type != b.Type {
		return Value{}, typeMismatch("%", a, b)
	}
	switch a.Type {
	case IntType:
		if b.AsInt.Sign() == 0 {
			return Value{}, zeroDivision("modulo")
		}
		return Int(new(big.Int).Rem(a.AsInt, b.AsInt)), nil
	case FloatType:
		if b.AsFloat == 0 {
			return Value{}, zeroDivision("modulo")
		}
		return Float(math.Mod(a.AsFloat, b.AsFloat)), nil
	default:
		return Value{}, typeMismatch("%", a, b)
	}
}

func Neg(a Value) (Value, error) {
	switch a.Type {
	case IntType:
		return Int(new(big.Int).Neg(a.AsInt)), nil
	case FloatType:
		return Float(-a.AsFloat), nil
	default:
		return Value{}, &OpError{Op: "unary -", msg: fmt.Sprintf("bad operand type for unary -: %q", a.Type)}
	}
}

// Truthy mirrors the reference's bool() coercion: None and Bottom are
// falsy, zero-valued numerics and the empty string are falsy.
func Truthy(v Value) bool {
	switch v.Type {
	case Bottom, NoneType:
		return false
	case BoolType:
		return v.AsBool
	case IntType:
		return v.AsInt.Sign() != 0
	case FloatType:
		return v.AsFloat != 0
	case StringType:
		return v.AsStr != ""
	default:
		return true
	}
}

func Not(v Value) Value { return Bool(!Truthy(v)) }

// Eq implements == / !=. Values of differing Type are simply unequal
// rather than a type error, matching the reference implementation's
// derived PartialEq.
func Eq(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case Bottom, NoneType:
		return true
	case BoolType:
		return a.AsBool == b.AsBool
	case IntType:
		return a.AsInt.Cmp(b.AsInt) == 0
	case FloatType:
		return a.AsFloat == b.AsFloat
	case StringType:
		return a.AsStr == b.AsStr
	case ClosureType:
		ac, _ := a.AsClosure()
		bc, _ := b.AsClosure()
		return ac.DefLine == bc.DefLine && sameEnv(ac.Env, bc.Env)
	case EnvObjectType:
		ae, _ := a.AsEnvObject()
		be, _ := b.AsEnvObject()
		return sameEnv(ae.Env, be.Env)
	case ObjectType:
		ao, _ := a.AsObject()
		bo, _ := b.AsObject()
		// Objects are identified by the store address of their own
		// namespace, per the "no pointer-identity except for object
		// addresses" design note: two Object values are the same
		// object iff they share an env_addr.
		return ao.EnvAddr == bo.EnvAddr
	default:
		return false
	}
}

func sameEnv(a, b Env) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// Compare implements the ordering operators. Only Int, Float and
// String support ordering; any other pairing is a type error.
func Compare(op string, a, b Value) (bool, error) {
	switch op {
	case "==":
		return Eq(a, b), nil
	case "!=":
		return !Eq(a, b), nil
	}
	if a.Type != b.Type {
		return false, typeMismatch(op, a, b)
	}
	var cmp int
	switch a.Type {
	case IntType:
		cmp = a.AsInt.Cmp(b.AsInt)
	case FloatType:
		switch {
		case a.AsFloat < b.AsFloat:
			cmp = -1
		case a.AsFloat > b.AsFloat:
			cmp = 1
		default:
			cmp = 0
		}
	case StringType:
		switch {
		case a.AsStr < b.AsStr:
			cmp = -1
		case a.AsStr > b.AsStr:
			cmp = 1
		default:
			cmp = 0
		}
	default:
		return false, typeMismatch(op, a, b)
	}
	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	default:
		return false, &OpError{Op: op, msg: "unknown comparison operator " + op}
	}
}
