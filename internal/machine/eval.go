package machine

import (
	"math/big"

	"tickstep/internal/ast"
	"tickstep/internal/value"
)

// eval is the pure expression evaluator the stepper uses for every
// non-call right-hand side: names, constants, unary/binary operators
// and attribute reads. Call expressions are handled by the dispatcher
// in tick.go, since they mutate control flow rather than reducing to
// a value in place.
func eval(s *State, expr ast.Expression) (value.Value, error) {
	switch e := expr.(type) {
	case *ast.Identifier:
		return lookupName(s, e.Value)

	case *ast.IntegerLiteral:
		n, ok := new(big.Int).SetString(e.Value, 10)
		if !ok {
			return value.Value{}, errTypeMismatch(s.Lineno, "malformed integer literal "+e.Value)
		}
		return value.Int(n), nil

	case *ast.FloatLiteral:
		return value.Float(e.Value), nil

	case *ast.StringLiteral:
		return value.Str(e.Value), nil

	case *ast.BooleanLiteral:
		return value.Bool(e.Value), nil

	case *ast.NoneLiteral:
		return value.None(), nil

	case *ast.PrefixExpression:
		right, err := eval(s, e.Right)
		if err != nil {
			return value.Value{}, err
		}
		switch e.Operator {
		case "-":
			v, err := value.Neg(right)
			if err != nil {
				return value.Value{}, errTypeMismatch(s.Lineno, err.Error())
			}
			return v, nil
		case "not":
			if right.Type != value.BoolType {
				return value.Value{}, errTypeMismatch(s.Lineno, "operand to 'not' must be a bool")
			}
			return value.Bool(!right.AsBool), nil
		default:
			return value.Value{}, errUnsupportedConstruct(s.Lineno, "unary operator "+e.Operator)
		}

	case *ast.InfixExpression:
		return evalInfix(s, e)

	case *ast.AttributeExpr:
		objAddr, err := evalObjectAddr(s, e.Left)
		if err != nil {
			return value.Value{}, err
		}
		return lookupAttr(s, objAddr, e.Attr)

	default:
		return value.Value{}, errUnsupportedConstruct(s.Lineno, "expression of unhandled kind")
	}
}

// evalObjectAddr evaluates an expression that must denote an object
// (the left side of an attribute access) and returns its store
// address, rather than the dereferenced Value, so callers like
// lookupAttr/updateAttr can chain further attribute resolution and
// mutation through it.
func evalObjectAddr(s *State, expr ast.Expression) (int, error) {
	switch e := expr.(type) {
	case *ast.Identifier:
		addr, ok := resolveAddr(s, e.Value)
		if !ok {
			return 0, errUnboundLocal(s.Lineno, e.Value)
		}
		if s.Store[addr].Type != value.ObjectType {
			return 0, errTypeMismatch(s.Lineno, "attribute access on a non-object value")
		}
		return addr, nil

	case *ast.AttributeExpr:
		parentAddr, err := evalObjectAddr(s, e.Left)
		if err != nil {
			return 0, err
		}
		return lookupAttrAddr(s, parentAddr, e.Attr)

	default:
		return 0, errTypeMismatch(s.Lineno, "expected an object expression")
	}
}

func evalInfix(s *State, e *ast.InfixExpression) (value.Value, error) {
	left, err := eval(s, e.Left)
	if err != nil {
		return value.Value{}, err
	}

	if e.Operator == "and" || e.Operator == "or" {
		right, err := eval(s, e.Right)
		if err != nil {
			return value.Value{}, err
		}
		// §3.1: boolean coercion is explicit — only Bool coerces to a
		// boolean here; eager evaluation means both operands are
		// checked even though short-circuiting would only need one.
		if left.Type != value.BoolType {
			return value.Value{}, errTypeMismatch(s.Lineno, "operand to '"+e.Operator+"' must be a bool")
		}
		if right.Type != value.BoolType {
			return value.Value{}, errTypeMismatch(s.Lineno, "operand to '"+e.Operator+"' must be a bool")
		}
		if e.Operator == "and" {
			return value.Bool(left.AsBool && right.AsBool), nil
		}
		return value.Bool(left.AsBool || right.AsBool), nil
	}

	right, err := eval(s, e.Right)
	if err != nil {
		return value.Value{}, err
	}

	switch e.Operator {
	case "+":
		v, err := value.Add(left, right)
		return v, wrapOpErr(s, err)
	case "-":
		v, err := value.Sub(left, right)
		return v, wrapOpErr(s, err)
	case "*":
		v, err := value.Mul(left, right)
		return v, wrapOpErr(s, err)
	case "/":
		v, err := value.Div(left, right)
		return v, wrapOpErr(s, err)
	case "//":
		v, err := value.FloorDiv(left, right)
		return v, wrapOpErr(s, err)
	case "%":
		v, err := value.Mod(left, right)
		return v, wrapOpErr(s, err)
	case "==", "!=", "<", "<=", ">", ">=":
		res, err := value.Compare(e.Operator, left, right)
		if err != nil {
			return value.Value{}, wrapOpErr(s, err)
		}
		return value.Bool(res), nil
	default:
		return value.Value{}, errUnsupportedConstruct(s.Lineno, "binary operator "+e.Operator)
	}
}

func wrapOpErr(s *State, err error) error {
	if err == nil {
		return nil
	}
	if opErr, ok := err.(*value.OpError); ok {
		if opErr.Op == "division" || opErr.Op == "modulo" {
			return errZeroDivision(s.Lineno, opErr.Error())
		}
		return errTypeMismatch(s.Lineno, opErr.Error())
	}
	return err
}
