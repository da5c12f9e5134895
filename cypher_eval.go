package colgraph

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Expression evaluation
// ---------------------------------------------------------------------------

// evalEnv carries what an expression can read: the records bound to pattern
// variables for the current row and the statement's parameters.
type evalEnv struct {
	vars   map[string]any // tableKey(variable) → *NodeRecord | *RelRecord
	params map[string]any // normalized parameter values
}

// evalExpr evaluates an expression against the current bindings.
func evalExpr(e *Expression, env *evalEnv) (any, error) {
	switch e.Kind {
	case ExprLiteral:
		return e.LitValue, nil

	case ExprParam:
		v, ok := env.params[e.ParamName]
		if !ok {
			return nil, fmt.Errorf("%w: missing parameter $%s", ErrParameter, e.ParamName)
		}
		return v, nil

	case ExprVarRef:
		val, ok := env.vars[tableKey(e.Variable)]
		if !ok {
			return nil, typeErrorf("unbound variable %q", e.Variable)
		}
		return val, nil

	case ExprPropAccess:
		obj, ok := env.vars[tableKey(e.Object)]
		if !ok {
			return nil, typeErrorf("unbound variable %q", e.Object)
		}
		return getProperty(obj, e.Property)

	case ExprFuncCall:
		return evalFunc(e, env)

	case ExprComparison:
		return evalComparison(e, env)

	case ExprAnd:
		for i := range e.Operands {
			v, err := evalBool(&e.Operands[i], env)
			if err != nil {
				return nil, err
			}
			if !v {
				return false, nil
			}
		}
		return true, nil

	case ExprOr:
		for i := range e.Operands {
			v, err := evalBool(&e.Operands[i], env)
			if err != nil {
				return nil, err
			}
			if v {
				return true, nil
			}
		}
		return false, nil

	case ExprNot:
		v, err := evalBool(e.Inner, env)
		if err != nil {
			return nil, err
		}
		return !v, nil

	case ExprIsNull:
		v, err := evalExpr(e.Inner, env)
		if err != nil {
			return nil, err
		}
		return (v == nil) != e.Negate, nil
	}
	return nil, typeErrorf("unsupported expression kind %d", e.Kind)
}

// evalBool evaluates a predicate. NULL counts as false; any other non-bool
// value is a type error.
func evalBool(e *Expression, env *evalEnv) (bool, error) {
	val, err := evalExpr(e, env)
	if err != nil {
		return false, err
	}
	switch b := val.(type) {
	case bool:
		return b, nil
	case nil:
		return false, nil
	}
	return false, typeErrorf("%s is not a boolean", exprName(*e))
}

// evalComparison evaluates a comparison. A NULL operand makes the
// comparison false.
func evalComparison(e *Expression, env *evalEnv) (any, error) {
	left, err := evalExpr(e.Left, env)
	if err != nil {
		return nil, err
	}
	right, err := evalExpr(e.Right, env)
	if err != nil {
		return nil, err
	}
	if left == nil || right == nil {
		return false, nil
	}
	cmp, ok := compareValues(left, right)
	if !ok {
		return nil, typeErrorf("cannot compare %s with %s",
			describeValue(left), describeValue(right))
	}
	return compareResult(e.Op, cmp), nil
}

func compareResult(op CompOp, cmp int) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpNeq:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpGt:
		return cmp > 0
	case OpLte:
		return cmp <= 0
	case OpGte:
		return cmp >= 0
	}
	return false
}

func describeValue(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case *NodeRecord:
		return "node " + x.Table
	case *RelRecord:
		return "rel " + x.Table
	}
	return fmt.Sprintf("%s (%T)", FormatValue(v), v)
}

// evalFunc evaluates a scalar built-in. Aggregates are computed by the
// aggregation operator and never reach here.
func evalFunc(e *Expression, env *evalEnv) (any, error) {
	if isAggregate(e.FuncName) {
		return nil, typeErrorf("aggregate %s() is not allowed here", e.FuncName)
	}
	if len(e.Args) != 1 {
		return nil, typeErrorf("%s() requires exactly 1 argument", e.FuncName)
	}
	val, err := evalExpr(&e.Args[0], env)
	if err != nil {
		return nil, err
	}
	switch e.FuncName {
	case "id":
		switch v := val.(type) {
		case *NodeRecord:
			return v.Table + ":" + strconv.FormatUint(v.Offset, 10), nil
		case *RelRecord:
			return v.Table + ":" + strconv.FormatUint(v.Offset, 10), nil
		}
		return nil, nil
	case "label":
		switch v := val.(type) {
		case *NodeRecord:
			return v.Table, nil
		case *RelRecord:
			return v.Table, nil
		}
		return nil, nil
	}
	return nil, typeErrorf("unknown function %s()", e.FuncName)
}

// getProperty extracts a column value from a bound record.
func getProperty(obj any, prop string) (any, error) {
	switch v := obj.(type) {
	case *NodeRecord:
		val, ok := v.Get(prop)
		if !ok {
			return nil, typeErrorf("node table %s has no property %q", v.Table, prop)
		}
		return val, nil
	case *RelRecord:
		val, ok := v.Get(prop)
		if !ok {
			return nil, typeErrorf("rel table %s has no property %q", v.Table, prop)
		}
		return val, nil
	case nil:
		return nil, nil
	}
	return nil, typeErrorf("cannot read property %q of %s", prop, describeValue(obj))
}
