package colgraph

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Value coercion
// ---------------------------------------------------------------------------

// toInt64 converts any Go integer (and integral json.Number) to int64.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// toFloat64 attempts to convert a value to float64 for numeric comparisons.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// isNumeric reports whether v is an integer or float value.
func isNumeric(v any) bool {
	_, ok := toFloat64(v)
	return ok
}

// intRange returns the inclusive bounds of an integer column type.
func intRange(t DataType) (int64, int64) {
	switch t {
	case TypeInt32:
		return math.MinInt32, math.MaxInt32
	case TypeInt16:
		return math.MinInt16, math.MaxInt16
	case TypeInt8:
		return math.MinInt8, math.MaxInt8
	case TypeUint8:
		return 0, math.MaxUint8
	}
	return math.MinInt64, math.MaxInt64
}

// narrowInt returns n as the Go type that backs column type t.
func narrowInt(t DataType, n int64) (any, error) {
	lo, hi := intRange(t)
	if n < lo || n > hi {
		return nil, constraintErrorf("value %d out of range for %s", n, t)
	}
	switch t {
	case TypeInt32:
		return int32(n), nil
	case TypeInt16:
		return int16(n), nil
	case TypeInt8:
		return int8(n), nil
	case TypeUint8:
		return uint8(n), nil
	}
	return n, nil
}

// coerceValue converts a Go value into the canonical representation for
// column type t. It never converts between strings and numbers; use
// parseField for text input.
func coerceValue(t DataType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeInt64, TypeInt32, TypeInt16, TypeInt8, TypeUint8:
		if n, ok := toInt64(v); ok {
			return narrowInt(t, n)
		}
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<63 {
			return narrowInt(t, int64(f))
		}
	case TypeDouble:
		if f, ok := toFloat64(v); ok {
			return f, nil
		}
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, constraintErrorf("value %v (%T) does not match column type %s", v, v, t)
}

// parseField parses delimited-text input for column type t. An empty field
// is NULL.
func parseField(t DataType, s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	switch t {
	case TypeString:
		return s, nil
	case TypeInt64, TypeInt32, TypeInt16, TypeInt8, TypeUint8:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, constraintErrorf("cannot parse %q as %s", s, t)
		}
		return narrowInt(t, n)
	case TypeDouble:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, constraintErrorf("cannot parse %q as %s", s, t)
		}
		return f, nil
	case TypeBool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, constraintErrorf("cannot parse %q as %s", s, t)
		}
		return b, nil
	}
	return nil, constraintErrorf("unsupported column type %s", t)
}

// normalizeParam converts a caller-supplied parameter into one of the
// executor's scalar types: string, int64, float64, bool or nil.
func normalizeParam(name string, v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int64, float64:
		return v, nil
	case float32:
		return float64(x), nil
	}
	if n, ok := toInt64(v); ok {
		return n, nil
	}
	return nil, fmt.Errorf("%w: parameter $%s has unsupported type %T", ErrParameter, name, v)
}

// ---------------------------------------------------------------------------
// Value comparison
// ---------------------------------------------------------------------------

// compareValues compares two non-nil scalars. The second result is false when
// the values are of incomparable types (e.g. STRING vs INT64).
// Integers compare exactly; mixed integer/float compares as float64.
func compareValues(a, b any) (int, bool) {
	if ai, ok := toInt64(a); ok {
		if bi, ok := toInt64(b); ok {
			switch {
			case ai < bi:
				return -1, true
			case ai > bi:
				return 1, true
			}
			return 0, true
		}
	}
	af, aOk := toFloat64(a)
	bf, bOk := toFloat64(b)
	if aOk && bOk {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}

	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(as, bs), true
	}

	ab, aBool := a.(bool)
	bb, bBool := b.(bool)
	if aBool && bBool {
		switch {
		case ab == bb:
			return 0, true
		case !ab:
			return -1, true
		}
		return 1, true
	}

	an, aNode := a.(*NodeRecord)
	bn, bNode := b.(*NodeRecord)
	if aNode && bNode && an.Table == bn.Table {
		return compareOffsets(an.Offset, bn.Offset), true
	}
	ar, aRel := a.(*RelRecord)
	br, bRel := b.(*RelRecord)
	if aRel && bRel && ar.Table == br.Table {
		return compareOffsets(ar.Offset, br.Offset), true
	}
	return 0, false
}

func compareOffsets(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// typeRank orders values of different types for sorting: numbers, strings,
// bools, records, then NULL.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 5
	case string:
		return 1
	case bool:
		return 2
	case *NodeRecord, *RelRecord:
		return 3
	}
	if isNumeric(v) {
		return 0
	}
	return 4
}

// sortCompare is a total order used by ORDER BY. NULL sorts after every
// other value in ascending order.
func sortCompare(a, b any) int {
	if cmp, ok := compareNonNil(a, b); ok {
		return cmp
	}
	ra, rb := typeRank(a), typeRank(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func compareNonNil(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	return compareValues(a, b)
}

// ---------------------------------------------------------------------------
// Display
// ---------------------------------------------------------------------------

// FormatValue renders a result value as display text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	}
	if n, ok := toInt64(v); ok {
		return strconv.FormatInt(n, 10)
	}
	return fmt.Sprint(v)
}
