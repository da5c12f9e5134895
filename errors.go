package colgraph

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by the public API wraps exactly one of
// these, so callers can branch with errors.Is.
var (
	// ErrSchema is returned for DDL conflicts: duplicate table names, unknown
	// endpoint tables, bad primary keys, repeated columns.
	ErrSchema = errors.New("colgraph: schema error")

	// ErrConstraint is returned when an insert violates primary-key uniqueness
	// or a column's declared type.
	ErrConstraint = errors.New("colgraph: constraint violation")

	// ErrReferential is returned when a relationship endpoint does not exist
	// in the referenced node table.
	ErrReferential = errors.New("colgraph: referential integrity violation")

	// ErrLoad is returned by bulk loads. The concrete error is a *LoadError.
	ErrLoad = errors.New("colgraph: load failed")

	// ErrParameter is returned when a query references a $param that was
	// not supplied at execution time.
	ErrParameter = errors.New("colgraph: parameter error")

	// ErrType is returned for invalid property or variable references and
	// for comparisons between incompatible types.
	ErrType = errors.New("colgraph: type error")

	// ErrNotFound is returned when a statement names a table that does not exist.
	ErrNotFound = errors.New("colgraph: not found")

	// ErrSyntax is returned when statement text cannot be parsed.
	ErrSyntax = errors.New("colgraph: syntax error")

	// ErrClosed is returned by every operation on a closed DB, Conn or Result.
	ErrClosed = errors.New("colgraph: closed")
)

// LoadError describes the row that made a bulk load fail. The load that
// produced it committed nothing.
//
// A LoadError matches ErrLoad and also unwraps to its cause, so
// errors.Is(err, ErrReferential) holds for a load that failed on a dangling
// endpoint.
type LoadError struct {
	Table  string // destination table
	Row    int    // 1-based data row (header excluded)
	Line   int    // source line when known, else 0
	Column string // offending column when known
	Err    error  // underlying cause
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("colgraph: load into %s failed at row %d", e.Table, e.Row)
	if e.Line > 0 {
		msg += fmt.Sprintf(" (line %d)", e.Line)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(", column %s", e.Column)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports ErrLoad as a match so callers need not know the concrete type.
func (e *LoadError) Is(target error) bool { return target == ErrLoad }

func (e *LoadError) Unwrap() error { return e.Err }

func schemaErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrSchema}, args...)...)
}

func constraintErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConstraint}, args...)...)
}

func referentialErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrReferential}, args...)...)
}

func typeErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrType}, args...)...)
}

func notFoundErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

func syntaxErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrSyntax}, args...)...)
}
