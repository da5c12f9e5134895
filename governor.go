package colgraph

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"
)

// ---------------------------------------------------------------------------
// Query governor: resource limits for statement execution.
//
// MaxResultRows caps the rows a single query may produce or materialize,
// and DefaultQueryTimeout bounds queries whose caller set no deadline.
// The governor is created in Open and is read-only afterwards.
// ---------------------------------------------------------------------------

var (
	// ErrResultTooLarge is returned when a query produces more rows than
	// Options.MaxResultRows. Add a LIMIT or raise the limit.
	ErrResultTooLarge = errors.New("colgraph: result set exceeds MaxResultRows limit")

	// ErrQueryPanic is returned when statement execution panics. The panic is
	// caught at the API boundary and the DB stays usable.
	ErrQueryPanic = errors.New("colgraph: query panicked")
)

type queryGovernor struct {
	maxRows        int           // 0 = unlimited
	defaultTimeout time.Duration // 0 = no default timeout
}

// wrapContext applies the default timeout when ctx has no deadline. The
// returned cancel must always be called.
func (g *queryGovernor) wrapContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.defaultTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, g.defaultTimeout)
	}
	return ctx, func() {}
}

// checkRowCount returns ErrResultTooLarge once n exceeds the limit.
func (g *queryGovernor) checkRowCount(n int) error {
	if g.maxRows > 0 && n > g.maxRows {
		return fmt.Errorf("%w (%d)", ErrResultTooLarge, g.maxRows)
	}
	return nil
}

// safeExecute converts a panic in fn into an ErrQueryPanic error carrying
// the panic value and a stack trace.
func safeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("%w: %v\n\nstack trace:\n%s", ErrQueryPanic, r, buf[:n])
		}
	}()
	return fn()
}

// safeExecuteResult is safeExecute for functions returning a value.
func safeExecuteResult[T any](fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			var zero T
			result = zero
			err = fmt.Errorf("%w: %v\n\nstack trace:\n%s", ErrQueryPanic, r, buf[:n])
		}
	}()
	return fn()
}
