package colgraph

import (
	"strings"
	"sync"
)

// Row is one result row. Values follow Result.Columns; a node or rel
// returned whole is a *NodeRecord or *RelRecord.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of the named column.
func (r Row) Get(col string) (any, bool) {
	for i, c := range r.Columns {
		if c == col {
			return r.Values[i], true
		}
	}
	return nil, false
}

// String renders the row's values separated by " | ".
func (r Row) String() string {
	parts := make([]string, len(r.Values))
	for i, v := range r.Values {
		parts[i] = FormatValue(v)
	}
	return strings.Join(parts, " | ")
}

// Result is a forward-only cursor over the rows of one statement. A query
// result holds a read snapshot until it is exhausted or closed, so callers
// must Close results they do not drain.
type Result struct {
	columns []string

	// exactly one of pull and rows is used
	pull func() ([]any, bool, error)
	rows [][]any

	mu      sync.Mutex
	cur     []any
	err     error
	done    bool
	emitted int
	release func()          // releases the read snapshot
	finish  func(rows int) // called once with the number of rows produced
}

func newRowsResult(columns []string, rows [][]any) *Result {
	return &Result{columns: columns, rows: rows}
}

// newMessageResult is the result of DDL and COPY: one row in a
// "result" column.
func newMessageResult(msg string) *Result {
	return newRowsResult([]string{"result"}, [][]any{{msg}})
}

// Columns returns the output column names.
func (r *Result) Columns() []string { return r.columns }

// Next advances to the next row.
func (r *Result) Next() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return false
	}
	if r.pull != nil {
		vals, ok, err := r.pull()
		if err != nil || !ok {
			r.err = err
			r.finishLocked()
			return false
		}
		r.cur = vals
	} else {
		if len(r.rows) == 0 {
			r.finishLocked()
			return false
		}
		r.cur, r.rows = r.rows[0], r.rows[1:]
	}
	r.emitted++
	return true
}

// Row returns the current row. Only valid after Next returns true.
func (r *Result) Row() Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Row{Columns: r.columns, Values: r.cur}
}

// Err returns the error that ended iteration, if any.
func (r *Result) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close releases the result. It is safe to call more than once.
func (r *Result) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishLocked()
	return nil
}

// onFinish sets the function called once the result is exhausted or
// closed. If that already happened, fn runs immediately.
func (r *Result) onFinish(fn func(rows int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		fn(r.emitted)
		return
	}
	r.finish = fn
}

func (r *Result) isDone() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *Result) finishLocked() {
	if r.done {
		return
	}
	r.done = true
	r.cur = nil
	r.rows = nil
	if r.release != nil {
		r.release()
		r.release = nil
	}
	if r.finish != nil {
		r.finish(r.emitted)
		r.finish = nil
	}
}

// Collect drains the result into memory and closes it.
func (r *Result) Collect() ([]Row, error) {
	defer r.Close()
	var out []Row
	for r.Next() {
		out = append(out, r.Row())
	}
	return out, r.Err()
}
