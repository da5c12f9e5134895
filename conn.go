package colgraph

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Conn is a session on a DB. Operations on one Conn are serialized; use
// several Conns to run queries in parallel. A Conn is cheap to create.
type Conn struct {
	db *DB

	mu     sync.Mutex
	closed bool
	open   []*Result // streaming results that may still hold a snapshot
}

// Connect returns a new connection to the database.
func (db *DB) Connect() (*Conn, error) {
	if db.isClosed() {
		return nil, ErrClosed
	}
	return &Conn{db: db}, nil
}

// PreparedStatement is a parsed and bound statement. It is immutable and
// may be executed any number of times, from any Conn of the same DB.
type PreparedStatement struct {
	text string
	stmt Statement
	bq   *boundQuery // nil unless stmt is a query
}

// Text returns the statement text.
func (ps *PreparedStatement) Text() string { return ps.text }

// Columns returns the output columns of a query, or ["result"] for DDL and COPY.
func (ps *PreparedStatement) Columns() []string {
	if ps.bq != nil {
		return ps.bq.columns
	}
	return []string{"result"}
}

// Params returns the names of the parameters the statement references.
func (ps *PreparedStatement) Params() []string {
	if ps.bq == nil {
		return nil
	}
	return append([]string(nil), ps.bq.params...)
}

// Prepare parses and binds a single statement.
func (c *Conn) Prepare(text string) (*PreparedStatement, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.db.prepare(text)
}

func (db *DB) prepare(text string) (*PreparedStatement, error) {
	st, err := db.parseCached(text)
	if err != nil {
		return nil, err
	}
	return db.prepareStatement(text, st)
}

func (db *DB) prepareStatement(text string, st Statement) (*PreparedStatement, error) {
	ps := &PreparedStatement{text: text, stmt: st}
	if q, ok := st.(*CypherQuery); ok {
		bq, err := db.bindQuery(text, q)
		if err != nil {
			return nil, err
		}
		ps.bq = bq
	}
	return ps, nil
}

// Exec parses and runs one statement of any kind. params may be nil.
// The caller must Close the result.
func (c *Conn) Exec(ctx context.Context, text string, params map[string]any) (*Result, error) {
	ps, err := c.Prepare(text)
	if err != nil {
		c.db.metrics.QueryErrorTotal.Add(1)
		return nil, err
	}
	return c.Execute(ctx, ps, params)
}

// Query runs a MATCH query. Other statement kinds are rejected.
func (c *Conn) Query(ctx context.Context, text string, params map[string]any) (*Result, error) {
	ps, err := c.Prepare(text)
	if err != nil {
		c.db.metrics.QueryErrorTotal.Add(1)
		return nil, err
	}
	if ps.bq == nil {
		return nil, syntaxErrorf("Query expects a MATCH statement; use Exec for DDL and COPY")
	}
	return c.Execute(ctx, ps, params)
}

// Execute runs a prepared statement with the given parameters.
func (c *Conn) Execute(ctx context.Context, ps *PreparedStatement, params map[string]any) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.db.isClosed() {
		return nil, ErrClosed
	}
	res, err := safeExecuteResult(func() (*Result, error) {
		return c.execute(ctx, ps, params)
	})
	if err != nil {
		c.db.metrics.QueryErrorTotal.Add(1)
		c.db.log.Debug("statement failed", "statement", truncateQuery(ps.text, 200), "error", err)
		return nil, err
	}
	return res, nil
}

// execute dispatches one prepared statement. c.mu is held.
func (c *Conn) execute(ctx context.Context, ps *PreparedStatement, params map[string]any) (*Result, error) {
	db := c.db
	start := time.Now()
	db.metrics.StatementsTotal.Add(1)

	if ps.bq != nil {
		db.metrics.QueriesTotal.Add(1)
		res, err := db.executeQuery(ctx, ps.bq, params)
		if err != nil {
			return nil, err
		}
		res.onFinish(func(rows int) {
			db.observeStatement(ps.text, time.Since(start), rows)
		})
		if res.pull != nil {
			c.trackResult(res)
		}
		return res, nil
	}

	// Mutations must not wait behind this Conn's own snapshots.
	c.closeOpenResults()

	msg, err := db.executeMutation(ctx, ps.stmt)
	if err != nil {
		return nil, err
	}
	d := time.Since(start)
	db.observeStatement(ps.text, d, 1)
	db.log.Debug("statement executed", "statement", truncateQuery(ps.text, 200), "duration", d.String())
	return newMessageResult(msg), nil
}

// executeMutation runs DDL or COPY and returns the message row.
func (db *DB) executeMutation(ctx context.Context, st Statement) (string, error) {
	switch s := st.(type) {
	case *CreateNodeTableStmt:
		created, err := db.createNodeTable(ctx,
			NodeTableSchema{Name: s.Name, Columns: s.Columns, PrimaryKey: s.PrimaryKey}, s.IfNotExists)
		if err != nil {
			return "", err
		}
		return tableCreatedMessage(s.Name, created), nil

	case *CreateRelTableStmt:
		created, err := db.createRelTable(ctx,
			RelTableSchema{Name: s.Name, From: s.From, To: s.To, Columns: s.Columns}, s.IfNotExists)
		if err != nil {
			return "", err
		}
		return tableCreatedMessage(s.Name, created), nil

	case *CopyStmt:
		// Fail fast on a bad table name before touching the file.
		if !db.catalog.exists(s.Table) {
			return "", notFoundErrorf("table %q does not exist", s.Table)
		}
		src, err := OpenFileSource(s.Path, s.Options)
		if err != nil {
			return "", err
		}
		defer src.Close()
		n, err := db.copyFrom(ctx, s.Table, src)
		if err != nil {
			return "", err
		}
		return CopyResult{Table: s.Table, Rows: n}.String(), nil
	}
	return "", fmt.Errorf("colgraph: unsupported statement %T", st)
}

func tableCreatedMessage(name string, created bool) string {
	if created {
		return fmt.Sprintf("Table %s has been created.", name)
	}
	return fmt.Sprintf("Table %s already exists.", name)
}

// CopyFrom bulk loads rows from src into table in one atomic write.
// src is not closed.
func (c *Conn) CopyFrom(ctx context.Context, table string, src RowSource) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	c.closeOpenResults()
	start := time.Now()
	c.db.metrics.StatementsTotal.Add(1)
	n, err := safeExecuteResult(func() (uint64, error) {
		return c.db.copyFrom(ctx, table, src)
	})
	if err != nil {
		c.db.metrics.QueryErrorTotal.Add(1)
		return 0, err
	}
	c.db.observeStatement("COPY "+table+" FROM <source>", time.Since(start), int(n))
	return n, nil
}

// ExecScript runs ';'-separated statements in order and stops at the first
// failure. Query results are materialized so that later statements can
// mutate. The returned results correspond to the statements that ran.
func (c *Conn) ExecScript(ctx context.Context, script string, params map[string]any) ([]*Result, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	stmts, err := parseScript(script)
	if err != nil {
		c.db.metrics.QueryErrorTotal.Add(1)
		return nil, err
	}
	var out []*Result
	for i, st := range stmts {
		ps, err := c.db.prepareStatement(fmt.Sprintf("%s (statement %d)", truncateQuery(script, 80), i+1), st)
		if err != nil {
			c.db.metrics.QueryErrorTotal.Add(1)
			return out, fmt.Errorf("statement %d: %w", i+1, err)
		}
		res, err := c.Execute(ctx, ps, params)
		if err != nil {
			return out, fmt.Errorf("statement %d: %w", i+1, err)
		}
		cols := res.Columns()
		rows, err := res.Collect()
		if err != nil {
			return out, fmt.Errorf("statement %d: %w", i+1, err)
		}
		vals := make([][]any, len(rows))
		for j, r := range rows {
			vals[j] = r.Values
		}
		out = append(out, newRowsResult(cols, vals))
	}
	return out, nil
}

// Close closes the connection and any results it still has open.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closeOpenResults()
	c.closed = true
	return nil
}

func (c *Conn) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.db.isClosed() {
		return ErrClosed
	}
	return nil
}

// trackResult remembers a streaming result, dropping finished ones.
func (c *Conn) trackResult(res *Result) {
	live := c.open[:0]
	for _, r := range c.open {
		if !r.isDone() {
			live = append(live, r)
		}
	}
	c.open = append(live, res)
}

// closeOpenResults closes this Conn's streaming results. c.mu is held.
func (c *Conn) closeOpenResults() {
	for _, r := range c.open {
		_ = r.Close()
	}
	c.open = c.open[:0]
}
