package colgraph

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"
)

// ---------------------------------------------------------------------------
// Bulk loader: COPY <table> FROM <source>.
//
// Source rows are read in batches of Options.LoadBatchSize, parsed
// concurrently, then inserted in source order. The whole load runs in one
// bbolt write transaction: any failing row rolls back every row of the call.
// ---------------------------------------------------------------------------

// loadTarget is a destination field of a load: a node table column, or for
// rel tables the FROM/TO primary keys followed by the extra columns.
type loadTarget struct {
	name     string
	typ      DataType
	required bool // primary key or rel endpoint: NULL is rejected
}

type loadPlan struct {
	table   string
	targets []loadTarget
	node    *NodeTableSchema
	rel     *RelTableSchema

	fields []int // target index → source field index, -1 when absent
	named  bool  // fields were matched by name
}

// columnBinder is implemented by named sources whose field set is only
// known per record. The loader passes the target names before the first
// Next so that every record is projected onto them.
type columnBinder interface {
	bindColumns(names []string)
}

func (db *DB) planLoad(table string) (*loadPlan, error) {
	if s, err := db.catalog.lookupNodeTable(table); err == nil {
		p := &loadPlan{table: s.Name, node: s}
		pk := s.PrimaryKeyIndex()
		for i, c := range s.Columns {
			p.targets = append(p.targets, loadTarget{name: c.Name, typ: c.Type, required: i == pk})
		}
		return p, nil
	}
	s, err := db.catalog.lookupRelTable(table)
	if err != nil {
		return nil, notFoundErrorf("table %q does not exist", table)
	}
	from, err := db.catalog.lookupNodeTable(s.From)
	if err != nil {
		return nil, err
	}
	to, err := db.catalog.lookupNodeTable(s.To)
	if err != nil {
		return nil, err
	}
	p := &loadPlan{table: s.Name, rel: s}
	p.targets = append(p.targets,
		loadTarget{name: "from", typ: from.PrimaryKeyType(), required: true},
		loadTarget{name: "to", typ: to.PrimaryKeyType(), required: true},
	)
	for _, c := range s.Columns {
		p.targets = append(p.targets, loadTarget{name: c.Name, typ: c.Type})
	}
	return p, nil
}

// mapFields records, for each target, the index of the source field
// feeding it. Sources that name their columns are always matched by name:
// a target the source lacks loads NULL and source fields without a target
// are ignored. Unnamed sources are matched by position.
func (p *loadPlan) mapFields(src RowSource) {
	p.fields = make([]int, len(p.targets))
	if b, ok := src.(columnBinder); ok {
		names := make([]string, len(p.targets))
		for i, t := range p.targets {
			names[i] = t.name
		}
		b.bindColumns(names)
	}
	srcCols := src.Columns()
	if srcCols == nil {
		for i := range p.fields {
			p.fields[i] = i
		}
		return
	}
	p.named = true
	for i, t := range p.targets {
		p.fields[i] = indexFold(srcCols, t.name)
	}
}

func indexFold(names []string, name string) int {
	for i, n := range names {
		if strings.EqualFold(n, name) {
			return i
		}
	}
	return -1
}

// rawRow is one unparsed source row with its position.
type rawRow struct {
	vals []any
	row  int
	line int
}

// parsedRow holds the typed values of a row or the error that parsing it
// produced.
type parsedRow struct {
	vals []any
	err  *LoadError
}

// copyFrom loads every row of src into table and returns the number of rows
// inserted. It holds the writer for the duration of the load.
func (db *DB) copyFrom(ctx context.Context, table string, src RowSource) (uint64, error) {
	defer src.Close()

	plan, err := db.planLoad(table)
	if err != nil {
		return 0, err
	}
	plan.mapFields(src)

	batchSize := db.opts.LoadBatchSize
	if batchSize <= 0 {
		batchSize = DefaultOptions().LoadBatchSize
	}
	workers := db.opts.LoadWorkers
	if workers <= 0 {
		workers = 1
	}

	start := time.Now()
	var loaded uint64
	err = db.mutate(ctx, func() error {
		return db.store.update(ctx, func(tx *bolt.Tx) error {
			insert, err := db.loadInserter(tx, plan)
			if err != nil {
				return err
			}
			loaded = 0
			rowNum := 0
			batch := make([]rawRow, 0, batchSize)
			for eof := false; !eof; {
				if err := ctx.Err(); err != nil {
					return err
				}
				batch = batch[:0]
				for len(batch) < batchSize {
					vals, err := src.Next()
					if err == io.EOF {
						eof = true
						break
					}
					rowNum++
					if err != nil {
						// Parse what was read so far so that an earlier bad
						// row wins over the read error.
						if lerr := db.applyBatch(ctx, plan, batch, workers, insert, &loaded); lerr != nil {
							return lerr
						}
						return readError(plan.table, rowNum, src, err)
					}
					line := 0
					if lr, ok := src.(lineReporter); ok {
						line = lr.Line()
					}
					batch = append(batch, rawRow{vals: vals, row: rowNum, line: line})
				}
				if err := db.applyBatch(ctx, plan, batch, workers, insert, &loaded); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		db.metrics.LoadErrors.Add(1)
		db.log.Warn("copy failed", "table", plan.table, "error", err)
		return 0, err
	}

	db.metrics.RowsLoaded.Add(loaded)
	db.log.Info("copy completed",
		"table", plan.table,
		"rows", loaded,
		"duration", time.Since(start),
	)
	return loaded, nil
}

func readError(table string, row int, src RowSource, err error) error {
	le := &LoadError{Table: table, Row: row, Err: err}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		le.Line = pe.Line
		le.Err = pe.Err
	} else if lr, ok := src.(lineReporter); ok {
		le.Line = lr.Line()
	}
	return le
}

// loadInserter returns the insert function for the plan's table.
func (db *DB) loadInserter(tx *bolt.Tx, plan *loadPlan) (func([]any) error, error) {
	if plan.node != nil {
		t, err := openNodeTable(tx, plan.node)
		if err != nil {
			return nil, err
		}
		return func(vals []any) error {
			_, err := t.insert(vals)
			return err
		}, nil
	}
	t, err := db.openRelTable(tx, plan.rel)
	if err != nil {
		return nil, err
	}
	return func(vals []any) error {
		_, err := t.insert(vals[0], vals[1], vals[2:])
		return err
	}, nil
}

// applyBatch parses a batch concurrently and inserts the rows in order.
func (db *DB) applyBatch(ctx context.Context, plan *loadPlan, batch []rawRow,
	workers int, insert func([]any) error, loaded *uint64) error {
	if len(batch) == 0 {
		return nil
	}
	parsed := make([]parsedRow, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	chunk := (len(batch) + workers - 1) / workers
	for lo := 0; lo < len(batch); lo += chunk {
		lo := lo
		hi := min(lo+chunk, len(batch))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				parsed[i] = plan.parse(batch[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, p := range parsed {
		if p.err != nil {
			return p.err
		}
		if err := insert(p.vals); err != nil {
			return &LoadError{Table: plan.table, Row: batch[i].row, Line: batch[i].line, Err: err}
		}
		*loaded++
	}
	return nil
}

// parse converts one raw row into typed values for the plan's targets.
func (p *loadPlan) parse(r rawRow) parsedRow {
	fail := func(col string, err error) parsedRow {
		return parsedRow{err: &LoadError{Table: p.table, Row: r.row, Line: r.line, Column: col, Err: err}}
	}
	if !p.named && len(r.vals) != len(p.targets) {
		return fail("", constraintErrorf("expected %d fields, got %d", len(p.targets), len(r.vals)))
	}
	out := make([]any, len(p.targets))
	for i, t := range p.targets {
		var raw any
		switch j := p.fields[i]; {
		case j < 0:
		case j >= len(r.vals):
			return fail(t.name, constraintErrorf("missing field %s", t.name))
		default:
			raw = r.vals[j]
		}
		if raw == nil {
			if t.required {
				return fail(t.name, constraintErrorf("missing value for %s", t.name))
			}
			continue
		}
		v, err := convertField(t.typ, raw)
		if err != nil {
			return fail(t.name, err)
		}
		out[i] = v
	}
	return parsedRow{vals: out}
}

// convertField converts a source value to column type t. Strings are parsed
// as text unless the column is itself a STRING.
func convertField(t DataType, v any) (any, error) {
	if s, ok := v.(string); ok && t != TypeString {
		return parseField(t, s)
	}
	return coerceValue(t, v)
}

// CopyResult reports a completed load.
type CopyResult struct {
	Table string
	Rows  uint64
}

func (r CopyResult) String() string {
	return fmt.Sprintf("%d tuples have been copied to the %s table.", r.Rows, r.Table)
}
