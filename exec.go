package colgraph

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"
)

// ---------------------------------------------------------------------------
// Query executor: evaluates a bound MATCH query over one read snapshot.
//
// Pipeline:
//
//	anchor scan / primary-key lookup → [adjacency expand] → WHERE
//	  → projection | aggregation → ORDER BY (sort or top-K) → SKIP / LIMIT
//
// Queries without ORDER BY or aggregation stream: rows are produced as the
// caller pulls them and the snapshot stays open until the Result is closed.
// Everything else materializes before the first row is returned.
// ---------------------------------------------------------------------------

// ctxCheckInterval is how many scanned rows pass between cancellation checks.
const ctxCheckInterval = 256

// bindParams validates and normalizes the parameters a query references.
// A leading '$' in a parameter name is accepted.
func bindParams(bq *boundQuery, params map[string]any) (map[string]any, error) {
	norm := make(map[string]any, len(params))
	for k, v := range params {
		name := strings.TrimPrefix(k, "$")
		nv, err := normalizeParam(name, v)
		if err != nil {
			return nil, err
		}
		norm[name] = nv
	}
	for _, name := range bq.params {
		if _, ok := norm[name]; !ok {
			return nil, fmt.Errorf("%w: missing parameter $%s", ErrParameter, name)
		}
	}
	return norm, nil
}

// executeQuery runs bq and returns its result. The caller closes it.
func (db *DB) executeQuery(ctx context.Context, bq *boundQuery, params map[string]any) (*Result, error) {
	norm, err := bindParams(bq, params)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, cancel := db.governor.wrapContext(ctx)
	tx, err := db.store.beginRead()
	if err != nil {
		cancel()
		return nil, err
	}
	release := func() {
		_ = tx.Rollback()
		cancel()
	}
	// The snapshot is released here unless a streaming Result takes it
	// over, including when matching panics.
	streaming := false
	defer func() {
		if !streaming {
			release()
		}
	}()

	m, err := db.newMatcher(ctx, tx, bq, norm)
	if err != nil {
		return nil, err
	}

	if !bq.aggregating && len(bq.order) == 0 {
		res := &Result{columns: bq.columns, pull: db.streamRows(m)}
		res.release = func() {
			release()
			db.untrackSnapshot(res)
		}
		if !db.trackSnapshot(res) {
			return nil, ErrClosed
		}
		streaming = true
		return res, nil
	}

	rows, err := db.materialize(m)
	if err != nil {
		return nil, err
	}
	return newRowsResult(bq.columns, rows), nil
}

// ---------------------------------------------------------------------------
// Matching
// ---------------------------------------------------------------------------

// matcher enumerates the variable bindings satisfying the pattern and WHERE.
type matcher struct {
	ctx context.Context
	db  *DB
	bq  *boundQuery
	env *evalEnv

	anchor *nodeTable
	rel    *relTable
	other  *nodeTable

	// anchor enumeration: either a primary-key point lookup or a full scan
	point     bool
	pointOff  uint64
	pointDone bool
	nodes     *NodeIterator

	cur     *NodeRecord
	rels    *RelIterator
	scanned int
}

func (db *DB) newMatcher(ctx context.Context, tx *bolt.Tx, bq *boundQuery, params map[string]any) (*matcher, error) {
	m := &matcher{
		ctx: ctx,
		db:  db,
		bq:  bq,
		env: &evalEnv{vars: make(map[string]any, 3), params: params},
	}
	var err error
	if m.anchor, err = openNodeTable(tx, bq.anchor.schema); err != nil {
		return nil, err
	}
	if bq.hop != nil {
		if m.rel, err = db.openRelTable(tx, bq.hop.schema); err != nil {
			return nil, err
		}
		if m.other, err = openNodeTable(tx, bq.hop.other.schema); err != nil {
			return nil, err
		}
	}

	// A primary-key equality filter turns the anchor scan into a lookup.
	pkIdx := bq.anchor.schema.PrimaryKeyIndex()
	for _, f := range bq.anchor.filters {
		if f.col != pkIdx {
			continue
		}
		v, err := evalExpr(&f.value, m.env)
		if err != nil {
			return nil, err
		}
		m.point = true
		m.pointOff, m.pointDone, err = m.lookupPK(v)
		if err != nil {
			return nil, err
		}
		break
	}
	if !m.point {
		m.nodes = m.anchor.scan(bq.anchor.want)
	}
	return m, nil
}

// lookupPK resolves a filter value against the anchor's primary-key index.
// done is true when no row can match.
func (m *matcher) lookupPK(v any) (off uint64, done bool, err error) {
	if v == nil {
		return 0, true, nil
	}
	t := m.anchor.schema.PrimaryKeyType()
	if c := classOfValue(v); c != classOfType(t) {
		return 0, false, typeErrorf("cannot compare %s primary key with %s", t, describeValue(v))
	}
	off, ok, err := m.anchor.lookup(v)
	if err != nil {
		// Values the column type cannot hold (3.5 for INT64, 300 for UINT8)
		// match nothing.
		if errors.Is(err, ErrConstraint) {
			return 0, true, nil
		}
		return 0, false, err
	}
	return off, !ok, nil
}

// nextAnchor returns the next anchor node passing its inline filters, or
// nil when the anchor side is exhausted.
func (m *matcher) nextAnchor() (*NodeRecord, error) {
	for {
		var rec *NodeRecord
		if m.point {
			if m.pointDone {
				return nil, nil
			}
			m.pointDone = true
			r, err := m.anchor.read(m.pointOff, m.bq.anchor.want)
			if err != nil {
				return nil, err
			}
			rec = r
		} else {
			if !m.nodes.Next() {
				return nil, m.nodes.Err()
			}
			rec = m.nodes.Record()
		}
		if err := m.tick(); err != nil {
			return nil, err
		}
		ok, err := matchFilters(rec.Values, m.bq.anchor.filters, m.env)
		if err != nil {
			return nil, err
		}
		if ok {
			return rec, nil
		}
	}
}

// tick counts one scanned row and polls for cancellation.
func (m *matcher) tick() error {
	m.scanned++
	m.db.metrics.RowsScanned.Add(1)
	if m.scanned%ctxCheckInterval == 0 {
		return m.ctx.Err()
	}
	return nil
}

// next advances to the next binding. It returns false when exhausted.
func (m *matcher) next() (bool, error) {
	for {
		ok, err := m.nextCandidate()
		if err != nil || !ok {
			return false, err
		}
		if m.bq.q.Where != nil {
			pass, err := evalBool(m.bq.q.Where, m.env)
			if err != nil {
				return false, err
			}
			if !pass {
				continue
			}
		}
		return true, nil
	}
}

// nextCandidate binds the next pattern match before WHERE is applied.
func (m *matcher) nextCandidate() (bool, error) {
	hop := m.bq.hop
	if hop == nil {
		rec, err := m.nextAnchor()
		if err != nil || rec == nil {
			return false, err
		}
		m.bind(m.bq.anchor.variable, rec)
		return true, nil
	}

	for {
		if m.rels == nil {
			rec, err := m.nextAnchor()
			if err != nil || rec == nil {
				return false, err
			}
			m.cur = rec
			if hop.dir == Outgoing {
				m.rels = m.rel.scanOutgoing(rec.Offset, hop.want)
			} else {
				m.rels = m.rel.scanIncoming(rec.Offset, hop.want)
			}
		}
		if !m.rels.Next() {
			if err := m.rels.Err(); err != nil {
				return false, err
			}
			m.rels = nil
			continue
		}
		r := m.rels.Record()
		if err := m.tick(); err != nil {
			return false, err
		}
		ok, err := matchFilters(r.Values, hop.filters, m.env)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		otherOff := r.DstOffset
		if hop.dir == Incoming {
			otherOff = r.SrcOffset
		}
		other, err := m.other.read(otherOff, hop.other.want)
		if err != nil {
			return false, err
		}
		if ok, err = matchFilters(other.Values, hop.other.filters, m.env); err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		m.bind(m.bq.anchor.variable, m.cur)
		m.bind(hop.variable, r)
		m.bind(hop.other.variable, other)
		return true, nil
	}
}

func (m *matcher) bind(variable string, rec any) {
	if variable != "" {
		m.env.vars[tableKey(variable)] = rec
	}
}

// matchFilters applies inline {prop: value} equalities to a row.
func matchFilters(values []any, filters []boundFilter, env *evalEnv) (bool, error) {
	for i := range filters {
		f := &filters[i]
		want, err := evalExpr(&f.value, env)
		if err != nil {
			return false, err
		}
		got := values[f.col]
		if want == nil || got == nil {
			return false, nil
		}
		cmp, ok := compareValues(got, want)
		if !ok {
			return false, typeErrorf("cannot compare %s with %s", f.name, describeValue(want))
		}
		if cmp != 0 {
			return false, nil
		}
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Projection
// ---------------------------------------------------------------------------

// project evaluates the RETURN items. Aggregate slots are left nil.
func project(bq *boundQuery, env *evalEnv) ([]any, error) {
	items := bq.q.Return.Items
	row := make([]any, len(items))
	for i := range items {
		if bq.aggregating && bq.aggs[i].fn != "" {
			continue
		}
		v, err := evalExpr(&items[i].Expr, env)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// streamRows returns the pull function of a streaming result.
func (db *DB) streamRows(m *matcher) func() ([]any, bool, error) {
	bq := m.bq
	skipped, emitted := 0, 0
	return func() ([]any, bool, error) {
		return safePull(func() ([]any, bool, error) {
			for {
				if bq.q.Limit >= 0 && emitted >= bq.q.Limit {
					return nil, false, nil
				}
				ok, err := m.next()
				if err != nil || !ok {
					return nil, false, err
				}
				if skipped < bq.q.Skip {
					skipped++
					continue
				}
				row, err := project(bq, m.env)
				if err != nil {
					return nil, false, err
				}
				emitted++
				if err := db.governor.checkRowCount(emitted); err != nil {
					return nil, false, err
				}
				db.metrics.RowsEmitted.Add(1)
				return row, true, nil
			}
		})
	}
}

func safePull(fn func() ([]any, bool, error)) (row []any, ok bool, err error) {
	type pulled struct {
		row []any
		ok  bool
	}
	p, err := safeExecuteResult(func() (pulled, error) {
		r, ok, err := fn()
		return pulled{r, ok}, err
	})
	return p.row, p.ok, err
}

// materialize runs the query to completion and returns its final rows.
func (db *DB) materialize(m *matcher) ([][]any, error) {
	bq := m.bq
	var (
		sorted []sortRow
		agg    *aggregator
		topK   *topKHeap
		seq    int
	)
	switch {
	case bq.aggregating:
		agg = newAggregator(bq.aggs)
	case bq.q.Limit >= 0:
		k := addSaturating(bq.q.Skip, bq.q.Limit)
		if k == 0 {
			return nil, nil
		}
		topK = newTopKHeap(bq.order, k)
	}

	for {
		ok, err := m.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		row, err := project(bq, m.env)
		if err != nil {
			return nil, err
		}
		if agg != nil {
			if err := agg.add(row, m.env); err != nil {
				return nil, err
			}
			if err := db.governor.checkRowCount(len(agg.order)); err != nil {
				return nil, err
			}
			continue
		}
		keys, err := sortKeys(bq.order, row, m.env)
		if err != nil {
			return nil, err
		}
		item := sortRow{values: row, keys: keys, seq: seq}
		seq++
		if topK != nil {
			topK.offer(item)
			continue
		}
		sorted = append(sorted, item)
		if err := db.governor.checkRowCount(len(sorted)); err != nil {
			return nil, err
		}
	}

	var rows [][]any
	switch {
	case agg != nil:
		groups := agg.rows()
		items := make([]sortRow, len(groups))
		for i, g := range groups {
			keys, err := sortKeys(bq.order, g, nil)
			if err != nil {
				return nil, err
			}
			items[i] = sortRow{values: g, keys: keys, seq: i}
		}
		sortRows(bq.order, items)
		rows = rowValues(items)
	case topK != nil:
		rows = rowValues(topK.sorted())
	default:
		sortRows(bq.order, sorted)
		rows = rowValues(sorted)
	}

	rows = applySkipLimit(rows, bq.q.Skip, bq.q.Limit)
	if err := db.governor.checkRowCount(len(rows)); err != nil {
		return nil, err
	}
	db.metrics.RowsEmitted.Add(uint64(len(rows)))
	return rows, nil
}

// addSaturating returns a+b for non-negative a and b, clamped to MaxInt.
func addSaturating(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

func applySkipLimit(rows [][]any, skip, limit int) [][]any {
	if skip >= len(rows) {
		return nil
	}
	rows = rows[skip:]
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// ---------------------------------------------------------------------------
// ORDER BY
// ---------------------------------------------------------------------------

// sortRow is a projected row with its ORDER BY key and arrival sequence.
// seq breaks ties so that equal keys keep match order.
type sortRow struct {
	values []any
	keys   []any
	seq    int
}

// sortKeys evaluates the ORDER BY keys of a row. env may be nil when every
// key refers to an output column.
func sortKeys(order []boundOrder, row []any, env *evalEnv) ([]any, error) {
	if len(order) == 0 {
		return nil, nil
	}
	keys := make([]any, len(order))
	for i := range order {
		o := &order[i]
		if o.col >= 0 {
			keys[i] = row[o.col]
			continue
		}
		v, err := evalExpr(&o.expr, env)
		if err != nil {
			return nil, err
		}
		keys[i] = v
	}
	return keys, nil
}

// compareSortRows orders a before b (negative), after (positive) or never
// equal, falling back to arrival order.
func compareSortRows(order []boundOrder, a, b *sortRow) int {
	for i := range order {
		cmp := sortCompare(a.keys[i], b.keys[i])
		if cmp == 0 {
			continue
		}
		if order[i].desc {
			return -cmp
		}
		return cmp
	}
	return compareOffsets(uint64(a.seq), uint64(b.seq))
}

func sortRows(order []boundOrder, rows []sortRow) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return compareSortRows(order, &rows[i], &rows[j]) < 0
	})
}

func rowValues(rows []sortRow) [][]any {
	out := make([][]any, len(rows))
	for i := range rows {
		out[i] = rows[i].values
	}
	return out
}

// topKInitialCap bounds the up-front allocation of a top-K heap; larger
// limits grow the heap as rows arrive.
const topKInitialCap = 1024

// topKHeap implements container/heap.Interface.
// The root holds the "worst" item among the current top-K set,
// so it can be cheaply evicted when a better candidate arrives.
type topKHeap struct {
	items []sortRow
	order []boundOrder
	limit int
}

func newTopKHeap(order []boundOrder, limit int) *topKHeap {
	return &topKHeap{
		items: make([]sortRow, 0, min(limit, topKInitialCap)),
		order: order,
		limit: limit,
	}
}

func (h *topKHeap) Len() int { return len(h.items) }

// Less puts the item that sorts last at the root.
func (h *topKHeap) Less(i, j int) bool {
	return compareSortRows(h.order, &h.items[i], &h.items[j]) > 0
}

func (h *topKHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *topKHeap) Push(x any) { h.items = append(h.items, x.(sortRow)) }

func (h *topKHeap) Pop() any {
	n := len(h.items)
	item := h.items[n-1]
	h.items = h.items[:n-1]
	return item
}

// offer adds an item to the heap if it belongs in the top-K.
func (h *topKHeap) offer(item sortRow) {
	if len(h.items) < h.limit {
		heap.Push(h, item)
		return
	}
	if compareSortRows(h.order, &item, &h.items[0]) < 0 {
		h.items[0] = item
		heap.Fix(h, 0)
	}
}

// sorted extracts all items from the heap in result order.
func (h *topKHeap) sorted() []sortRow {
	n := len(h.items)
	result := make([]sortRow, n)
	// Items pop worst first.
	for i := n - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(sortRow)
	}
	return result
}
