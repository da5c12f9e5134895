package colgraph

import (
	"bytes"
	"fmt"
	"strings"

	bolt "go.etcd.io/bbolt"
)

// ---------------------------------------------------------------------------
// Columnar store: table layout inside bbolt.
//
//	t/<node table>/
//	    c/<column>   offset(8) → cell
//	    pk           encodeKey(pk) → offset(8)
//	t/<rel table>/
//	    c/_src       offset(8) → cell(source node offset)
//	    c/_dst       offset(8) → cell(target node offset)
//	    c/<column>   offset(8) → cell
//	    fwd          srcOffset(8) + relOffset(8) → dstOffset(8)
//	    bwd          dstOffset(8) + relOffset(8) → srcOffset(8)
//
// Row offsets come from the table bucket's sequence and start at 1, so the
// sequence is also the row count. Rows are never deleted.
// ---------------------------------------------------------------------------

// NodeRecord is one row of a node table. Values follow the schema's column
// order; columns that were not projected by the scan are nil.
type NodeRecord struct {
	Table  string
	Offset uint64
	Values []any

	schema *NodeTableSchema
}

// Get returns the value of the named column.
func (r *NodeRecord) Get(col string) (any, bool) {
	i, ok := r.schema.ColumnIndex(col)
	if !ok {
		return nil, false
	}
	return r.Values[i], true
}

// PK returns the primary-key value of the record, or nil if it was not read.
func (r *NodeRecord) PK() any {
	return r.Values[r.schema.PrimaryKeyIndex()]
}

func (r *NodeRecord) String() string {
	return formatRecord(r.Table, r.Offset, r.schema.Columns, r.Values)
}

// RelRecord is one row of a rel table: its endpoints and extra columns.
type RelRecord struct {
	Table     string
	Offset    uint64
	SrcOffset uint64 // row offset in the FROM table
	DstOffset uint64 // row offset in the TO table
	Values    []any

	schema *RelTableSchema
}

// Get returns the value of the named extra column.
func (r *RelRecord) Get(col string) (any, bool) {
	i, ok := r.schema.ColumnIndex(col)
	if !ok {
		return nil, false
	}
	return r.Values[i], true
}

func (r *RelRecord) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(%s:%d)-[", r.schema.From, r.SrcOffset)
	sb.WriteString(formatRecord(r.Table, r.Offset, r.schema.Columns, r.Values))
	fmt.Fprintf(&sb, "]->(%s:%d)", r.schema.To, r.DstOffset)
	return sb.String()
}

func formatRecord(table string, off uint64, cols []Column, vals []any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "{_LABEL: %s, _OFFSET: %d", table, off)
	for i, c := range cols {
		if vals[i] == nil {
			continue
		}
		fmt.Fprintf(&sb, ", %s: %s", c.Name, FormatValue(vals[i]))
	}
	sb.WriteByte('}')
	return sb.String()
}

// ---------------------------------------------------------------------------
// Node tables
// ---------------------------------------------------------------------------

// nodeTable binds a node table schema to its buckets within one transaction.
type nodeTable struct {
	schema *NodeTableSchema
	b      *bolt.Bucket
	pk     *bolt.Bucket
	cols   []*column
	pkIdx  int
	dec    *cellDecoder
}

func createNodeTableBuckets(tx *bolt.Tx, s *NodeTableSchema) error {
	b, err := tx.CreateBucket(tableBucketName(s.Name))
	if err != nil {
		return fmt.Errorf("colgraph: create table bucket %s: %w", s.Name, err)
	}
	if _, err := b.CreateBucket(bucketPK); err != nil {
		return err
	}
	return createColumnBuckets(b, s.Columns)
}

func openNodeTable(tx *bolt.Tx, s *NodeTableSchema) (*nodeTable, error) {
	b := tx.Bucket(tableBucketName(s.Name))
	if b == nil {
		return nil, fmt.Errorf("colgraph: missing bucket for node table %s", s.Name)
	}
	pk := b.Bucket(bucketPK)
	if pk == nil {
		return nil, fmt.Errorf("colgraph: missing primary-key index for %s", s.Name)
	}
	cols, err := openColumns(b, s.Columns)
	if err != nil {
		return nil, fmt.Errorf("colgraph: node table %s: %w", s.Name, err)
	}
	return &nodeTable{schema: s, b: b, pk: pk, cols: cols, pkIdx: s.PrimaryKeyIndex(), dec: newCellDecoder()}, nil
}

// rowCount returns the number of rows in the table.
func (t *nodeTable) rowCount() uint64 { return t.b.Sequence() }

// lookup resolves a primary-key value to a row offset.
func (t *nodeTable) lookup(key any) (uint64, bool, error) {
	kv, err := coerceValue(t.schema.PrimaryKeyType(), key)
	if err != nil {
		return 0, false, err
	}
	k, err := encodeKey(t.schema.PrimaryKeyType(), kv)
	if err != nil {
		return 0, false, err
	}
	v := t.pk.Get(k)
	if v == nil {
		return 0, false, nil
	}
	return decodeUint64(v), true, nil
}

// insert appends one row. values follow the schema's column order.
func (t *nodeTable) insert(values []any) (uint64, error) {
	if len(values) != len(t.cols) {
		return 0, constraintErrorf("%s expects %d values, got %d", t.schema.Name, len(t.cols), len(values))
	}
	row := make([]any, len(values))
	for i, c := range t.cols {
		v, err := coerceValue(c.typ, values[i])
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", c.name, err)
		}
		row[i] = v
	}
	key, err := encodeKey(t.cols[t.pkIdx].typ, row[t.pkIdx])
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", t.cols[t.pkIdx].name, err)
	}
	if t.pk.Get(key) != nil {
		return 0, constraintErrorf("duplicate primary key %s=%s in %s",
			t.cols[t.pkIdx].name, FormatValue(row[t.pkIdx]), t.schema.Name)
	}

	off, err := t.b.NextSequence()
	if err != nil {
		return 0, err
	}
	for i, c := range t.cols {
		if err := c.put(off, row[i]); err != nil {
			return 0, err
		}
	}
	if err := t.pk.Put(key, encodeUint64(off)); err != nil {
		return 0, err
	}
	return off, nil
}

// read returns the row at off with the wanted columns (nil = all).
func (t *nodeTable) read(off uint64, want []bool) (*NodeRecord, error) {
	if off == 0 || off > t.rowCount() {
		return nil, fmt.Errorf("colgraph: %s has no row %d", t.schema.Name, off)
	}
	rec := &NodeRecord{Table: t.schema.Name, Offset: off, Values: make([]any, len(t.cols)), schema: t.schema}
	for i, c := range t.cols {
		if want != nil && !want[i] {
			continue
		}
		v, err := c.get(t.dec, off)
		if err != nil {
			return nil, err
		}
		rec.Values[i] = v
	}
	return rec, nil
}

// scan returns a lazy iterator over every row, reading only wanted columns.
func (t *nodeTable) scan(want []bool) *NodeIterator {
	return &NodeIterator{t: t, want: want}
}

// NodeIterator walks the rows of a node table in insertion order.
// It is restartable with Reset and must be closed when obtained from the DB.
type NodeIterator struct {
	t    *nodeTable
	want []bool
	scan *columnScan
	rec  *NodeRecord
	err  error
	tx   *bolt.Tx // owned read tx; nil when borrowed from the executor

	untrack func() // drops the iterator from the DB's open snapshots
}

// Next advances to the next row.
func (it *NodeIterator) Next() bool {
	if it.err != nil || it.t == nil {
		return false
	}
	if it.scan == nil {
		it.scan = newColumnScan(it.t.cols, it.want, it.t.rowCount())
	}
	vals := make([]any, len(it.t.cols))
	off, ok, err := it.scan.step(vals)
	if err != nil {
		it.err = err
		return false
	}
	if !ok {
		return false
	}
	it.rec = &NodeRecord{Table: it.t.schema.Name, Offset: off, Values: vals, schema: it.t.schema}
	return true
}

// Record returns the current row. Only valid after Next returns true.
func (it *NodeIterator) Record() *NodeRecord { return it.rec }

// Err returns the first error encountered while scanning.
func (it *NodeIterator) Err() error { return it.err }

// Reset rewinds the iterator to the first row.
func (it *NodeIterator) Reset() {
	it.scan, it.rec, it.err = nil, nil, nil
}

// Close releases the iterator's read transaction, if it owns one.
func (it *NodeIterator) Close() error {
	it.t = nil
	if it.tx != nil {
		tx := it.tx
		it.tx = nil
		err := tx.Rollback()
		if it.untrack != nil {
			it.untrack()
		}
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Rel tables
// ---------------------------------------------------------------------------

// relTable binds a rel table schema to its buckets within one transaction.
type relTable struct {
	schema   *RelTableSchema
	b        *bolt.Bucket
	src, dst *column
	fwd, bwd *bolt.Bucket
	cols     []*column
	from, to *nodeTable
	dec      *cellDecoder
}

func createRelTableBuckets(tx *bolt.Tx, s *RelTableSchema) error {
	b, err := tx.CreateBucket(tableBucketName(s.Name))
	if err != nil {
		return fmt.Errorf("colgraph: create table bucket %s: %w", s.Name, err)
	}
	for _, name := range [][]byte{bucketFwd, bucketBwd} {
		if _, err := b.CreateBucket(name); err != nil {
			return err
		}
	}
	return createColumnBuckets(b, append(endpointColumns(), s.Columns...))
}

func endpointColumns() []Column {
	return []Column{{Name: relSrcColumn, Type: TypeInt64}, {Name: relDstColumn, Type: TypeInt64}}
}

func openRelTable(tx *bolt.Tx, s *RelTableSchema, from, to *NodeTableSchema) (*relTable, error) {
	b := tx.Bucket(tableBucketName(s.Name))
	if b == nil {
		return nil, fmt.Errorf("colgraph: missing bucket for rel table %s", s.Name)
	}
	ends, err := openColumns(b, endpointColumns())
	if err != nil {
		return nil, fmt.Errorf("colgraph: rel table %s: %w", s.Name, err)
	}
	cols, err := openColumns(b, s.Columns)
	if err != nil {
		return nil, fmt.Errorf("colgraph: rel table %s: %w", s.Name, err)
	}
	fwd, bwd := b.Bucket(bucketFwd), b.Bucket(bucketBwd)
	if fwd == nil || bwd == nil {
		return nil, fmt.Errorf("colgraph: missing adjacency index for %s", s.Name)
	}
	ft, err := openNodeTable(tx, from)
	if err != nil {
		return nil, err
	}
	tt := ft
	if !strings.EqualFold(from.Name, to.Name) {
		if tt, err = openNodeTable(tx, to); err != nil {
			return nil, err
		}
	}
	return &relTable{
		schema: s, b: b, src: ends[0], dst: ends[1], fwd: fwd, bwd: bwd,
		cols: cols, from: ft, to: tt, dec: newCellDecoder(),
	}, nil
}

func (t *relTable) rowCount() uint64 { return t.b.Sequence() }

// insert appends one relationship between the nodes whose primary keys are
// srcKey (FROM table) and dstKey (TO table).
func (t *relTable) insert(srcKey, dstKey any, extra []any) (uint64, error) {
	if len(extra) != len(t.cols) {
		return 0, constraintErrorf("%s expects %d property values, got %d", t.schema.Name, len(t.cols), len(extra))
	}
	srcOff, ok, err := t.from.lookup(srcKey)
	if err != nil {
		return 0, fmt.Errorf("FROM key: %w", err)
	}
	if !ok {
		return 0, referentialErrorf("%s: source %s %s not found",
			t.schema.Name, t.from.schema.Name, FormatValue(srcKey))
	}
	dstOff, ok, err := t.to.lookup(dstKey)
	if err != nil {
		return 0, fmt.Errorf("TO key: %w", err)
	}
	if !ok {
		return 0, referentialErrorf("%s: target %s %s not found",
			t.schema.Name, t.to.schema.Name, FormatValue(dstKey))
	}
	row := make([]any, len(extra))
	for i, c := range t.cols {
		v, err := coerceValue(c.typ, extra[i])
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", c.name, err)
		}
		row[i] = v
	}

	off, err := t.b.NextSequence()
	if err != nil {
		return 0, err
	}
	if err := t.src.put(off, int64(srcOff)); err != nil {
		return 0, err
	}
	if err := t.dst.put(off, int64(dstOff)); err != nil {
		return 0, err
	}
	for i, c := range t.cols {
		if err := c.put(off, row[i]); err != nil {
			return 0, err
		}
	}
	if err := t.fwd.Put(encodeAdjKey(srcOff, off), encodeUint64(dstOff)); err != nil {
		return 0, err
	}
	if err := t.bwd.Put(encodeAdjKey(dstOff, off), encodeUint64(srcOff)); err != nil {
		return 0, err
	}
	return off, nil
}

// readProps loads the wanted extra columns of rel row off into rec.
func (t *relTable) readProps(rec *RelRecord, want []bool) error {
	for i, c := range t.cols {
		if want != nil && !want[i] {
			continue
		}
		v, err := c.get(t.dec, rec.Offset)
		if err != nil {
			return err
		}
		rec.Values[i] = v
	}
	return nil
}

func (t *relTable) newRecord(off, src, dst uint64) *RelRecord {
	return &RelRecord{
		Table: t.schema.Name, Offset: off, SrcOffset: src, DstOffset: dst,
		Values: make([]any, len(t.cols)), schema: t.schema,
	}
}

// scanOutgoing iterates relationships whose source is node srcOff.
func (t *relTable) scanOutgoing(srcOff uint64, want []bool) *RelIterator {
	return &RelIterator{t: t, want: want, adj: t.fwd, anchor: srcOff, dir: Outgoing}
}

// scanIncoming iterates relationships whose target is node dstOff.
func (t *relTable) scanIncoming(dstOff uint64, want []bool) *RelIterator {
	return &RelIterator{t: t, want: want, adj: t.bwd, anchor: dstOff, dir: Incoming}
}

// scan iterates every relationship in insertion order.
func (t *relTable) scan(want []bool) *RelIterator {
	return &RelIterator{t: t, want: want}
}

// RelIterator walks relationships either through an adjacency index
// (outgoing or incoming from one anchor node) or over the whole table.
type RelIterator struct {
	t      *relTable
	want   []bool
	rec    *RelRecord
	err    error
	tx     *bolt.Tx
	closed bool

	untrack func() // drops the iterator from the DB's open snapshots

	// adjacency mode
	adj    *bolt.Bucket
	anchor uint64
	dir    Direction
	cursor *bolt.Cursor
	prefix []byte

	// full-scan mode
	scan *columnScan
}

// Next advances to the next relationship.
func (it *RelIterator) Next() bool {
	if it.err != nil || it.closed {
		return false
	}
	var rec *RelRecord
	if it.adj != nil {
		var k, v []byte
		if it.cursor == nil {
			it.prefix = encodeUint64(it.anchor)
			it.cursor = it.adj.Cursor()
			k, v = it.cursor.Seek(it.prefix)
		} else {
			k, v = it.cursor.Next()
		}
		if k == nil || !bytes.HasPrefix(k, it.prefix) {
			return false
		}
		node, off := decodeAdjKey(k)
		other := decodeUint64(v)
		if it.dir == Outgoing {
			rec = it.t.newRecord(off, node, other)
		} else {
			rec = it.t.newRecord(off, other, node)
		}
	} else {
		if it.scan == nil {
			cols := append([]*column{it.t.src, it.t.dst}, it.t.cols...)
			it.scan = newColumnScan(cols, nil, it.t.rowCount())
		}
		vals := make([]any, 2+len(it.t.cols))
		off, ok, err := it.scan.step(vals)
		if err != nil {
			it.err = err
			return false
		}
		if !ok {
			return false
		}
		src, _ := toInt64(vals[0])
		dst, _ := toInt64(vals[1])
		rec = it.t.newRecord(off, uint64(src), uint64(dst))
		copy(rec.Values, vals[2:])
		it.rec = rec
		return true
	}
	if err := it.t.readProps(rec, it.want); err != nil {
		it.err = err
		return false
	}
	it.rec = rec
	return true
}

// Record returns the current relationship. Only valid after Next returns true.
func (it *RelIterator) Record() *RelRecord { return it.rec }

// Err returns the first error encountered while scanning.
func (it *RelIterator) Err() error { return it.err }

// Reset rewinds the iterator.
func (it *RelIterator) Reset() {
	it.cursor, it.scan, it.rec, it.err = nil, nil, nil, nil
}

// Close releases the iterator's read transaction, if it owns one.
func (it *RelIterator) Close() error {
	it.closed = true
	if it.tx != nil {
		tx := it.tx
		it.tx = nil
		err := tx.Rollback()
		if it.untrack != nil {
			it.untrack()
		}
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Public scan API: each iterator owns a read transaction (snapshot).
// ---------------------------------------------------------------------------

// ScanNodes returns an iterator over the named node table. When columns are
// given only those are read; the rest of each record's Values are nil.
// The caller must Close the iterator.
func (db *DB) ScanNodes(table string, columns ...string) (*NodeIterator, error) {
	if db.isClosed() {
		return nil, ErrClosed
	}
	s, err := db.catalog.lookupNodeTable(table)
	if err != nil {
		return nil, err
	}
	want, err := projection(s.Name, s.Columns, columns)
	if err != nil {
		return nil, err
	}
	tx, err := db.store.beginRead()
	if err != nil {
		return nil, err
	}
	t, err := openNodeTable(tx, s)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	it := t.scan(want)
	it.tx = tx
	it.untrack = func() { db.untrackSnapshot(it) }
	if !db.trackSnapshot(it) {
		tx.Rollback()
		return nil, ErrClosed
	}
	return it, nil
}

// ScanOutgoingRels returns the relationships of a rel table whose source
// node has primary key sourceKey. The caller must Close the iterator.
func (db *DB) ScanOutgoingRels(table string, sourceKey any) (*RelIterator, error) {
	return db.scanAdjacent(table, sourceKey, Outgoing)
}

// ScanIncomingRels returns the relationships of a rel table whose target
// node has primary key targetKey. The caller must Close the iterator.
func (db *DB) ScanIncomingRels(table string, targetKey any) (*RelIterator, error) {
	return db.scanAdjacent(table, targetKey, Incoming)
}

// ScanRels returns every relationship of a rel table. The caller must Close
// the iterator.
func (db *DB) ScanRels(table string) (*RelIterator, error) {
	return db.scanAdjacent(table, nil, 0)
}

func (db *DB) scanAdjacent(table string, key any, dir Direction) (*RelIterator, error) {
	if db.isClosed() {
		return nil, ErrClosed
	}
	s, err := db.catalog.lookupRelTable(table)
	if err != nil {
		return nil, err
	}
	tx, err := db.store.beginRead()
	if err != nil {
		return nil, err
	}
	t, err := db.openRelTable(tx, s)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	var it *RelIterator
	switch dir {
	case Outgoing, Incoming:
		anchor := t.from
		if dir == Incoming {
			anchor = t.to
		}
		off, ok, err := anchor.lookup(key)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if !ok {
			tx.Rollback()
			return nil, notFoundErrorf("%s has no node with key %s", anchor.schema.Name, FormatValue(key))
		}
		if dir == Outgoing {
			it = t.scanOutgoing(off, nil)
		} else {
			it = t.scanIncoming(off, nil)
		}
	default:
		it = t.scan(nil)
	}
	it.tx = tx
	it.untrack = func() { db.untrackSnapshot(it) }
	if !db.trackSnapshot(it) {
		tx.Rollback()
		return nil, ErrClosed
	}
	return it, nil
}

// openRelTable resolves the endpoint schemas and opens a rel table.
func (db *DB) openRelTable(tx *bolt.Tx, s *RelTableSchema) (*relTable, error) {
	from, err := db.catalog.lookupNodeTable(s.From)
	if err != nil {
		return nil, err
	}
	to, err := db.catalog.lookupNodeTable(s.To)
	if err != nil {
		return nil, err
	}
	return openRelTable(tx, s, from, to)
}

// projection converts a column-name list into want flags. An empty list
// selects every column.
func projection(table string, cols []Column, names []string) ([]bool, error) {
	if len(names) == 0 {
		return nil, nil
	}
	want := make([]bool, len(cols))
	for _, n := range names {
		i, ok := columnIndex(cols, n)
		if !ok {
			return nil, typeErrorf("%s has no column %q", table, n)
		}
		want[i] = true
	}
	return want, nil
}
