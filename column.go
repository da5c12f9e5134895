package colgraph

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// ---------------------------------------------------------------------------
// Column buckets: one bbolt sub-bucket per column, keyed by row offset.
//
//	t/<table>/c/<column>:  offset(8) → msgpack(value)   (nil encoded explicitly)
//
// Every row has a cell in every column, so cursors over the columns of one
// table advance in lockstep.
// ---------------------------------------------------------------------------

// column is an open column bucket inside a transaction.
type column struct {
	name string
	typ  DataType
	b    *bolt.Bucket
}

// put writes the cell for row off. v must already be coerced to c.typ.
func (c *column) put(off uint64, v any) error {
	data, err := encodeValue(v)
	if err != nil {
		return fmt.Errorf("colgraph: encode %s: %w", c.name, err)
	}
	return c.b.Put(encodeUint64(off), data)
}

// get reads the cell for row off.
func (c *column) get(dec *cellDecoder, off uint64) (any, error) {
	data := c.b.Get(encodeUint64(off))
	if data == nil {
		return nil, fmt.Errorf("colgraph: column %s has no cell for row %d", c.name, off)
	}
	v, err := dec.decode(c.typ, data)
	if err != nil {
		return nil, fmt.Errorf("colgraph: column %s row %d: %w", c.name, off, err)
	}
	return v, nil
}

// openColumns opens the column buckets for the given schema columns under b.
func openColumns(b *bolt.Bucket, cols []Column) ([]*column, error) {
	out := make([]*column, len(cols))
	for i, col := range cols {
		cb := b.Bucket(columnBucketName(col.Name))
		if cb == nil {
			return nil, fmt.Errorf("colgraph: missing column bucket %s", col.Name)
		}
		out[i] = &column{name: col.Name, typ: col.Type, b: cb}
	}
	return out, nil
}

func createColumnBuckets(b *bolt.Bucket, cols []Column) error {
	for _, col := range cols {
		if _, err := b.CreateBucket(columnBucketName(col.Name)); err != nil {
			return fmt.Errorf("colgraph: create column %s: %w", col.Name, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Lockstep scan
// ---------------------------------------------------------------------------

// columnScan walks a projected set of columns in row-offset order.
type columnScan struct {
	cols    []*column // nil entry = column not projected
	cursors []*bolt.Cursor
	dec     *cellDecoder
	next    uint64 // next offset to produce
	last    uint64 // highest allocated offset
	started bool
}

// newColumnScan returns a scan over rows 1..last reading only the columns
// whose want flag is set.
func newColumnScan(cols []*column, want []bool, last uint64) *columnScan {
	s := &columnScan{
		cols:    make([]*column, len(cols)),
		cursors: make([]*bolt.Cursor, len(cols)),
		dec:     newCellDecoder(),
		next:    1,
		last:    last,
	}
	for i, c := range cols {
		if want == nil || want[i] {
			s.cols[i] = c
			s.cursors[i] = c.b.Cursor()
		}
	}
	return s
}

// step produces the next row's offset and projected values. ok is false
// once all rows have been produced.
func (s *columnScan) step(values []any) (off uint64, ok bool, err error) {
	if s.next > s.last {
		return 0, false, nil
	}
	off = s.next
	want := encodeUint64(off)
	for i, cur := range s.cursors {
		if cur == nil {
			values[i] = nil
			continue
		}
		var k, v []byte
		if !s.started {
			k, v = cur.First()
		} else {
			k, v = cur.Next()
		}
		if !bytes.Equal(k, want) {
			return 0, false, fmt.Errorf("colgraph: column %s out of step at row %d", s.cols[i].name, off)
		}
		val, err := s.dec.decode(s.cols[i].typ, v)
		if err != nil {
			return 0, false, fmt.Errorf("colgraph: column %s row %d: %w", s.cols[i].name, off, err)
		}
		values[i] = val
	}
	s.started = true
	s.next++
	return off, true, nil
}
