package colgraph

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// ---------------------------------------------------------------------------
// Parquet: flat files, read row group by row group.
//
// Like delimited text, Parquet columns are matched to the destination table
// by position, so the file's column order must follow the table's declared
// order (FROM key, TO key, then extra columns for rel tables).
// ---------------------------------------------------------------------------

type parquetSource struct {
	f      *os.File
	names  []string
	groups []parquet.RowGroup
	rows   parquet.Rows
	buf    []parquet.Row
	row    int
}

func newParquetSource(f *os.File) (*parquetSource, error) {
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: reading parquet file: %v", ErrLoad, err)
	}
	s := &parquetSource{
		f:      f,
		groups: pf.RowGroups(),
		buf:    make([]parquet.Row, 1),
	}
	for _, path := range pf.Schema().Columns() {
		if len(path) != 1 {
			f.Close()
			return nil, fmt.Errorf("%w: nested parquet column %v is not supported", ErrLoad, path)
		}
		s.names = append(s.names, path[0])
	}
	return s, nil
}

// Columns returns nil: Parquet input is matched by position.
func (s *parquetSource) Columns() []string { return nil }

func (s *parquetSource) Next() ([]any, error) {
	for {
		if s.rows == nil {
			if len(s.groups) == 0 {
				return nil, io.EOF
			}
			s.rows = s.groups[0].Rows()
			s.groups = s.groups[1:]
		}
		n, err := s.rows.ReadRows(s.buf)
		if n == 1 {
			s.row++
			return s.convert(s.buf[0]), nil
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("%w: parquet row %d: %v", ErrLoad, s.row+1, err)
		}
		// The row group is exhausted.
		s.rows.Close()
		s.rows = nil
	}
}

// convert maps one flat row onto Go scalars. Byte arrays become strings.
func (s *parquetSource) convert(row parquet.Row) []any {
	out := make([]any, len(s.names))
	for _, v := range row {
		i := v.Column()
		if i < 0 || i >= len(out) || v.IsNull() {
			continue
		}
		switch v.Kind() {
		case parquet.Boolean:
			out[i] = v.Boolean()
		case parquet.Int32:
			out[i] = int64(v.Int32())
		case parquet.Int64:
			out[i] = v.Int64()
		case parquet.Float:
			out[i] = float64(v.Float())
		case parquet.Double:
			out[i] = v.Double()
		case parquet.ByteArray, parquet.FixedLenByteArray:
			out[i] = string(v.ByteArray())
		default:
			out[i] = v.String()
		}
	}
	return out
}

func (s *parquetSource) Close() error {
	if s.rows != nil {
		s.rows.Close()
		s.rows = nil
	}
	return s.f.Close()
}
