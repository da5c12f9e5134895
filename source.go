package colgraph

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RowSource yields rows for a bulk load. Implementations return io.EOF from
// Next after the last row.
//
// Columns returns the source's field names, or nil when fields are matched
// to the destination table by position. Values may be typed Go values or
// strings; strings destined for non-STRING columns are parsed as text.
type RowSource interface {
	Columns() []string
	Next() ([]any, error)
	Close() error
}

// lineReporter is implemented by sources that know the input line of the
// row last returned by Next.
type lineReporter interface {
	Line() int
}

// CopyOptions configures file sources for COPY.
type CopyOptions struct {
	// Header skips the first line of delimited input.
	Header bool
	// Delimiter separates fields. Default ',' (or '\t' for .tsv files).
	Delimiter rune
	// Format forces "csv" or "json" instead of detecting it from the file
	// extension.
	Format string
}

// OpenFileSource opens the file at path as a RowSource. .json and .ndjson
// files are read as JSON, .parquet files as Parquet, everything else as
// delimited text.
func OpenFileSource(path string, opts CopyOptions) (RowSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	format := strings.ToLower(opts.Format)
	ext := strings.ToLower(filepath.Ext(path))
	if format == "" {
		switch ext {
		case ".json", ".ndjson", ".jsonl":
			format = "json"
		case ".parquet":
			format = "parquet"
		default:
			format = "csv"
		}
	}
	switch format {
	case "json":
		return newJSONSource(f)
	case "parquet":
		return newParquetSource(f)
	case "csv":
		if opts.Delimiter == 0 && ext == ".tsv" {
			opts.Delimiter = '\t'
		}
		return newCSVSource(f, opts)
	}
	f.Close()
	return nil, fmt.Errorf("%w: unknown COPY format %q", ErrSyntax, opts.Format)
}

// ---------------------------------------------------------------------------
// Delimited text
// ---------------------------------------------------------------------------

type csvSource struct {
	c      io.Closer
	r      *csv.Reader
	header []string
	line   int
}

// NewCSVSource reads delimited text from r. If r is an io.Closer it is
// closed with the source.
func NewCSVSource(r io.Reader, opts CopyOptions) (RowSource, error) {
	return newCSVSource(r, opts)
}

func newCSVSource(r io.Reader, opts CopyOptions) (*csvSource, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	s := &csvSource{r: cr}
	if c, ok := r.(io.Closer); ok {
		s.c = c
	}
	if opts.Header {
		rec, err := cr.Read()
		if err != nil && err != io.EOF {
			s.Close()
			return nil, fmt.Errorf("%w: reading header: %v", ErrLoad, err)
		}
		s.header = append([]string(nil), rec...)
	}
	return s, nil
}

// Columns returns nil: delimited input is matched by position even when it
// carries a header line.
func (s *csvSource) Columns() []string { return nil }

func (s *csvSource) Next() ([]any, error) {
	rec, err := s.r.Read()
	if err != nil {
		return nil, err
	}
	s.line, _ = s.r.FieldPos(0)
	row := make([]any, len(rec))
	for i, f := range rec {
		if f == "" {
			row[i] = nil
			continue
		}
		row[i] = f
	}
	return row, nil
}

func (s *csvSource) Line() int { return s.line }

func (s *csvSource) Close() error {
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}

// ---------------------------------------------------------------------------
// JSON: an array of objects, or one object per line.
// ---------------------------------------------------------------------------

type jsonSource struct {
	c     io.Closer
	dec   *json.Decoder
	array bool
	cols  []string
	first map[string]any
	row   int
}

func newJSONSource(r io.Reader) (*jsonSource, error) {
	br := bufio.NewReader(r)
	s := &jsonSource{}
	if c, ok := r.(io.Closer); ok {
		s.c = c
	}
	lead, err := peekNonSpace(br)
	if err != nil && err != io.EOF {
		s.Close()
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	s.dec = json.NewDecoder(br)
	s.dec.UseNumber()
	if lead == '[' {
		if _, err := s.dec.Token(); err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: %v", ErrLoad, err)
		}
		s.array = true
	}
	// The first object fixes the column list.
	obj, err := s.readObject()
	switch {
	case err == io.EOF:
	case err != nil:
		s.Close()
		return nil, err
	default:
		s.first = obj
		for k := range obj {
			s.cols = append(s.cols, k)
		}
		sort.Strings(s.cols)
	}
	return s, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		if !bytes.ContainsAny(b, " \t\r\n") {
			return b[0], nil
		}
		if _, err := br.ReadByte(); err != nil {
			return 0, err
		}
	}
}

func (s *jsonSource) readObject() (map[string]any, error) {
	if s.array && !s.dec.More() {
		return nil, io.EOF
	}
	var obj map[string]any
	if err := s.dec.Decode(&obj); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: JSON record %d: %v", ErrLoad, s.row+1, err)
	}
	return obj, nil
}

func (s *jsonSource) Columns() []string { return s.cols }

// bindColumns makes every later record yield exactly names, looked up by
// key case-insensitively. Keys missing from a record read as NULL.
func (s *jsonSource) bindColumns(names []string) {
	s.cols = append([]string(nil), names...)
}

func (s *jsonSource) Next() ([]any, error) {
	var obj map[string]any
	if s.first != nil {
		obj, s.first = s.first, nil
	} else {
		var err error
		if obj, err = s.readObject(); err != nil {
			return nil, err
		}
	}
	s.row++
	row := make([]any, len(s.cols))
	for i, c := range s.cols {
		row[i] = lookupFold(obj, c)
	}
	return row, nil
}

func lookupFold(obj map[string]any, key string) any {
	if v, ok := obj[key]; ok {
		return v
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func (s *jsonSource) Close() error {
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory rows
// ---------------------------------------------------------------------------

type sliceSource struct {
	cols []string
	rows [][]any
	i    int
}

// NewSliceSource returns a RowSource over rows already in memory. cols may
// be nil for positional matching.
func NewSliceSource(cols []string, rows [][]any) RowSource {
	return &sliceSource{cols: cols, rows: rows}
}

func (s *sliceSource) Columns() []string { return s.cols }

func (s *sliceSource) Next() ([]any, error) {
	if s.i >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.i]
	s.i++
	return row, nil
}

func (s *sliceSource) Close() error { return nil }
