// Package pgsource reads the result of a Postgres query as a colgraph
// RowSource, so that query output can be bulk loaded with Conn.CopyFrom.
//
//	src, err := pgsource.Open(ctx, dsn, "SELECT id, name, age FROM people")
//	if err != nil { ... }
//	defer src.Close()
//	n, err := conn.CopyFrom(ctx, "Person", src)
//
// Result columns are matched to table columns by name.
package pgsource

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mstrYoda/colgraph"
)

// Source streams the rows of one query. It is not safe for concurrent use.
type Source struct {
	rows  pgx.Rows
	cols  []string
	pool  *pgxpool.Pool // owned pool, closed with the source; nil when borrowed
	count int
}

var _ colgraph.RowSource = (*Source)(nil)

// Open connects to dsn and runs sql. Close releases both the rows and the
// connection pool.
func Open(ctx context.Context, dsn, sql string, args ...any) (*Source, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgsource: failed to parse connection string: %w", err)
	}
	config.MaxConns = 1
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("pgsource: failed to connect to PostgreSQL: %w", err)
	}
	s, err := Query(ctx, pool, sql, args...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.pool = pool
	return s, nil
}

// Query runs sql on an existing pool. Close releases the rows; the pool is
// left open.
func Query(ctx context.Context, pool *pgxpool.Pool, sql string, args ...any) (*Source, error) {
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgsource: query failed: %w", err)
	}
	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return &Source{rows: rows, cols: cols}, nil
}

// Columns returns the query's result column names.
func (s *Source) Columns() []string { return s.cols }

// Next returns the next row, or io.EOF after the last one.
func (s *Source) Next() ([]any, error) {
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, fmt.Errorf("pgsource: row %d: %w", s.count+1, err)
		}
		return nil, io.EOF
	}
	vals, err := s.rows.Values()
	if err != nil {
		return nil, fmt.Errorf("pgsource: row %d: %w", s.count+1, err)
	}
	s.count++
	for i, v := range vals {
		vals[i] = convert(v)
	}
	return vals, nil
}

// Line returns the 1-based number of the row last returned by Next.
func (s *Source) Line() int { return s.count }

// Close releases the rows and, for sources created by Open, the pool.
func (s *Source) Close() error {
	s.rows.Close()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}

// convert maps pgx's decoded values onto the scalar types colgraph stores.
// Integers, floats, strings and bools pass through unchanged.
func convert(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int64, int32, int16, int8, float64, float32:
		return v
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case pgtype.Numeric:
		if !x.Valid || x.NaN {
			return nil
		}
		if x.Exp >= 0 && x.Int != nil {
			n := new(big.Int).Mul(x.Int, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(x.Exp)), nil))
			if n.IsInt64() {
				return n.Int64()
			}
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16])
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
