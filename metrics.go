package colgraph

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Metrics holds operational counters for the database. All fields are
// atomic. Prometheus text exposition is written by hand so the library
// does not depend on a metrics client.
type Metrics struct {
	// Statement counters
	QueriesTotal    atomic.Uint64 // MATCH executions
	StatementsTotal atomic.Uint64 // every executed statement, DDL and COPY included
	QueryErrorTotal atomic.Uint64 // statements that returned an error
	SlowQueries     atomic.Uint64 // statements exceeding SlowQueryThreshold

	QueryDurationSum atomic.Int64 // cumulative microseconds
	QueryDurationMax atomic.Int64 // max observed microseconds

	// Parsed statement cache
	CacheHits   atomic.Uint64
	CacheMisses atomic.Uint64

	// Writes
	DDLTotal   atomic.Uint64 // tables created
	RowsLoaded atomic.Uint64 // rows committed by COPY
	LoadErrors atomic.Uint64 // COPY calls rolled back

	// Reads
	RowsScanned atomic.Uint64 // node and rel rows visited by queries
	RowsEmitted atomic.Uint64 // result rows returned to callers

	db *DB
}

func newMetrics(db *DB) *Metrics {
	return &Metrics{db: db}
}

// recordQueryDuration records a statement's wall-clock duration.
func (m *Metrics) recordQueryDuration(d time.Duration) {
	us := d.Microseconds()
	m.QueryDurationSum.Add(us)
	for {
		cur := m.QueryDurationMax.Load()
		if us <= cur {
			break
		}
		if m.QueryDurationMax.CompareAndSwap(cur, us) {
			break
		}
	}
}

// Snapshot returns a point-in-time copy of all metrics as a map.
func (m *Metrics) Snapshot() map[string]any {
	snap := map[string]any{
		"queries_total":         m.QueriesTotal.Load(),
		"statements_total":      m.StatementsTotal.Load(),
		"query_errors_total":    m.QueryErrorTotal.Load(),
		"slow_queries_total":    m.SlowQueries.Load(),
		"query_duration_sum_us": m.QueryDurationSum.Load(),
		"query_duration_max_us": m.QueryDurationMax.Load(),
		"cache_hits_total":      m.CacheHits.Load(),
		"cache_misses_total":    m.CacheMisses.Load(),
		"ddl_total":             m.DDLTotal.Load(),
		"rows_loaded_total":     m.RowsLoaded.Load(),
		"load_errors_total":     m.LoadErrors.Load(),
		"rows_scanned_total":    m.RowsScanned.Load(),
		"rows_emitted_total":    m.RowsEmitted.Load(),
	}
	if m.db != nil {
		snap["tables"] = len(m.db.catalog.names())
		cs := m.db.cache.stats()
		snap["query_cache_entries"] = cs.Entries
		snap["query_cache_capacity"] = cs.Capacity
	}
	return snap
}

// WritePrometheus writes all metrics in Prometheus text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	pCounter(w, "colgraph_queries_total", "Total number of MATCH executions", m.QueriesTotal.Load())
	pCounter(w, "colgraph_statements_total", "Total number of executed statements", m.StatementsTotal.Load())
	pCounter(w, "colgraph_query_errors_total", "Total number of failed statements", m.QueryErrorTotal.Load())
	pCounter(w, "colgraph_slow_queries_total", "Total number of slow statements", m.SlowQueries.Load())
	pCounter(w, "colgraph_query_duration_microseconds_sum", "Cumulative statement duration in microseconds", uint64(m.QueryDurationSum.Load()))
	pCounter(w, "colgraph_cache_hits_total", "Total statement cache hits", m.CacheHits.Load())
	pCounter(w, "colgraph_cache_misses_total", "Total statement cache misses", m.CacheMisses.Load())
	pCounter(w, "colgraph_ddl_total", "Total tables created", m.DDLTotal.Load())
	pCounter(w, "colgraph_rows_loaded_total", "Total rows committed by COPY", m.RowsLoaded.Load())
	pCounter(w, "colgraph_load_errors_total", "Total COPY calls rolled back", m.LoadErrors.Load())
	pCounter(w, "colgraph_rows_scanned_total", "Total rows visited by queries", m.RowsScanned.Load())
	pCounter(w, "colgraph_rows_emitted_total", "Total result rows returned", m.RowsEmitted.Load())

	if m.db != nil {
		pGauge(w, "colgraph_tables", "Current number of tables", float64(len(m.db.catalog.names())))
		cs := m.db.cache.stats()
		pGauge(w, "colgraph_query_cache_entries", "Current statement cache entries", float64(cs.Entries))
		pGauge(w, "colgraph_query_cache_capacity", "Statement cache max capacity", float64(cs.Capacity))
	}

	pGauge(w, "colgraph_query_duration_microseconds_max", "Maximum observed statement duration in microseconds", float64(m.QueryDurationMax.Load()))
}

func pCounter(w io.Writer, name, help string, val uint64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, val)
}

func pGauge(w io.Writer, name, help string, val float64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n", name, help, name, name, val)
}
