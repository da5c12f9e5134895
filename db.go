package colgraph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	bolt "go.etcd.io/bbolt"
)

// DB is an embedded property-graph database stored in one directory. It owns
// the catalog, the columnar store, and the statement cache, and hands out
// connections that execute statements against it.
//
// Concurrency model:
//   - Queries run fully in parallel, each over its own read snapshot.
//   - DDL and COPY are serialized by a single writer slot; a reader never
//     observes a half-applied mutation.
//   - The closed flag is an atomic.Bool so reads never hold a mutex.
type DB struct {
	opts     Options
	dir      string
	store    *store
	catalog  *catalog
	cache    *queryCache    // parsed statements keyed by text
	log      *slog.Logger   // structured logger for all operations
	mu       sync.Mutex     // only used in Close() to prevent double-close
	closed   atomic.Bool    // checked by every operation without locking
	metrics  *Metrics       // operational counters (Prometheus-compatible)
	slowLog  *slowQueryLog  // ring buffer of recent slow statements
	governor *queryGovernor // per-query resource limits (row cap, default timeout)

	liveMu     sync.Mutex
	live       map[io.Closer]struct{} // results and iterators holding a read snapshot
	liveClosed bool                   // set by Close; nothing may be added after
}

// ErrReadOnly is returned when DDL or COPY is attempted on a database opened
// with Options.ReadOnly.
var ErrReadOnly = fmt.Errorf("colgraph: database is read-only")

// Open creates or opens a database in the given directory. The directory is
// created if it doesn't exist. Reopening a directory restores its catalog and
// every committed row.
func Open(dir string, opts Options) (*DB, error) {
	defaults := DefaultOptions()
	if opts.MmapSize <= 0 {
		opts.MmapSize = defaults.MmapSize
	}
	if opts.LoadBatchSize <= 0 {
		opts.LoadBatchSize = defaults.LoadBatchSize
	}
	if opts.LoadWorkers <= 0 {
		opts.LoadWorkers = defaults.LoadWorkers
	}
	if opts.QueryCacheSize <= 0 {
		opts.QueryCacheSize = defaults.QueryCacheSize
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st, err := openStore(dir, opts)
	if err != nil {
		return nil, err
	}

	db := &DB{
		opts:    opts,
		dir:     dir,
		store:   st,
		catalog: newCatalog(),
		cache:   newQueryCache(opts.QueryCacheSize),
		log:     logger.With("db", st.id),
	}
	if err := st.view(db.catalog.load); err != nil {
		st.close()
		return nil, fmt.Errorf("colgraph: failed to load catalog: %w", err)
	}

	db.metrics = newMetrics(db)
	db.slowLog = newSlowQueryLog(100)
	db.governor = &queryGovernor{
		maxRows:        opts.MaxResultRows,
		defaultTimeout: opts.DefaultQueryTimeout,
	}

	db.log.Info("database opened",
		"dir", dir,
		"tables", len(db.catalog.names()),
		"read_only", opts.ReadOnly,
		"load_workers", opts.LoadWorkers,
		"load_batch_size", opts.LoadBatchSize,
	)
	return db, nil
}

// Close flushes and closes the database. Streaming results and scan
// iterators still open are closed first. Later calls are no-ops.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed.Load() {
		return nil
	}
	db.closed.Store(true)

	if n := db.closeSnapshots(); n > 0 {
		db.log.Warn("closed open snapshots on database close", "snapshots", n)
	}
	err := db.store.close()
	if err != nil {
		db.log.Error("database closed with error", "error", err)
	} else {
		db.log.Info("database closed")
	}
	return err
}

// trackSnapshot registers something holding a read transaction so that
// Close can release it. It reports false once Close has begun.
func (db *DB) trackSnapshot(c io.Closer) bool {
	db.liveMu.Lock()
	defer db.liveMu.Unlock()
	if db.liveClosed {
		return false
	}
	if db.live == nil {
		db.live = make(map[io.Closer]struct{})
	}
	db.live[c] = struct{}{}
	return true
}

func (db *DB) untrackSnapshot(c io.Closer) {
	db.liveMu.Lock()
	delete(db.live, c)
	db.liveMu.Unlock()
}

// closeSnapshots closes every registered holder and returns how many there
// were. They are closed outside liveMu since closing untracks them.
func (db *DB) closeSnapshots() int {
	db.liveMu.Lock()
	db.liveClosed = true
	open := make([]io.Closer, 0, len(db.live))
	for c := range db.live {
		open = append(open, c)
	}
	db.live = nil
	db.liveMu.Unlock()

	for _, c := range open {
		_ = c.Close()
	}
	return len(open)
}

// isClosed is a cheap inline check used by every public method.
func (db *DB) isClosed() bool {
	return db.closed.Load()
}

// ID returns the persistent identity stamped into the store on creation.
func (db *DB) ID() string { return db.store.id }

// mutate runs fn holding the writer slot. fn performs at most one store
// update and then publishes its catalog changes.
func (db *DB) mutate(ctx context.Context, fn func() error) error {
	if db.isClosed() {
		return ErrClosed
	}
	if db.opts.ReadOnly {
		return ErrReadOnly
	}
	if err := db.store.acquireWrite(ctx); err != nil {
		return err
	}
	defer db.store.releaseWrite()
	// Close may have won the race while we waited.
	if db.isClosed() {
		return ErrClosed
	}
	return fn()
}

// Metrics returns the operational metrics collector.
// Use this to read counters or write Prometheus exposition format.
func (db *DB) Metrics() *Metrics {
	return db.metrics
}

// Stats returns per-table row counts and the size of the store file.
func (db *DB) Stats() (*DBStats, error) {
	if db.isClosed() {
		return nil, ErrClosed
	}
	stats := &DBStats{ID: db.store.id}
	err := db.store.view(func(tx *bolt.Tx) error {
		for _, name := range db.catalog.names() {
			b := tx.Bucket(tableBucketName(name))
			if b == nil {
				return fmt.Errorf("colgraph: missing bucket for table %s", name)
			}
			ts := TableStats{Name: name, RowCount: b.Sequence()}
			if _, err := db.catalog.lookupNodeTable(name); err == nil {
				ts.Kind = kindNode
				stats.NodeCount += ts.RowCount
			} else {
				ts.Kind = kindRel
				stats.RelCount += ts.RowCount
			}
			stats.Tables = append(stats.Tables, ts)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	size, err := db.store.fileSize()
	if err != nil {
		return nil, err
	}
	stats.DiskSizeBytes = size
	return stats, nil
}
