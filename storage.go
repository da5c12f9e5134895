package colgraph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// ErrWriteTimeout is returned when a mutation cannot acquire the writer lock
// before its context or Options.WriteTimeout expires.
var ErrWriteTimeout = errors.New("colgraph: timed out waiting for writer")

// storeFileName is the bbolt file inside a database directory.
const storeFileName = "colgraph.db"

// formatVersion is bumped when the on-disk layout changes incompatibly.
const formatVersion uint64 = 1

// Bucket names used in bbolt.
var (
	bucketMeta    = []byte("meta")
	bucketCatalog = []byte("catalog")

	// Meta keys
	metaDBID    = []byte("db_id")
	metaVersion = []byte("format_version")

	// Per-table sub-buckets.
	bucketPK  = []byte("pk")
	bucketFwd = []byte("fwd")
	bucketBwd = []byte("bwd")
)

// tableBucketName returns the top-level bucket holding a table's columns.
func tableBucketName(table string) []byte { return []byte("t/" + tableKey(table)) }

// columnBucketName returns the sub-bucket for one column of a table.
func columnBucketName(col string) []byte { return []byte("c/" + tableKey(col)) }

// syncInterval is how often the background goroutine calls db.Sync()
// when NoSync is enabled. At most this much committed data may be lost on
// an unclean shutdown.
const syncInterval = 200 * time.Millisecond

// store owns the bbolt file backing one database directory.
type store struct {
	db   *bolt.DB
	path string
	id   string // persistent database identity

	// writeSem is a one-slot semaphore serialising mutations. DDL and COPY
	// each run a single bbolt Update while holding it, so the in-memory
	// catalog can be updated after commit without racing another writer.
	writeSem     chan struct{}
	writeTimeout time.Duration // max wait for the writer; 0 = block forever

	stopSync chan struct{} // nil unless NoSync
	syncDone chan struct{}
}

// openStore opens or creates the store file in dir.
func openStore(dir string, opts Options) (*store, error) {
	if opts.ReadOnly {
		if _, err := os.Stat(filepath.Join(dir, storeFileName)); err != nil {
			return nil, fmt.Errorf("colgraph: read-only open of %s: %w", dir, err)
		}
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("colgraph: failed to create directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, storeFileName)

	boltOpts := *bolt.DefaultOptions
	boltOpts.NoSync = opts.NoSync
	boltOpts.ReadOnly = opts.ReadOnly
	boltOpts.Timeout = time.Second
	if opts.MmapSize > 0 {
		boltOpts.InitialMmapSize = opts.MmapSize
	}

	db, err := bolt.Open(path, 0600, &boltOpts)
	if err != nil {
		return nil, fmt.Errorf("colgraph: failed to open store at %s: %w", path, err)
	}

	s := &store{
		db:           db,
		path:         path,
		writeSem:     make(chan struct{}, 1),
		writeTimeout: opts.WriteTimeout,
	}

	if !opts.ReadOnly {
		if err := s.initBuckets(); err != nil {
			db.Close()
			return nil, err
		}
	}
	if err := s.loadMeta(); err != nil {
		db.Close()
		return nil, err
	}

	if opts.NoSync && !opts.ReadOnly {
		s.stopSync = make(chan struct{})
		s.syncDone = make(chan struct{})
		go s.backgroundSync()
	}
	return s, nil
}

// initBuckets creates the fixed buckets and stamps a new store with its
// identity and format version.
func (s *store) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketCatalog} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("colgraph: failed to create bucket %s: %w", name, err)
			}
		}
		meta := tx.Bucket(bucketMeta)
		if meta.Get(metaDBID) == nil {
			if err := meta.Put(metaDBID, []byte(uuid.NewString())); err != nil {
				return err
			}
		}
		if meta.Get(metaVersion) == nil {
			if err := meta.Put(metaVersion, encodeUint64(formatVersion)); err != nil {
				return err
			}
		}
		return nil
	})
}

// loadMeta reads the identity and rejects stores written by an
// incompatible layout.
func (s *store) loadMeta() error {
	return s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil || tx.Bucket(bucketCatalog) == nil {
			return fmt.Errorf("colgraph: %s is not a colgraph store", s.path)
		}
		v := meta.Get(metaVersion)
		if len(v) != 8 {
			return fmt.Errorf("colgraph: %s has no format version", s.path)
		}
		if got := decodeUint64(v); got != formatVersion {
			return fmt.Errorf("colgraph: %s has format version %d, want %d", s.path, got, formatVersion)
		}
		s.id = string(meta.Get(metaDBID))
		return nil
	})
}

// ---------------------------------------------------------------------------
// Writer lock
// ---------------------------------------------------------------------------

// acquireWrite obtains the writer slot, blocking until it is free, the
// context is cancelled, or the write timeout expires. The caller MUST call
// releaseWrite when done.
func (s *store) acquireWrite(ctx context.Context) error {
	if s.writeTimeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
			defer cancel()
		}
	}
	select {
	case s.writeSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrWriteTimeout, ctx.Err())
	}
}

func (s *store) releaseWrite() {
	<-s.writeSem
}

// update runs fn in a single read-write transaction. The caller holds the
// writer slot.
func (s *store) update(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(fn)
}

// view runs fn in a read-only transaction.
func (s *store) view(fn func(tx *bolt.Tx) error) error {
	return s.db.View(fn)
}

// beginRead opens a read-only transaction that the caller must roll back.
// Streaming results keep it open until they are closed.
func (s *store) beginRead() (*bolt.Tx, error) {
	return s.db.Begin(false)
}

// backgroundSync periodically flushes dirty pages when NoSync is set.
func (s *store) backgroundSync() {
	defer close(s.syncDone)
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSync:
			_ = s.db.Sync()
			return
		case <-ticker.C:
			_ = s.db.Sync()
		}
	}
}

// close stops background sync and closes the bbolt file.
func (s *store) close() error {
	if s.stopSync != nil {
		close(s.stopSync)
		<-s.syncDone
	}
	return s.db.Close()
}

// fileSize returns the size of the store file in bytes.
func (s *store) fileSize() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
