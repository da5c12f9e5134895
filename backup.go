package colgraph

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// ---------------------------------------------------------------------------
// Backup: consistent, point-in-time copies of the store.
//
// A backup streams the store file from inside one read transaction, so it
// reflects every mutation committed before it started and none after.
// Writers are not blocked. The copy is a complete store: Open it by placing
// it in an empty directory as colgraph.db.
// ---------------------------------------------------------------------------

// Backup writes a consistent copy of the store to w and returns the number
// of bytes written.
func (db *DB) Backup(w io.Writer) (int64, error) {
	if db.isClosed() {
		return 0, ErrClosed
	}
	var n int64
	err := db.store.view(func(tx *bolt.Tx) error {
		var err error
		n, err = tx.WriteTo(w)
		return err
	})
	if err != nil {
		return n, fmt.Errorf("colgraph: backup: %w", err)
	}
	db.log.Info("backup written", "bytes", n)
	return n, nil
}

// BackupToDir writes a backup into dir as a store that Open accepts.
func (db *DB) BackupToDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("colgraph: backup: %w", err)
	}
	path := filepath.Join(dir, storeFileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("colgraph: backup: %s already exists", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("colgraph: backup: %w", err)
	}
	if _, err := db.Backup(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("colgraph: backup: %w", err)
	}
	return f.Close()
}
