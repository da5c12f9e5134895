package colgraph

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
)

func TestVerifyIntegrity_Clean(t *testing.T) {
	db, _ := socialDB(t)
	report, err := db.VerifyIntegrity()
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() {
		t.Fatalf("expected a clean report, got %v", report.Errors)
	}
	if report.TablesChecked != 4 || report.NodesChecked != 8 || report.RelsChecked != 8 {
		t.Errorf("unexpected counts %+v", report)
	}
	if report.CellsChecked == 0 {
		t.Error("expected cells to be checked")
	}
}

func TestVerifyIntegrity_DetectsCorruption(t *testing.T) {
	db, _ := socialDB(t)

	err := db.store.db.Update(func(tx *bolt.Tx) error {
		person := tx.Bucket(tableBucketName("Person"))
		if err := person.Bucket(bucketPK).Delete([]byte("Adam")); err != nil {
			return err
		}
		follows := tx.Bucket(tableBucketName("Follows"))
		fwd := follows.Bucket(bucketFwd)
		k, _ := fwd.Cursor().First()
		return fwd.Delete(k)
	})
	if err != nil {
		t.Fatal(err)
	}

	report, err := db.VerifyIntegrity()
	if err != nil {
		t.Fatal(err)
	}
	if report.OK() {
		t.Fatal("expected integrity errors")
	}
	var sawPK, sawFwd bool
	for _, e := range report.Errors {
		switch {
		case e.Table == "Person" && e.Bucket == "pk":
			sawPK = true
		case e.Table == "Follows" && e.Bucket == "fwd":
			sawFwd = true
		}
	}
	if !sawPK || !sawFwd {
		t.Errorf("expected pk and fwd errors, got %v", report.Errors)
	}
}

func TestBackupRoundTrip(t *testing.T) {
	db, _ := socialDB(t)

	var buf bytes.Buffer
	n, err := db.Backup(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(buf.Len()) || n == 0 {
		t.Errorf("Backup reported %d bytes, wrote %d", n, buf.Len())
	}

	dir := filepath.Join(t.TempDir(), "backup")
	if err := db.BackupToDir(dir); err != nil {
		t.Fatal(err)
	}
	if err := db.BackupToDir(dir); err == nil {
		t.Error("BackupToDir must not overwrite an existing backup")
	}

	restored, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer restored.Close()
	if restored.ID() != db.ID() {
		t.Errorf("backup should keep the database id")
	}
	conn := testConn(t, restored)
	rows := queryRows(t, conn,
		"MATCH (a:Person)-[:Follows]->(b:Person) RETURN b.name, count(a) AS n ORDER BY n DESC LIMIT 1", nil)
	assertRows(t, rows, []any{"Zhang", int64(2)})

	report, err := restored.VerifyIntegrity()
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() {
		t.Errorf("backup failed verification: %v", report.Errors)
	}

	// The restored copy is independent of the source.
	if _, err := conn.CopyFrom(context.Background(), "City",
		NewSliceSource(nil, [][]any{{"Toronto", int64(2800000)}})); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, storeFileName)); err != nil {
		t.Fatal(err)
	}
	src := testConn(t, db)
	if got := queryRows(t, src, "MATCH (c:City) RETURN count(*)", nil); got[0][0] != int64(4) {
		t.Errorf("source should still have 4 cities, got %v", got[0][0])
	}
}
