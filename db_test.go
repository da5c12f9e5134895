package colgraph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// testDB creates a temporary database for testing.
func testDB(t *testing.T, opts ...Options) *DB {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "testdb")

	opt := DefaultOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	db, err := Open(dir, opt)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// testConn returns a connection closed with the test.
func testConn(t *testing.T, db *DB) *Conn {
	t.Helper()
	conn, err := db.Connect()
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// mustExec runs a script and fails the test on error.
func mustExec(t *testing.T, conn *Conn, script string) []*Result {
	t.Helper()
	res, err := conn.ExecScript(context.Background(), script, nil)
	if err != nil {
		t.Fatalf("ExecScript failed: %v\nscript:\n%s", err, script)
	}
	return res
}

// queryRows runs a MATCH query and returns the row values.
func queryRows(t *testing.T, conn *Conn, query string, params map[string]any) [][]any {
	t.Helper()
	res, err := conn.Query(context.Background(), query, params)
	if err != nil {
		t.Fatalf("Query failed: %v\nquery: %s", err, query)
	}
	rows, err := res.Collect()
	if err != nil {
		t.Fatalf("Collect failed: %v\nquery: %s", err, query)
	}
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values
	}
	return out
}

// writeFile writes content under the test's temp dir and returns its path
// with forward slashes, ready for a COPY statement.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return filepath.ToSlash(path)
}

const socialSchema = `
CREATE NODE TABLE Person(name STRING, age INT64, PRIMARY KEY (name));
CREATE NODE TABLE City(name STRING, population INT64, PRIMARY KEY (name));
CREATE REL TABLE Follows(FROM Person TO Person, since INT64);
CREATE REL TABLE LivesIn(FROM Person TO City);
`

// socialDB loads a small Person/City graph:
//
//	Adam --follows--> Karissa --follows--> Zhang --follows--> Noura
//	Adam --follows--> Zhang
func socialDB(t *testing.T) (*DB, *Conn) {
	t.Helper()
	db := testDB(t)
	conn := testConn(t, db)
	mustExec(t, conn, socialSchema)

	ctx := context.Background()
	loads := []struct {
		table string
		cols  []string
		rows  [][]any
	}{
		{"Person", []string{"name", "age"}, [][]any{
			{"Adam", int64(30)}, {"Karissa", int64(40)}, {"Zhang", int64(50)}, {"Noura", int64(25)},
		}},
		{"City", []string{"name", "population"}, [][]any{
			{"Waterloo", int64(150000)}, {"Kitchener", int64(200000)}, {"Guelph", int64(75000)}, {"NYC", int64(8000000)},
		}},
		{"Follows", []string{"from", "to", "since"}, [][]any{
			{"Adam", "Karissa", int64(2020)}, {"Adam", "Zhang", int64(2020)},
			{"Karissa", "Zhang", int64(2021)}, {"Zhang", "Noura", int64(2022)},
		}},
		{"LivesIn", []string{"from", "to"}, [][]any{
			{"Adam", "Waterloo"}, {"Karissa", "Waterloo"}, {"Zhang", "Kitchener"}, {"Noura", "Guelph"},
		}},
	}
	for _, l := range loads {
		if _, err := conn.CopyFrom(ctx, l.table, NewSliceSource(l.cols, l.rows)); err != nil {
			t.Fatalf("CopyFrom %s failed: %v", l.table, err)
		}
	}
	return db, conn
}

func TestOpenClose(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "testdb")

	db, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.NodeCount != 0 || stats.RelCount != 0 || len(stats.Tables) != 0 {
		t.Errorf("expected empty db, got %+v", stats)
	}
	id := db.ID()
	if id == "" {
		t.Error("expected a database id")
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("second Close should be a no-op: %v", err)
	}
	if _, err := db.Connect(); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect after Close: expected ErrClosed, got %v", err)
	}

	db2, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer db2.Close()
	if db2.ID() != id {
		t.Errorf("id changed across reopen: %s != %s", db2.ID(), id)
	}
}

func TestReopenRestoresData(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "testdb")
	db, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	conn, _ := db.Connect()
	path := writeFile(t, "person.csv", "Adam,30\nKarissa,40\n")
	mustExec(t, conn, `
CREATE NODE TABLE Person(name STRING, age INT64, PRIMARY KEY (name));
COPY Person FROM '`+path+`';`)
	conn.Close()
	db.Close()

	db, err = Open(dir, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	conn = testConn(t, db)

	rows := queryRows(t, conn, "MATCH (p:Person) RETURN p.name, p.age ORDER BY p.name", nil)
	if len(rows) != 2 || rows[0][0] != "Adam" || rows[1][1] != int64(40) {
		t.Fatalf("unexpected rows after reopen: %v", rows)
	}

	// Loading continues after the restored rows.
	mustExec(t, conn, "COPY Person FROM '"+writeFile(t, "more.csv", "Zhang,50\n")+"'")
	rows = queryRows(t, conn, "MATCH (p:Person) RETURN count(*)", nil)
	if rows[0][0] != int64(3) {
		t.Errorf("expected 3 persons, got %v", rows[0][0])
	}
	if _, err := conn.CopyFrom(context.Background(), "Person",
		NewSliceSource([]string{"name", "age"}, [][]any{{"Adam", int64(1)}})); !errors.Is(err, ErrConstraint) {
		t.Errorf("duplicate key after reopen: expected ErrConstraint, got %v", err)
	}
}

func TestReadOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "testdb")
	db, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	conn, _ := db.Connect()
	mustExec(t, conn, "CREATE NODE TABLE City(name STRING, PRIMARY KEY (name))")
	db.Close()

	opts := DefaultOptions()
	opts.ReadOnly = true
	ro, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("read-only Open failed: %v", err)
	}
	defer ro.Close()
	rc := testConn(t, ro)

	if _, err := rc.Exec(context.Background(), "CREATE NODE TABLE X(a INT64, PRIMARY KEY (a))", nil); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
	if rows := queryRows(t, rc, "MATCH (c:City) RETURN c.name", nil); len(rows) != 0 {
		t.Errorf("expected no rows, got %v", rows)
	}
}

func TestStats(t *testing.T) {
	db, _ := socialDB(t)
	stats, err := db.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.NodeCount != 8 || stats.RelCount != 8 {
		t.Errorf("expected 8 nodes and 8 rels, got %d / %d", stats.NodeCount, stats.RelCount)
	}
	if len(stats.Tables) != 4 {
		t.Fatalf("expected 4 tables, got %d", len(stats.Tables))
	}
	if stats.DiskSizeBytes <= 0 {
		t.Error("expected a non-zero store size")
	}
}
