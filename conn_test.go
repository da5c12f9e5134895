package colgraph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestConn_StreamingResultClosedByMutation(t *testing.T) {
	_, conn := socialDB(t)
	ctx := context.Background()

	res, err := conn.Query(ctx, "MATCH (p:Person) RETURN p.name", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Next() {
		t.Fatalf("expected a first row: %v", res.Err())
	}

	// The open snapshot must not block DDL on the same connection.
	if _, err := conn.Exec(ctx, "CREATE NODE TABLE Tag(name STRING, PRIMARY KEY (name))", nil); err != nil {
		t.Fatal(err)
	}
	if res.Next() {
		t.Error("result should be closed after a mutation on its connection")
	}
	if !errors.Is(res.Err(), ErrClosed) && res.Err() != nil {
		t.Errorf("unexpected error %v", res.Err())
	}
	if err := res.Close(); err != nil {
		t.Errorf("Close after close should be a no-op: %v", err)
	}
}

func TestConn_SnapshotIsolation(t *testing.T) {
	db, conn := socialDB(t)
	ctx := context.Background()

	res, err := conn.Query(ctx, "MATCH (c:City) RETURN c.name", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()
	res.Next()

	// A second connection loads while the first reads.
	other := testConn(t, db)
	if _, err := other.CopyFrom(ctx, "City", NewSliceSource(nil, [][]any{{"Toronto", int64(2800000)}})); err != nil {
		t.Fatal(err)
	}

	n := 1
	for res.Next() {
		n++
	}
	if err := res.Err(); err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("open result should see its snapshot of 4 cities, got %d", n)
	}
	rows := queryRows(t, other, "MATCH (c:City) RETURN count(*)", nil)
	if rows[0][0] != int64(5) {
		t.Errorf("new query should see 5 cities, got %v", rows[0][0])
	}
}

func TestConn_Closed(t *testing.T) {
	db := testDB(t)
	conn, err := db.Connect()
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := conn.Exec(ctx, "CREATE NODE TABLE A(id INT64, PRIMARY KEY (id))", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Exec on closed conn: expected ErrClosed, got %v", err)
	}
	if _, err := conn.ExecScript(ctx, "MATCH (a:A) RETURN a", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("ExecScript on closed conn: expected ErrClosed, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}
}

func TestConn_ExecScriptStopsAtFailure(t *testing.T) {
	db := testDB(t)
	conn := testConn(t, db)
	results, err := conn.ExecScript(context.Background(), `
CREATE NODE TABLE A(id INT64, PRIMARY KEY (id));
CREATE NODE TABLE A(id INT64, PRIMARY KEY (id));
CREATE NODE TABLE B(id INT64, PRIMARY KEY (id));`, nil)
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
	if !strings.Contains(err.Error(), "statement 2") {
		t.Errorf("error should name the failing statement: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected the one result that ran, got %d", len(results))
	}
	if _, err := db.NodeTable("B"); !errors.Is(err, ErrNotFound) {
		t.Error("statements after a failure must not run")
	}
}

func TestConn_ExecScriptWithQueries(t *testing.T) {
	db := testDB(t)
	conn := testConn(t, db)
	path := writeFile(t, "a.csv", "1\n2\n3\n")
	results := mustExec(t, conn, `
CREATE NODE TABLE A(id INT64, PRIMARY KEY (id));
COPY A FROM '`+path+`';
MATCH (a:A) WHERE a.id > 1 RETURN a.id;
COPY A FROM '`+writeFile(t, "b.csv", "4\n")+`';
MATCH (a:A) RETURN count(*);`)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	// Query results are materialized, so the later COPY does not change them.
	rows, err := results[2].Collect()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Values[0] != int64(2) {
		t.Errorf("unexpected rows %v", rows)
	}
	rows, _ = results[4].Collect()
	if rows[0].Values[0] != int64(4) {
		t.Errorf("expected 4 rows after the second COPY, got %v", rows[0].Values[0])
	}
}

func TestConn_ExecScriptMissingParam(t *testing.T) {
	db := testDB(t)
	conn := testConn(t, db)
	_, err := conn.ExecScript(context.Background(), `
CREATE NODE TABLE A(id INT64, PRIMARY KEY (id));
MATCH (a:A) WHERE a.id > $min RETURN a.id;`, nil)
	if !errors.Is(err, ErrParameter) {
		t.Errorf("expected ErrParameter, got %v", err)
	}
}

func TestConn_ConcurrentReaders(t *testing.T) {
	db, _ := socialDB(t)
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := db.Connect()
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			for j := 0; j < 20; j++ {
				res, err := conn.Query(context.Background(),
					"MATCH (a:Person)-[:Follows]->(b:Person) RETURN b.name, count(a) AS n ORDER BY n DESC LIMIT 1", nil)
				if err != nil {
					errs <- err
					return
				}
				rows, err := res.Collect()
				if err != nil {
					errs <- err
					return
				}
				if len(rows) != 1 || rows[0].Values[0] != "Zhang" {
					errs <- fmt.Errorf("unexpected result %v", rows)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestDB_CloseWithConn(t *testing.T) {
	db, conn := socialDB(t)
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Query(context.Background(), "MATCH (p:Person) RETURN p.name", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := db.ScanNodes("Person"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestDB_CloseReleasesOpenSnapshots(t *testing.T) {
	db, conn := socialDB(t)
	ctx := context.Background()

	res, err := conn.Query(ctx, "MATCH (p:Person) RETURN p.name", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Next() {
		t.Fatalf("expected a first row: %v", res.Err())
	}
	other := testConn(t, db)
	res2, err := other.Query(ctx, "MATCH (c:City) RETURN c.name", nil)
	if err != nil {
		t.Fatal(err)
	}
	nodes, err := db.ScanNodes("Person")
	if err != nil {
		t.Fatal(err)
	}
	nodes.Next()
	rels, err := db.ScanRels("Follows")
	if err != nil {
		t.Fatal(err)
	}

	// None of the open snapshots above is closed before the DB.
	closeWithin(t, db, 5*time.Second)

	if res.Next() || res2.Next() {
		t.Error("results must be closed with the database")
	}
	if nodes.Next() || rels.Next() {
		t.Error("iterators must be closed with the database")
	}
	for _, c := range []interface{ Close() error }{res, res2, nodes, rels} {
		if err := c.Close(); err != nil {
			t.Errorf("Close after DB.Close should be a no-op: %v", err)
		}
	}
	if _, err := db.ScanRels("Follows"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
