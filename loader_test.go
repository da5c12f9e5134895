package colgraph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
)

func TestCopyCSV(t *testing.T) {
	db := testDB(t)
	conn := testConn(t, db)
	mustExec(t, conn, socialSchema)

	person := writeFile(t, "person.csv", "name,age\nAdam,30\nKarissa,40\nZhang,50\n")
	follows := writeFile(t, "follows.csv", "Adam|Karissa|2020\nKarissa|Zhang|2021\n")
	res := mustExec(t, conn, `
COPY Person FROM '`+person+`' (HEADER=true);
COPY Follows FROM '`+follows+`' (DELIM='|');`)

	rows, _ := res[0].Collect()
	if got := rows[0].String(); got != "3 tuples have been copied to the Person table." {
		t.Errorf("unexpected message %q", got)
	}
	rows, _ = res[1].Collect()
	if got := rows[0].String(); got != "2 tuples have been copied to the Follows table." {
		t.Errorf("unexpected message %q", got)
	}

	it, err := db.ScanNodes("Person")
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	var names []string
	for it.Next() {
		rec := it.Record()
		names = append(names, rec.PK().(string))
		if age, _ := rec.Get("age"); age == nil {
			t.Errorf("%s: age not loaded", rec.PK())
		}
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	if strings.Join(names, ",") != "Adam,Karissa,Zhang" {
		t.Errorf("scan must follow insertion order, got %v", names)
	}
}

func TestCopyJSON(t *testing.T) {
	db := testDB(t)
	conn := testConn(t, db)
	mustExec(t, conn, "CREATE NODE TABLE City(name STRING, population INT64, PRIMARY KEY (name))")

	path := writeFile(t, "city.json", `[{"population": 150000, "name": "Waterloo"}, {"name": "NYC", "population": 8000000}]`)
	mustExec(t, conn, "COPY City FROM '"+path+"'")

	rows := queryRows(t, conn, "MATCH (c:City) RETURN c.name, c.population ORDER BY c.population DESC", nil)
	if len(rows) != 2 || rows[0][0] != "NYC" || rows[0][1] != int64(8000000) {
		t.Errorf("unexpected rows %v", rows)
	}
}

func TestCopyBatchSizeIndependent(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&b, "n%04d,%d\n", i, i%7)
	}
	path := writeFile(t, "many.csv", b.String())

	var want [][]any
	for _, cfg := range []struct{ batch, workers int }{{1, 1}, {7, 3}, {2048, 4}, {100, 16}} {
		opts := DefaultOptions()
		opts.LoadBatchSize = cfg.batch
		opts.LoadWorkers = cfg.workers
		db := testDB(t, opts)
		conn := testConn(t, db)
		mustExec(t, conn, "CREATE NODE TABLE N(id STRING, v INT64, PRIMARY KEY (id)); COPY N FROM '"+path+"'")

		got := queryRows(t, conn, "MATCH (n:N) RETURN id(n), n.id, n.v", nil)
		if len(got) != 1000 {
			t.Fatalf("batch=%d: expected 1000 rows, got %d", cfg.batch, len(got))
		}
		if want == nil {
			want = got
			continue
		}
		for i := range want {
			for j := range want[i] {
				if got[i][j] != want[i][j] {
					t.Fatalf("batch=%d: row %d differs: %v vs %v", cfg.batch, i, got[i], want[i])
				}
			}
		}
	}
}

func TestCopyFailureCommitsNothing(t *testing.T) {
	opts := DefaultOptions()
	opts.LoadBatchSize = 2
	db := testDB(t, opts)
	conn := testConn(t, db)
	mustExec(t, conn, socialSchema)
	mustExec(t, conn, "COPY Person FROM '"+writeFile(t, "p.csv", "Adam,30\nKarissa,40\n")+"'")

	tests := []struct {
		name    string
		table   string
		content string
		kind    error
		row     int
		column  string
	}{
		{"bad int", "Person", "Zhang,50\nNoura,old\n", ErrConstraint, 2, "age"},
		{"duplicate key in file", "Person", "Zhang,50\nNoura,25\nZhang,51\n", ErrConstraint, 3, ""},
		{"duplicate existing key", "Person", "Zhang,50\nAdam,31\n", ErrConstraint, 2, ""},
		{"wrong field count", "Person", "Zhang,50\nNoura\n", ErrConstraint, 2, ""},
		{"dangling source", "Follows", "Adam,Karissa,2020\nGhost,Adam,2021\n", ErrReferential, 2, ""},
		{"dangling target", "Follows", "Adam,Ghost,2021\n", ErrReferential, 1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "bad.csv", tt.content)
			_, err := conn.Exec(context.Background(), "COPY "+tt.table+" FROM '"+path+"'", nil)
			if !errors.Is(err, ErrLoad) {
				t.Fatalf("expected ErrLoad, got %v", err)
			}
			if !errors.Is(err, tt.kind) {
				t.Errorf("expected cause %v, got %v", tt.kind, err)
			}
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("expected *LoadError, got %T", err)
			}
			if le.Row != tt.row || le.Table != tt.table {
				t.Errorf("expected %s row %d, got %s row %d", tt.table, tt.row, le.Table, le.Row)
			}
			if tt.column != "" && le.Column != tt.column {
				t.Errorf("expected column %s, got %q", tt.column, le.Column)
			}
		})
	}

	rows := queryRows(t, conn, "MATCH (p:Person) RETURN count(*)", nil)
	if rows[0][0] != int64(2) {
		t.Errorf("failed loads must not add persons, got %v", rows[0][0])
	}
	rows = queryRows(t, conn, "MATCH (a:Person)-[f:Follows]->(b:Person) RETURN count(f)", nil)
	if rows[0][0] != int64(0) {
		t.Errorf("failed loads must not add rels, got %v", rows[0][0])
	}
}

func TestCopyErrors(t *testing.T) {
	db := testDB(t)
	conn := testConn(t, db)
	ctx := context.Background()
	mustExec(t, conn, socialSchema)

	if _, err := conn.Exec(ctx, "COPY Ghost FROM '"+writeFile(t, "g.csv", "x\n")+"'", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown table: expected ErrNotFound, got %v", err)
	}
	if _, err := conn.Exec(ctx, "COPY Person FROM '/no/such/file.csv'", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing file: expected ErrNotFound, got %v", err)
	}
	path := writeFile(t, "quote.csv", "Adam,30\n\"Kar,40\n")
	if _, err := conn.Exec(ctx, "COPY Person FROM '"+path+"'", nil); !errors.Is(err, ErrLoad) {
		t.Errorf("malformed csv: expected ErrLoad, got %v", err)
	}
}

func TestCopyFromSliceSource(t *testing.T) {
	db := testDB(t)
	conn := testConn(t, db)
	ctx := context.Background()
	mustExec(t, conn, socialSchema)

	// Named columns are matched case-insensitively and in any order.
	n, err := conn.CopyFrom(ctx, "Person", NewSliceSource([]string{"AGE", "Name"}, [][]any{
		{int64(30), "Adam"}, {"41", "Karissa"}, {nil, "Zhang"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 rows, got %d", n)
	}
	rows := queryRows(t, conn, "MATCH (p:Person) RETURN p.name, p.age ORDER BY p.name", nil)
	if rows[1][1] != int64(41) || rows[2][1] != nil {
		t.Errorf("unexpected rows %v", rows)
	}
	if _, err := conn.CopyFrom(ctx, "Person", NewSliceSource(nil, [][]any{{nil, int64(1)}})); !errors.Is(err, ErrConstraint) {
		t.Errorf("null primary key: expected ErrConstraint, got %v", err)
	}
}

func TestCopyCancelled(t *testing.T) {
	db := testDB(t)
	conn := testConn(t, db)
	mustExec(t, conn, socialSchema)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := conn.CopyFrom(ctx, "Person", NewSliceSource(nil, [][]any{{"Adam", int64(1)}}))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if rows := queryRows(t, conn, "MATCH (p:Person) RETURN p.name", nil); len(rows) != 0 {
		t.Errorf("cancelled load must commit nothing, got %v", rows)
	}
}

func TestLoadErrorMessage(t *testing.T) {
	err := &LoadError{Table: "Person", Row: 3, Line: 4, Column: "age", Err: constraintErrorf("bad INT64 %q", "x")}
	want := `colgraph: load into Person failed at row 3 (line 4), column age: colgraph: constraint violation: bad INT64 "x"`
	if err.Error() != want {
		t.Errorf("got %q", err.Error())
	}
	if !errors.Is(err, ErrLoad) || !errors.Is(err, ErrConstraint) {
		t.Error("LoadError must match ErrLoad and its cause")
	}
}

func TestCopyJSON_MatchesByName(t *testing.T) {
	db := testDB(t)
	conn := testConn(t, db)
	mustExec(t, conn, "CREATE NODE TABLE Item(id STRING, a STRING, b STRING, PRIMARY KEY (id))")

	// The first object lacks column a and carries an extra key c; the
	// second has a but not b.
	path := writeFile(t, "items.json", `[{"id": "k1", "b": "bee", "c": "sea"}, {"ID": "k2", "a": "ay"}]`)
	mustExec(t, conn, "COPY Item FROM '"+path+"'")

	rows := queryRows(t, conn, "MATCH (i:Item) RETURN i.id, i.a, i.b", nil)
	assertRows(t, rows,
		[]any{"k1", nil, "bee"},
		[]any{"k2", "ay", nil},
	)
}

func TestCopyNamedSource_MissingKey(t *testing.T) {
	db := testDB(t)
	conn := testConn(t, db)
	ctx := context.Background()
	mustExec(t, conn, socialSchema)
	if _, err := conn.CopyFrom(ctx, "Person", NewSliceSource([]string{"name"}, [][]any{{"Adam"}, {"Zhang"}})); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		table  string
		src    func() (RowSource, error)
		row    int
		column string
	}{
		{"json without primary key", "Person", func() (RowSource, error) {
			return OpenFileSource(writeFile(t, "p.json", `[{"name": "Noura", "age": 25}, {"age": 40}]`), CopyOptions{})
		}, 2, "name"},
		{"slice without primary key", "Person", func() (RowSource, error) {
			return NewSliceSource([]string{"age"}, [][]any{{int64(40)}}), nil
		}, 1, "name"},
		{"rel without target", "Follows", func() (RowSource, error) {
			return NewSliceSource([]string{"from", "since"}, [][]any{{"Adam", int64(2020)}}), nil
		}, 1, "to"},
		{"rel with null source", "Follows", func() (RowSource, error) {
			return OpenFileSource(writeFile(t, "f.json", `{"from": "Adam", "to": "Zhang"}
{"from": null, "to": "Adam"}`), CopyOptions{})
		}, 2, "from"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := tt.src()
			if err != nil {
				t.Fatal(err)
			}
			_, err = conn.CopyFrom(ctx, tt.table, src)
			if !errors.Is(err, ErrLoad) || !errors.Is(err, ErrConstraint) {
				t.Fatalf("expected a constraint load error, got %v", err)
			}
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("expected *LoadError, got %T", err)
			}
			if le.Row != tt.row || le.Column != tt.column {
				t.Errorf("expected row %d column %s, got row %d column %q", tt.row, tt.column, le.Row, le.Column)
			}
		})
	}

	if rows := queryRows(t, conn, "MATCH (p:Person) RETURN count(*)", nil); rows[0][0] != int64(2) {
		t.Errorf("failed loads must not add persons, got %v", rows[0][0])
	}
	if rows := queryRows(t, conn, "MATCH (a:Person)-[f:Follows]->(b:Person) RETURN count(f)", nil); rows[0][0] != int64(0) {
		t.Errorf("failed loads must not add rels, got %v", rows[0][0])
	}
}

type parquetPerson struct {
	Name string `parquet:"name"`
	Age  *int64 `parquet:"age,optional"`
}

type parquetProduct struct {
	Name  string  `parquet:"name"`
	Price float64 `parquet:"price"`
}

type parquetPurchase struct {
	From     string `parquet:"from"`
	To       string `parquet:"to"`
	Quantity int32  `parquet:"quantity"`
}

// writeParquet writes rows to a Parquet file under the test's temp dir and
// returns its path with forward slashes.
func writeParquet[T any](t *testing.T, name string, rows []T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := parquet.NewGenericWriter[T](f)
	if _, err := w.Write(rows); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return filepath.ToSlash(path)
}

func TestCopyParquet(t *testing.T) {
	db := testDB(t)
	conn := testConn(t, db)
	mustExec(t, conn, `
CREATE NODE TABLE IF NOT EXISTS Person(name STRING, age INT64, PRIMARY KEY (name));
CREATE NODE TABLE IF NOT EXISTS Product(name STRING, price DOUBLE, PRIMARY KEY (name));
CREATE REL TABLE IF NOT EXISTS Purchased(FROM Person TO Product, quantity UINT8);`)

	age := func(n int64) *int64 { return &n }
	person := writeParquet(t, "person.parquet", []parquetPerson{
		{"Alice", age(30)}, {"Bob", age(41)}, {"Carol", nil},
	})
	product := writeParquet(t, "product.parquet", []parquetProduct{
		{"Laptop", 999.5}, {"Pen", 1.25},
	})
	purchased := writeParquet(t, "purchased.parquet", []parquetPurchase{
		{"Alice", "Laptop", 1}, {"Alice", "Pen", 10}, {"Bob", "Pen", 3},
	})
	res := mustExec(t, conn, `
COPY Person FROM '`+person+`';
COPY Product FROM '`+product+`';
COPY Purchased FROM '`+purchased+`';`)
	rows, _ := res[2].Collect()
	if got := rows[0].String(); got != "3 tuples have been copied to the Purchased table." {
		t.Errorf("unexpected message %q", got)
	}

	assertRows(t, queryRows(t, conn, "MATCH (p:Person) RETURN p.name, p.age", nil),
		[]any{"Alice", int64(30)}, []any{"Bob", int64(41)}, []any{"Carol", nil})
	assertRows(t, queryRows(t, conn, "MATCH (p:Product) WHERE p.price > 2.0 RETURN p.name, p.price", nil),
		[]any{"Laptop", 999.5})
	assertRows(t, queryRows(t, conn, `
MATCH (p:Person)-[r:PURCHASED]->(pr:Product)
RETURN p.name AS person, SUM(r.quantity) AS num_products_purchased
ORDER BY num_products_purchased DESC`, nil),
		[]any{"Alice", int64(11)}, []any{"Bob", int64(3)})

	// Parquet loads are all-or-nothing like any other source.
	bad := writeParquet(t, "bad.parquet", []parquetPurchase{{"Bob", "Laptop", 1}, {"Bob", "Ghost", 1}})
	if _, err := conn.Exec(context.Background(), "COPY Purchased FROM '"+bad+"'", nil); !errors.Is(err, ErrReferential) {
		t.Fatalf("expected ErrReferential, got %v", err)
	}
	if rows := queryRows(t, conn, "MATCH (a:Person)-[r:Purchased]->(b:Product) RETURN count(r)", nil); rows[0][0] != int64(3) {
		t.Errorf("failed load must not add rels, got %v", rows[0][0])
	}
}
