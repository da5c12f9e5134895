package colgraph

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestCreateTables(t *testing.T) {
	db := testDB(t)
	conn := testConn(t, db)

	res := mustExec(t, conn, socialSchema)
	if len(res) != 4 {
		t.Fatalf("expected 4 results, got %d", len(res))
	}
	rows, _ := res[0].Collect()
	if got := rows[0].String(); got != "Table Person has been created." {
		t.Errorf("unexpected message %q", got)
	}

	s, err := db.NodeTable("person")
	if err != nil {
		t.Fatalf("NodeTable lookup should be case-insensitive: %v", err)
	}
	if s.Name != "Person" || s.PrimaryKey != "name" || s.PrimaryKeyType() != TypeString {
		t.Errorf("unexpected schema %+v", s)
	}
	r, err := db.RelTable("Follows")
	if err != nil {
		t.Fatal(err)
	}
	if r.From != "Person" || r.To != "Person" || len(r.Columns) != 1 {
		t.Errorf("unexpected rel schema %+v", r)
	}
	if got := db.Tables(); len(got) != 4 {
		t.Errorf("expected 4 tables, got %v", got)
	}
	if _, err := db.NodeTable("Follows"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rel table looked up as node table: expected ErrNotFound, got %v", err)
	}
}

func TestCreateTableErrors(t *testing.T) {
	db := testDB(t)
	conn := testConn(t, db)
	ctx := context.Background()
	mustExec(t, conn, "CREATE NODE TABLE Person(name STRING, PRIMARY KEY (name))")

	tests := []struct {
		name  string
		query string
	}{
		{"duplicate table", "CREATE NODE TABLE Person(id INT64, PRIMARY KEY (id))"},
		{"duplicate table other case", "CREATE NODE TABLE PERSON(id INT64, PRIMARY KEY (id))"},
		{"rel name taken by node table", "CREATE REL TABLE Person(FROM Person TO Person)"},
		{"unknown FROM table", "CREATE REL TABLE Visits(FROM Ghost TO Person)"},
		{"unknown TO table", "CREATE REL TABLE Visits(FROM Person TO Ghost)"},
		{"primary key not a column", "CREATE NODE TABLE City(name STRING, PRIMARY KEY (id))"},
		{"double primary key", "CREATE NODE TABLE Score(v DOUBLE, PRIMARY KEY (v))"},
		{"bool primary key", "CREATE NODE TABLE Flag(v BOOL, PRIMARY KEY (v))"},
		{"repeated column", "CREATE NODE TABLE City(name STRING, Name STRING, PRIMARY KEY (name))"},
		{"unknown type", "CREATE NODE TABLE City(name WIDGET, PRIMARY KEY (name))"},
		{"reserved rel column", "CREATE REL TABLE Knows(FROM Person TO Person, _src INT64)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := conn.Exec(ctx, tt.query, nil); !errors.Is(err, ErrSchema) {
				t.Errorf("expected ErrSchema, got %v", err)
			}
		})
	}
	if got := db.Tables(); len(got) != 1 {
		t.Errorf("failed DDL must not register tables, got %v", got)
	}
}

func TestCreateTableIfNotExists(t *testing.T) {
	db := testDB(t)
	conn := testConn(t, db)
	mustExec(t, conn, "CREATE NODE TABLE Person(name STRING, PRIMARY KEY (name))")

	res := mustExec(t, conn, "CREATE NODE TABLE IF NOT EXISTS Person(id INT64, PRIMARY KEY (id))")
	rows, _ := res[0].Collect()
	if got := rows[0].String(); got != "Table Person already exists." {
		t.Errorf("unexpected message %q", got)
	}
	s, _ := db.NodeTable("Person")
	if s.PrimaryKey != "name" {
		t.Error("IF NOT EXISTS must keep the existing definition")
	}
}

func TestCatalogPersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "testdb")
	db, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	conn, _ := db.Connect()
	mustExec(t, conn, socialSchema)
	db.Close()

	db, err = Open(dir, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	r, err := db.RelTable("LivesIn")
	if err != nil {
		t.Fatalf("rel table lost across reopen: %v", err)
	}
	if r.From != "Person" || r.To != "City" {
		t.Errorf("unexpected rel schema %+v", r)
	}
	conn = testConn(t, db)
	if _, err := conn.Exec(context.Background(), "CREATE NODE TABLE City(x INT64, PRIMARY KEY (x))", nil); !errors.Is(err, ErrSchema) {
		t.Errorf("expected ErrSchema for a restored name, got %v", err)
	}
}

func TestRelTablesBetween(t *testing.T) {
	db, _ := socialDB(t)
	if got := db.catalog.relTablesBetween("Person", "City"); len(got) != 1 || got[0].Name != "LivesIn" {
		t.Errorf("expected LivesIn, got %v", got)
	}
	if got := db.catalog.relTablesBetween("City", "Person"); len(got) != 0 {
		t.Errorf("expected none, got %v", got)
	}
}
