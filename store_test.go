package colgraph

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

// relEdges drains it into "src->dst:since" strings of row offsets.
func relEdges(t *testing.T, it *RelIterator) []string {
	t.Helper()
	var out []string
	for it.Next() {
		r := it.Record()
		since, _ := r.Get("since")
		out = append(out, fmt.Sprintf("%d->%d:%v", r.SrcOffset, r.DstOffset, since))
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestScanRels_Restartable(t *testing.T) {
	db, _ := socialDB(t)

	// Person offsets: Adam 1, Karissa 2, Zhang 3, Noura 4.
	tests := []struct {
		name string
		open func() (*RelIterator, error)
		want []string
	}{
		{"outgoing", func() (*RelIterator, error) { return db.ScanOutgoingRels("Follows", "Adam") },
			[]string{"1->2:2020", "1->3:2020"}},
		{"incoming", func() (*RelIterator, error) { return db.ScanIncomingRels("Follows", "Zhang") },
			[]string{"1->3:2020", "2->3:2021"}},
		{"all", func() (*RelIterator, error) { return db.ScanRels("Follows") },
			[]string{"1->2:2020", "1->3:2020", "2->3:2021", "3->4:2022"}},
		{"no edges", func() (*RelIterator, error) { return db.ScanOutgoingRels("Follows", "Noura") },
			nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := tt.open()
			if err != nil {
				t.Fatal(err)
			}
			defer it.Close()

			first := relEdges(t, it)
			if !reflect.DeepEqual(first, tt.want) {
				t.Fatalf("got %v, want %v", first, tt.want)
			}
			if it.Next() {
				t.Fatal("an exhausted iterator must stay exhausted")
			}
			it.Reset()
			if again := relEdges(t, it); !reflect.DeepEqual(again, first) {
				t.Errorf("after Reset got %v, want %v", again, first)
			}
		})
	}
}

func TestScanRels_Errors(t *testing.T) {
	db, _ := socialDB(t)
	if _, err := db.ScanOutgoingRels("Follows", "Ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown source key: expected ErrNotFound, got %v", err)
	}
	if _, err := db.ScanIncomingRels("Nope", "Zhang"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown table: expected ErrNotFound, got %v", err)
	}
	if _, err := db.ScanRels("Person"); !errors.Is(err, ErrNotFound) {
		t.Errorf("node table as rel table: expected ErrNotFound, got %v", err)
	}
}

func TestScanNodes_Restartable(t *testing.T) {
	db, _ := socialDB(t)
	it, err := db.ScanNodes("Person", "name")
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	drain := func() []string {
		var names []string
		for it.Next() {
			rec := it.Record()
			if age, ok := rec.Get("age"); !ok || age != nil {
				t.Errorf("%v: age was not projected and must read as nil, got %v", rec.PK(), age)
			}
			names = append(names, rec.PK().(string))
		}
		if err := it.Err(); err != nil {
			t.Fatal(err)
		}
		return names
	}

	want := []string{"Adam", "Karissa", "Zhang", "Noura"}
	if got := drain(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	it.Reset()
	if got := drain(); !reflect.DeepEqual(got, want) {
		t.Errorf("after Reset got %v, want %v", got, want)
	}

	if _, err := db.ScanNodes("Person", "height"); !errors.Is(err, ErrType) {
		t.Errorf("unknown column: expected ErrType, got %v", err)
	}
}
