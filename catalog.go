package colgraph

import (
	"context"
	"fmt"
	"strings"
	"sync"

	bolt "go.etcd.io/bbolt"
)

// ---------------------------------------------------------------------------
// Catalog: typed schema definitions for node and relationship tables.
//
// Node and rel tables share one case-insensitive namespace. Entries are
// created once by DDL and persist for the lifetime of the store:
//
//	bucket "catalog":  seq(8) → record{kind, name, columns, pk, from, to}
//
// The in-memory view is only updated after the bbolt transaction that
// persisted the entry has committed, so readers never observe a table whose
// buckets do not exist yet.
// ---------------------------------------------------------------------------

// Column is a named, typed column of a table.
type Column struct {
	Name string   `msgpack:"name" json:"name"`
	Type DataType `msgpack:"type" json:"type"`
}

// NodeTableSchema describes a node table. Values of PrimaryKey are unique
// within the table.
type NodeTableSchema struct {
	Name       string
	Columns    []Column
	PrimaryKey string
}

// ColumnIndex returns the position of the named column (case-insensitive).
func (s *NodeTableSchema) ColumnIndex(name string) (int, bool) {
	return columnIndex(s.Columns, name)
}

// PrimaryKeyIndex returns the position of the primary-key column.
func (s *NodeTableSchema) PrimaryKeyIndex() int {
	i, _ := s.ColumnIndex(s.PrimaryKey)
	return i
}

// PrimaryKeyType returns the declared type of the primary-key column.
func (s *NodeTableSchema) PrimaryKeyType() DataType {
	return s.Columns[s.PrimaryKeyIndex()].Type
}

// RelTableSchema describes a directed relationship table from one node
// table to another (possibly the same one). Columns are the extra properties.
type RelTableSchema struct {
	Name    string
	From    string
	To      string
	Columns []Column
}

// ColumnIndex returns the position of the named extra column (case-insensitive).
func (s *RelTableSchema) ColumnIndex(name string) (int, bool) {
	return columnIndex(s.Columns, name)
}

func columnIndex(cols []Column, name string) (int, bool) {
	for i, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return i, true
		}
	}
	return -1, false
}

// Reserved rel column names holding endpoint offsets.
const (
	relSrcColumn = "_src"
	relDstColumn = "_dst"
)

// catalogRecord is the persisted form of a catalog entry.
type catalogRecord struct {
	Kind       string   `msgpack:"kind"` // "NODE" | "REL"
	Name       string   `msgpack:"name"`
	Columns    []Column `msgpack:"columns"`
	PrimaryKey string   `msgpack:"pk,omitempty"`
	From       string   `msgpack:"from,omitempty"`
	To         string   `msgpack:"to,omitempty"`
}

const (
	kindNode = "NODE"
	kindRel  = "REL"
)

// catalog is the in-memory schema registry. Schemas are immutable once
// registered; the maps are guarded by mu.
type catalog struct {
	mu    sync.RWMutex
	nodes map[string]*NodeTableSchema // lower-cased name → schema
	rels  map[string]*RelTableSchema
	order []string // original names, creation order
}

func newCatalog() *catalog {
	return &catalog{
		nodes: make(map[string]*NodeTableSchema),
		rels:  make(map[string]*RelTableSchema),
	}
}

func tableKey(name string) string { return strings.ToLower(name) }

// exists reports whether any table with the name is registered.
func (c *catalog) exists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k := tableKey(name)
	_, n := c.nodes[k]
	_, r := c.rels[k]
	return n || r
}

// lookupNodeTable returns the node table schema or ErrNotFound.
func (c *catalog) lookupNodeTable(name string) (*NodeTableSchema, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.nodes[tableKey(name)]; ok {
		return s, nil
	}
	return nil, notFoundErrorf("node table %q does not exist", name)
}

// lookupRelTable returns the rel table schema or ErrNotFound.
func (c *catalog) lookupRelTable(name string) (*RelTableSchema, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.rels[tableKey(name)]; ok {
		return s, nil
	}
	return nil, notFoundErrorf("rel table %q does not exist", name)
}

// relTablesBetween returns rel tables whose endpoints match. An empty
// from or to matches any node table.
func (c *catalog) relTablesBetween(from, to string) []*RelTableSchema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*RelTableSchema
	for _, name := range c.order {
		r, ok := c.rels[tableKey(name)]
		if !ok {
			continue
		}
		if from != "" && !strings.EqualFold(r.From, from) {
			continue
		}
		if to != "" && !strings.EqualFold(r.To, to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// names returns all table names in creation order.
func (c *catalog) names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

func (c *catalog) addNode(s *NodeTableSchema) {
	c.mu.Lock()
	c.nodes[tableKey(s.Name)] = s
	c.order = append(c.order, s.Name)
	c.mu.Unlock()
}

func (c *catalog) addRel(s *RelTableSchema) {
	c.mu.Lock()
	c.rels[tableKey(s.Name)] = s
	c.order = append(c.order, s.Name)
	c.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// validateNodeTable checks a node table definition against the registry.
func (c *catalog) validateNodeTable(s *NodeTableSchema) error {
	if s.Name == "" {
		return schemaErrorf("table name must not be empty")
	}
	if c.exists(s.Name) {
		return schemaErrorf("table %q already exists", s.Name)
	}
	if len(s.Columns) == 0 {
		return schemaErrorf("node table %q must declare at least one column", s.Name)
	}
	if err := validateColumns(s.Name, s.Columns); err != nil {
		return err
	}
	idx, ok := s.ColumnIndex(s.PrimaryKey)
	if !ok {
		return schemaErrorf("primary key %q is not a column of %q", s.PrimaryKey, s.Name)
	}
	switch s.Columns[idx].Type {
	case TypeDouble, TypeBool:
		return schemaErrorf("primary key %q of %q cannot have type %s",
			s.PrimaryKey, s.Name, s.Columns[idx].Type)
	}
	return nil
}

// validateRelTable checks a rel table definition against the registry.
func (c *catalog) validateRelTable(s *RelTableSchema) error {
	if s.Name == "" {
		return schemaErrorf("table name must not be empty")
	}
	if c.exists(s.Name) {
		return schemaErrorf("table %q already exists", s.Name)
	}
	if _, err := c.lookupNodeTable(s.From); err != nil {
		return schemaErrorf("rel table %q: FROM table %q is not a node table", s.Name, s.From)
	}
	if _, err := c.lookupNodeTable(s.To); err != nil {
		return schemaErrorf("rel table %q: TO table %q is not a node table", s.Name, s.To)
	}
	for _, col := range s.Columns {
		if strings.EqualFold(col.Name, relSrcColumn) || strings.EqualFold(col.Name, relDstColumn) {
			return schemaErrorf("rel table %q: column name %q is reserved", s.Name, col.Name)
		}
	}
	return validateColumns(s.Name, s.Columns)
}

func validateColumns(table string, cols []Column) error {
	seen := make(map[string]bool, len(cols))
	for _, col := range cols {
		if col.Name == "" {
			return schemaErrorf("table %q: column name must not be empty", table)
		}
		if _, ok := dataTypeNames[col.Type]; !ok {
			return schemaErrorf("table %q: column %q has unknown type", table, col.Name)
		}
		k := strings.ToLower(col.Name)
		if seen[k] {
			return schemaErrorf("table %q: column %q declared twice", table, col.Name)
		}
		seen[k] = true
	}
	return nil
}

// ---------------------------------------------------------------------------
// DDL: persisted through the single writer.
// ---------------------------------------------------------------------------

// createNodeTable validates, persists and registers a node table.
// With ifNotExists, an existing table of the same name is a no-op.
func (db *DB) createNodeTable(ctx context.Context, s NodeTableSchema, ifNotExists bool) (bool, error) {
	s.Columns = append([]Column(nil), s.Columns...)
	if idx, ok := s.ColumnIndex(s.PrimaryKey); ok {
		s.PrimaryKey = s.Columns[idx].Name
	}

	created := false
	err := db.mutate(ctx, func() error {
		if ifNotExists && db.catalog.exists(s.Name) {
			return nil
		}
		if err := db.catalog.validateNodeTable(&s); err != nil {
			return err
		}
		rec := catalogRecord{Kind: kindNode, Name: s.Name, Columns: s.Columns, PrimaryKey: s.PrimaryKey}
		if err := db.store.update(ctx, func(tx *bolt.Tx) error {
			if err := putCatalogRecord(tx, rec); err != nil {
				return err
			}
			return createNodeTableBuckets(tx, &s)
		}); err != nil {
			return fmt.Errorf("colgraph: create node table %s: %w", s.Name, err)
		}
		db.catalog.addNode(&s)
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if created {
		db.metrics.DDLTotal.Add(1)
		db.log.Info("node table created", "table", s.Name, "columns", len(s.Columns), "pk", s.PrimaryKey)
	}
	return created, nil
}

// createRelTable validates, persists and registers a rel table.
func (db *DB) createRelTable(ctx context.Context, s RelTableSchema, ifNotExists bool) (bool, error) {
	s.Columns = append([]Column(nil), s.Columns...)

	created := false
	err := db.mutate(ctx, func() error {
		if ifNotExists && db.catalog.exists(s.Name) {
			return nil
		}
		if err := db.catalog.validateRelTable(&s); err != nil {
			return err
		}
		// Canonicalise endpoint names to their declared spelling.
		from, _ := db.catalog.lookupNodeTable(s.From)
		to, _ := db.catalog.lookupNodeTable(s.To)
		s.From, s.To = from.Name, to.Name

		rec := catalogRecord{Kind: kindRel, Name: s.Name, Columns: s.Columns, From: s.From, To: s.To}
		if err := db.store.update(ctx, func(tx *bolt.Tx) error {
			if err := putCatalogRecord(tx, rec); err != nil {
				return err
			}
			return createRelTableBuckets(tx, &s)
		}); err != nil {
			return fmt.Errorf("colgraph: create rel table %s: %w", s.Name, err)
		}
		db.catalog.addRel(&s)
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if created {
		db.metrics.DDLTotal.Add(1)
		db.log.Info("rel table created", "table", s.Name, "from", s.From, "to", s.To, "columns", len(s.Columns))
	}
	return created, nil
}

func putCatalogRecord(tx *bolt.Tx, rec catalogRecord) error {
	b := tx.Bucket(bucketCatalog)
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return b.Put(encodeUint64(seq), data)
}

// loadCatalog rebuilds the in-memory catalog from the catalog bucket.
func (c *catalog) load(tx *bolt.Tx) error {
	b := tx.Bucket(bucketCatalog)
	if b == nil {
		return nil
	}
	return b.ForEach(func(k, v []byte) error {
		var rec catalogRecord
		if err := decodeRecord(v, &rec); err != nil {
			return fmt.Errorf("colgraph: catalog entry %x: %w", k, err)
		}
		switch rec.Kind {
		case kindNode:
			c.addNode(&NodeTableSchema{Name: rec.Name, Columns: rec.Columns, PrimaryKey: rec.PrimaryKey})
		case kindRel:
			c.addRel(&RelTableSchema{Name: rec.Name, From: rec.From, To: rec.To, Columns: rec.Columns})
		default:
			return fmt.Errorf("colgraph: catalog entry %x has unknown kind %q", k, rec.Kind)
		}
		return nil
	})
}

// NodeTable returns the schema of the named node table.
func (db *DB) NodeTable(name string) (*NodeTableSchema, error) {
	if db.isClosed() {
		return nil, ErrClosed
	}
	return db.catalog.lookupNodeTable(name)
}

// RelTable returns the schema of the named rel table.
func (db *DB) RelTable(name string) (*RelTableSchema, error) {
	if db.isClosed() {
		return nil, ErrClosed
	}
	return db.catalog.lookupRelTable(name)
}

// Tables returns all table names in creation order.
func (db *DB) Tables() []string {
	return db.catalog.names()
}
