package colgraph

import (
	"log/slog"
	"strings"
	"time"
)

// DataType is the declared scalar type of a column.
type DataType byte

const (
	TypeString DataType = iota + 1
	TypeInt64
	TypeInt32
	TypeInt16
	TypeInt8
	TypeUint8
	TypeDouble
	TypeBool
)

var dataTypeNames = map[DataType]string{
	TypeString: "STRING",
	TypeInt64:  "INT64",
	TypeInt32:  "INT32",
	TypeInt16:  "INT16",
	TypeInt8:   "INT8",
	TypeUint8:  "UINT8",
	TypeDouble: "DOUBLE",
	TypeBool:   "BOOL",
}

// ParseDataType resolves a DDL type name (case-insensitive). INT is an alias
// for INT64, FLOAT for DOUBLE, BOOLEAN for BOOL.
func ParseDataType(name string) (DataType, bool) {
	switch strings.ToUpper(name) {
	case "STRING":
		return TypeString, true
	case "INT64", "INT", "SERIAL":
		return TypeInt64, true
	case "INT32":
		return TypeInt32, true
	case "INT16":
		return TypeInt16, true
	case "INT8":
		return TypeInt8, true
	case "UINT8":
		return TypeUint8, true
	case "DOUBLE", "FLOAT":
		return TypeDouble, true
	case "BOOL", "BOOLEAN":
		return TypeBool, true
	}
	return 0, false
}

func (t DataType) String() string {
	if s, ok := dataTypeNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// isInteger reports whether values of t are held as Go integers.
func (t DataType) isInteger() bool {
	switch t {
	case TypeInt64, TypeInt32, TypeInt16, TypeInt8, TypeUint8:
		return true
	}
	return false
}

// Direction represents the direction of a relationship traversal.
type Direction byte

const (
	// Outgoing follows relationships from their source to their target.
	Outgoing Direction = 0x01
	// Incoming follows relationships from their target back to their source.
	Incoming Direction = 0x02
)

// Options configures a DB instance.
type Options struct {
	// NoSync disables fsync after each commit for faster loads (risk of data loss on crash).
	NoSync bool
	// ReadOnly opens the database in read-only mode. DDL and COPY fail.
	ReadOnly bool
	// MmapSize is the initial mmap size for the store file in bytes.
	// A large initial map avoids remaps while streaming results hold read
	// transactions open. Default: 256MB.
	MmapSize int
	// Logger receives structured logs. Defaults to slog.Default().
	Logger *slog.Logger

	// LoadBatchSize is the number of source rows parsed per batch during COPY.
	LoadBatchSize int
	// LoadWorkers is the number of goroutines parsing a batch concurrently.
	LoadWorkers int

	// QueryCacheSize bounds the parsed-statement LRU cache.
	QueryCacheSize int
	// MaxResultRows caps the rows a single query may produce. 0 = unlimited.
	MaxResultRows int
	// DefaultQueryTimeout applies when the caller's context has no deadline. 0 = none.
	DefaultQueryTimeout time.Duration
	// SlowQueryThreshold logs queries slower than this. 0 disables slow query logging.
	SlowQueryThreshold time.Duration
	// WriteTimeout bounds how long a mutation waits for the writer lock. 0 = forever.
	WriteTimeout time.Duration
}

// DefaultOptions returns sensible defaults for a single-process embedded store.
func DefaultOptions() Options {
	return Options{
		MmapSize:       256 * 1024 * 1024, // 256MB initial mmap
		LoadBatchSize:  2048,
		LoadWorkers:    4,
		QueryCacheSize: defaultQueryCacheCapacity,
	}
}

// TableStats describes one table.
type TableStats struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"` // "NODE" or "REL"
	RowCount uint64 `json:"row_count"`
}

// DBStats holds database statistics.
type DBStats struct {
	ID            string       `json:"id"`
	Tables        []TableStats `json:"tables"`
	NodeCount     uint64       `json:"node_count"`
	RelCount      uint64       `json:"rel_count"`
	DiskSizeBytes int64        `json:"disk_size_bytes"`
}
