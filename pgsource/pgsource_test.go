package pgsource

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstrYoda/colgraph"
)

func TestConvert(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "abc", convert([]byte("abc")))
	assert.Equal(t, int64(7), convert(int64(7)))
	assert.Equal(t, int32(7), convert(int32(7)))
	assert.Nil(t, convert(nil))
	assert.Equal(t, "2024-03-01T12:00:00Z", convert(ts))

	assert.Equal(t, int64(1500), convert(pgtype.Numeric{Int: big.NewInt(15), Exp: 2, Valid: true}))
	assert.InDelta(t, 1.5, convert(pgtype.Numeric{Int: big.NewInt(15), Exp: -1, Valid: true}), 1e-9)
	assert.Nil(t, convert(pgtype.Numeric{}))

	id := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}
	assert.Equal(t, "12345678-9abc-def0-1234-56789abcdef0", convert(id))
}

// TestCopyFromPostgres loads a query result into a node table. It needs a
// reachable server: set COLGRAPH_TEST_PG_DSN to run it.
func TestCopyFromPostgres(t *testing.T) {
	dsn := os.Getenv("COLGRAPH_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("COLGRAPH_TEST_PG_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := colgraph.Open(filepath.Join(t.TempDir(), "db"), colgraph.DefaultOptions())
	require.NoError(t, err)
	defer db.Close()
	conn, err := db.Connect()
	require.NoError(t, err)
	defer conn.Close()

	res, err := conn.Exec(ctx, "CREATE NODE TABLE Person(name STRING, age INT64, PRIMARY KEY (name))", nil)
	require.NoError(t, err)
	res.Close()

	src, err := Open(ctx, dsn,
		"SELECT * FROM (VALUES ('Adam', 30::bigint), ('Karissa', 40), ('Zhang', 50)) AS p(name, age)")
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, []string{"name", "age"}, src.Columns())

	n, err := conn.CopyFrom(ctx, "Person", src)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	res, err = conn.Query(ctx, "MATCH (p:Person) WHERE p.age > 35 RETURN p.name ORDER BY p.name", nil)
	require.NoError(t, err)
	rows, err := res.Collect()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Karissa", rows[0].Values[0])
	assert.Equal(t, "Zhang", rows[1].Values[0])
}
