package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite(t *testing.T) {
	conn, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "oar.db"))
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, sqlbuilder.SQLite, conn.Flavor())
	assert.NoError(t, conn.Ping(context.Background()))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestFlavor(t *testing.T) {
	assert.Equal(t, sqlbuilder.PostgreSQL, (&Connection{Driver: DriverPostgres}).Flavor())
}

func TestEnsureSchemaIsRepeatable(t *testing.T) {
	conn, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "oar.db"))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.EnsureSchema(context.Background()))
	require.NoError(t, conn.EnsureSchema(context.Background()))

	var n int
	require.NoError(t, conn.DB.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'`))
	assert.Equal(t, 4, n)
}

func TestTimeFormatSorts(t *testing.T) {
	a := FormatTime(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	b := FormatTime(time.Date(2024, 1, 1, 10, 0, 0, 500, time.UTC))
	assert.Less(t, a, b)

	parsed, err := ParseTime(b)
	require.NoError(t, err)
	assert.Equal(t, 500, parsed.Nanosecond())
}
