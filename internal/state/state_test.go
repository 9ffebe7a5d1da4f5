// internal/state/state_test.go
package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// openTestDB opens a fresh database file under the test's temp dir.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sentinelops.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts.UTC()
}

func TestTimeFormatIsFixedWidth(t *testing.T) {
	a := formatTime(mustTime(t, "2026-01-02T10:00:00Z"))
	b := formatTime(time.Date(2026, 1, 2, 10, 0, 0, 123456000, time.UTC))
	require.Equal(t, len(a), len(b))
	require.Less(t, a, b)
	require.Equal(t, "2026-01-02T10:00:00.000000Z", a)

	parsed, err := parseTime(b)
	require.NoError(t, err)
	require.True(t, parsed.Equal(time.Date(2026, 1, 2, 10, 0, 0, 123456000, time.UTC)))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sentinelops.db")
	db, err := Open(path, 1000)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path, 1000)
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, path, db.Path())
}

func TestPlaceholders(t *testing.T) {
	require.Equal(t, "", placeholders(0))
	require.Equal(t, "?", placeholders(1))
	require.Equal(t, "?, ?, ?", placeholders(3))
}
