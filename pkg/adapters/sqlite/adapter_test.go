package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leaprules/pkg/adapter"
	"github.com/leapstack-labs/leaprules/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		opts     map[string]string
		expected string
	}{
		{"no options", ":memory:", nil, ":memory:"},
		{"file no options", "/tmp/rules.db", map[string]string{}, "/tmp/rules.db"},
		{
			name:     "pragmas sorted",
			path:     "rules.db",
			opts:     map[string]string{"journal_mode": "WAL", "foreign_keys": "1"},
			expected: "file:rules.db?_pragma=foreign_keys%281%29&_pragma=journal_mode%28WAL%29",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildDSN(tt.path, tt.opts))
		})
	}
}

func TestAdapter_ExecuteRule(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)
	require.NoError(t, adp.Connect(ctx, core.AdapterConfig{}))
	defer func() { _ = adp.Close() }()

	_, err := adp.Exec(ctx, `CREATE TABLE orders (id INTEGER PRIMARY KEY, amount REAL)`)
	require.NoError(t, err)
	n, err := adp.Exec(ctx, `INSERT INTO orders (amount) VALUES (10), (-1), (-2)`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	res, err := adp.ExecuteRule(ctx, "SELECT id FROM orders WHERE amount < 0", true)
	require.NoError(t, err)
	assert.True(t, res.ReturnsRows)
	assert.Equal(t, int64(2), res.Rows)

	res, err = adp.ExecuteRule(ctx, "DELETE FROM orders WHERE amount < 0", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Rows)

	rows, err := adapter.QueryMaps(ctx, adp, "SELECT COUNT(*) AS n FROM orders")
	require.NoError(t, err)
	assert.EqualValues(t, 3, rows[0]["n"], "dry run must roll back")

	_, err = adp.ExecuteRule(ctx, "DELETE FROM orders WHERE amount < 0", false)
	require.NoError(t, err)
	rows, err = adapter.QueryMaps(ctx, adp, "SELECT COUNT(*) AS n FROM orders")
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows[0]["n"])
}

func TestAdapter_FileWithPragmas(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "target.db")

	adp := New(nil)
	require.NoError(t, adp.Connect(ctx, core.AdapterConfig{
		Path:    path,
		Options: map[string]string{"foreign_keys": "1"},
	}))
	defer func() { _ = adp.Close() }()

	rows, err := adapter.QueryMaps(ctx, adp, "PRAGMA foreign_keys")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 1, rows[0]["foreign_keys"])
}

func TestAdapter_Registry(t *testing.T) {
	factory, ok := adapter.Get("sqlite")
	require.True(t, ok)

	a, ok := factory(nil).(*Adapter)
	require.True(t, ok)
	assert.Equal(t, "sqlite", a.DialectName())
	assert.False(t, a.IsConnected())
}
