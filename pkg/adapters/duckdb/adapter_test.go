package duckdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leaprules/pkg/adapter"
	"github.com/leapstack-labs/leaprules/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, cfg core.AdapterConfig) *Adapter {
	t.Helper()
	adp := New(nil)
	require.NoError(t, adp.Connect(context.Background(), cfg))
	t.Cleanup(func() { _ = adp.Close() })
	return adp
}

func TestAdapter_Connect(t *testing.T) {
	tests := []struct {
		name      string
		setupPath func(t *testing.T) string
		verify    func(t *testing.T, path string)
	}{
		{
			name: "in-memory",
			setupPath: func(_ *testing.T) string {
				return ":memory:"
			},
		},
		{
			name: "default path",
			setupPath: func(_ *testing.T) string {
				return ""
			},
		},
		{
			name: "file-based",
			setupPath: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "test.duckdb")
			},
			verify: func(t *testing.T, path string) {
				_, err := os.Stat(path)
				assert.False(t, os.IsNotExist(err), "database file was not created")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbPath := tt.setupPath(t)
			adp := connect(t, core.AdapterConfig{Path: dbPath})
			assert.True(t, adp.IsConnected())

			if tt.verify != nil {
				tt.verify(t, dbPath)
			}
		})
	}
}

func TestAdapter_NotConnected(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)

	_, err := adp.Exec(ctx, "SELECT 1")
	require.ErrorIs(t, err, adapter.ErrNotConnected)

	_, err = adp.Query(ctx, "SELECT 1")
	require.ErrorIs(t, err, adapter.ErrNotConnected)
}

func TestAdapter_Close(t *testing.T) {
	tests := []struct {
		name    string
		connect bool
	}{
		{"close without connect", false},
		{"close after connect", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adp := New(nil)
			if tt.connect {
				require.NoError(t, adp.Connect(context.Background(), core.AdapterConfig{Path: ":memory:"}))
			}
			assert.NoError(t, adp.Close())
		})
	}
}

func seedOrders(t *testing.T, ctx context.Context, adp *Adapter) {
	t.Helper()
	_, err := adp.Exec(ctx, `
		CREATE TABLE orders (
			order_id INTEGER,
			customer_id INTEGER,
			amount DOUBLE
		)
	`)
	require.NoError(t, err)
	n, err := adp.Exec(ctx, `
		INSERT INTO orders VALUES
			(1, 1, 100.0),
			(2, 1, -15.0),
			(3, 2, -200.0)
	`)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func countOrders(t *testing.T, ctx context.Context, adp *Adapter, where string) int {
	t.Helper()
	rows, err := adp.Query(ctx, "SELECT COUNT(*) FROM orders WHERE "+where)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var count int
	require.True(t, rows.Next())
	require.NoError(t, rows.Scan(&count))
	return count
}

func TestAdapter_ExecuteRule(t *testing.T) {
	ctx := context.Background()

	t.Run("select counts violating rows", func(t *testing.T) {
		adp := connect(t, core.AdapterConfig{Path: ":memory:"})
		seedOrders(t, ctx, adp)

		res, err := adp.ExecuteRule(ctx, "SELECT order_id FROM orders WHERE amount < 0", true)
		require.NoError(t, err)
		assert.True(t, res.ReturnsRows)
		assert.Equal(t, int64(2), res.Rows)
		assert.Equal(t, []string{"order_id"}, res.Columns)
	})

	t.Run("dry run rolls back dml", func(t *testing.T) {
		adp := connect(t, core.AdapterConfig{Path: ":memory:"})
		seedOrders(t, ctx, adp)

		res, err := adp.ExecuteRule(ctx, "DELETE FROM orders WHERE amount < 0", true)
		require.NoError(t, err)
		assert.False(t, res.ReturnsRows)
		assert.Equal(t, int64(2), res.Rows)
		assert.Equal(t, 2, countOrders(t, ctx, adp, "amount < 0"))
	})

	t.Run("live run commits dml", func(t *testing.T) {
		adp := connect(t, core.AdapterConfig{Path: ":memory:"})
		seedOrders(t, ctx, adp)

		_, err := adp.ExecuteRule(ctx, "UPDATE orders SET amount = 0 WHERE amount < 0", false)
		require.NoError(t, err)
		assert.Equal(t, 0, countOrders(t, ctx, adp, "amount < 0"))
	})

	t.Run("missing table fails", func(t *testing.T) {
		adp := connect(t, core.AdapterConfig{Path: ":memory:"})

		_, err := adp.ExecuteRule(ctx, "SELECT * FROM nope", true)
		require.Error(t, err)
	})
}

func TestQueryMaps(t *testing.T) {
	ctx := context.Background()
	adp := connect(t, core.AdapterConfig{Path: ":memory:"})
	seedOrders(t, ctx, adp)

	rows, err := adapter.QueryMaps(ctx, adp, "SELECT order_id, amount FROM orders WHERE customer_id = ? ORDER BY order_id", 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 1, rows[0]["order_id"])
	assert.InEpsilon(t, -15.0, rows[1]["amount"], 0.001)
}

func TestConnect_WithParams(t *testing.T) {
	ctx := context.Background()
	adp := connect(t, core.AdapterConfig{
		Path:    ":memory:",
		Options: map[string]string{"extensions": "json", "threads": "2"},
	})

	rows, err := adp.Query(ctx, "SELECT extension_name FROM duckdb_extensions() WHERE loaded = true AND extension_name = 'json'")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()
	require.True(t, rows.Next(), "json extension should be loaded")

	var extName string
	require.NoError(t, rows.Scan(&extName))
	assert.Equal(t, "json", extName)
}

func TestConnect_WithSettings(t *testing.T) {
	ctx := context.Background()
	adp := connect(t, core.AdapterConfig{
		Path:    ":memory:",
		Options: map[string]string{"threads": "2"},
	})

	rows, err := adp.Query(ctx, "SELECT current_setting('threads')")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()
	require.True(t, rows.Next())

	var threadsSetting string
	require.NoError(t, rows.Scan(&threadsSetting))
	assert.Equal(t, "2", threadsSetting)
}

func TestConnect_InvalidOptions(t *testing.T) {
	adp := New(nil)
	err := adp.Connect(context.Background(), core.AdapterConfig{
		Path:    ":memory:",
		Options: map[string]string{"not_a_real_setting": "1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply duckdb option")
	assert.False(t, adp.IsConnected())
}

func TestAdapter_Registry(t *testing.T) {
	factory, ok := adapter.Get("duckdb")
	require.True(t, ok)

	d, ok := factory(nil).(*Adapter)
	require.True(t, ok)
	assert.Equal(t, "duckdb", d.DialectName())
}

func TestAdapter_LoadCSV(t *testing.T) {
	ctx := context.Background()
	adp := connect(t, core.AdapterConfig{Path: ":memory:"})

	csvPath := filepath.Join(t.TempDir(), "orders.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("id,amount,tier\n1,100.5,gold\n2,-5,silver\n3,2500,bronze\n"), 0600))

	n, err := adapter.LoadCSV(ctx, adp, "orders", csvPath)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	rows, err := adapter.QueryMaps(ctx, adp, "SELECT id FROM orders WHERE amount < 0")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 2, rows[0]["id"])
}
