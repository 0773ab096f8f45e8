package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leaprules/pkg/core"
	"github.com/leapstack-labs/leaprules/pkg/sqlref"
)

// ErrNotConnected is returned when an adapter is used before Connect.
var ErrNotConnected = errors.New("database connection not established")

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Exec, Query and ExecuteRule implementations.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    core.AdapterConfig
	Logger *slog.Logger
}

func (b *BaseSQLAdapter) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		b.logger().Debug("closing database connection")
		return b.DB.Close()
	}
	return nil
}

// Exec executes a parameterized statement and returns the rows affected.
func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlStr string, args ...any) (int64, error) {
	if b.DB == nil {
		return 0, ErrNotConnected
	}
	res, err := b.DB.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute SQL: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// some drivers cannot report affected rows for DDL
		return 0, nil
	}
	return n, nil
}

// Query executes a parameterized statement that returns rows.
func (b *BaseSQLAdapter) Query(ctx context.Context, sqlStr string, args ...any) (*core.Rows, error) {
	if b.DB == nil {
		return nil, ErrNotConnected
	}
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := b.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &core.Rows{Rows: rows}, nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// ExecuteRule runs a rule statement inside a transaction. Statements whose
// main verb is SELECT are queried and their rows counted; everything else is
// executed and reports rows affected. In dry-run mode the transaction is
// always rolled back; otherwise it is committed.
func (b *BaseSQLAdapter) ExecuteRule(ctx context.Context, sqlStr string, dryRun bool) (*core.StatementResult, error) {
	if b.DB == nil {
		return nil, ErrNotConnected
	}

	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	rollback := func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			b.logger().Warn("rollback failed", "error", rbErr)
		}
	}

	var res *core.StatementResult
	if sqlref.DetectOperation(sqlStr, "") == core.OperationSelect {
		res, err = countRows(ctx, tx, sqlStr)
	} else {
		res, err = execAffected(ctx, tx, sqlStr)
	}
	if err != nil {
		rollback()
		return nil, err
	}

	if dryRun {
		rollback()
		b.logger().Debug("dry run rolled back", "rows", res.Rows)
		return res, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return res, nil
}

func countRows(ctx context.Context, tx *sql.Tx, sqlStr string) (*core.StatementResult, error) {
	rows, err := tx.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	res := &core.StatementResult{ReturnsRows: true, Columns: cols}
	for rows.Next() {
		res.Rows++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return res, nil
}

func execAffected(ctx context.Context, tx *sql.Tx, sqlStr string) (*core.StatementResult, error) {
	r, err := tx.ExecContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute SQL: %w", err)
	}
	res := &core.StatementResult{}
	if n, err := r.RowsAffected(); err == nil {
		res.Rows = n
	}
	return res, nil
}

// QueryMaps runs a query through any adapter and returns each row as a map of
// column name to value. Byte slices are converted to strings.
func QueryMaps(ctx context.Context, a core.Adapter, sqlStr string, args ...any) ([]map[string]any, error) {
	rows, err := a.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			if bs, ok := vals[i].([]byte); ok {
				m[c] = string(bs)
			} else {
				m[c] = vals[i]
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
