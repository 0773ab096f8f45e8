package core

import (
	"context"
	"database/sql"
)

// Adapter is the queryable store rule SQL is executed against.
type Adapter interface {
	// Connect establishes a connection to the database.
	Connect(ctx context.Context, cfg AdapterConfig) error

	// Close closes the database connection.
	Close() error

	// Exec executes a parameterized statement and returns the rows affected.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Query executes a parameterized statement that returns rows.
	Query(ctx context.Context, sql string, args ...any) (*Rows, error)

	// ExecuteRule runs a rule statement inside a transaction. In dry-run mode the
	// transaction is always rolled back.
	ExecuteRule(ctx context.Context, sql string, dryRun bool) (*StatementResult, error)

	// DialectName returns the driver family, e.g. "sqlite" or "postgres".
	DialectName() string
}

// AdapterConfig holds configuration for connecting to a database.
type AdapterConfig struct {
	Type     string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Options  map[string]string
}

// StatementResult summarises one executed rule statement.
type StatementResult struct {
	// ReturnsRows is true when the statement produced a result set.
	ReturnsRows bool
	// Rows is the number of rows returned, or affected for DML.
	Rows int64
	// Columns lists the result set columns when ReturnsRows is set.
	Columns []string
}

// Rows wraps sql.Rows to provide a consistent interface.
type Rows struct {
	*sql.Rows
}
