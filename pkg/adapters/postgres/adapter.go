// Package postgres provides a PostgreSQL database adapter for leaprules.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/leapstack-labs/leaprules/pkg/adapter"
)

// Adapter implements the adapter.Adapter interface for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "postgres"
}

// Connect establishes a connection to PostgreSQL.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn := buildPostgresDSN(cfg)

	a.Logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildPostgresDSN constructs a PostgreSQL key=value connection string.
// Options other than sslmode are passed through as runtime parameters.
func buildPostgresDSN(cfg adapter.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	sslmode := "disable"
	if mode, ok := cfg.Options["sslmode"]; ok {
		sslmode = mode
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		host, port, cfg.Database, sslmode)

	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.Username)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", quoteDSNValue(cfg.Password))
	}
	if cfg.Schema != "" {
		dsn += fmt.Sprintf(" search_path=%s", cfg.Schema)
	}

	keys := make([]string, 0, len(cfg.Options))
	for k := range cfg.Options {
		if k != "sslmode" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		dsn += fmt.Sprintf(" %s=%s", k, quoteDSNValue(cfg.Options[k]))
	}

	return dsn
}

// quoteDSNValue single-quotes values containing spaces or quotes.
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// LoadCSV replaces tableName with the contents of a CSV file using COPY FROM
// STDIN. Column types are inferred from the file.
func (a *Adapter) LoadCSV(ctx context.Context, tableName string, filePath string) error {
	if a.DB == nil {
		return adapter.ErrNotConnected
	}

	header, types, err := adapter.InferCSVSchema(filePath)
	if err != nil {
		return err
	}
	if err := a.createTable(ctx, tableName, columnDefs(header, types)); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	file, err := os.Open(filePath) //nolint:gosec // seed files come from the project's seeds directory
	if err != nil {
		return fmt.Errorf("failed to open CSV: %w", err)
	}
	defer func() { _ = file.Close() }()

	n, err := a.copyFromCSV(ctx, tableName, file)
	if err != nil {
		return fmt.Errorf("failed to copy data: %w", err)
	}
	a.Logger.Debug("loaded CSV", slog.String("table", tableName), slog.Int64("rows", n))
	return nil
}

// columnDefs maps inferred CSV types to PostgreSQL column definitions.
func columnDefs(header, types []string) []string {
	defs := make([]string, len(header))
	for i, h := range header {
		typ := "TEXT"
		switch types[i] {
		case "INTEGER":
			typ = "BIGINT"
		case "REAL":
			typ = "DOUBLE PRECISION"
		}
		defs[i] = adapter.QuoteIdent(h) + " " + typ
	}
	return defs
}

func (a *Adapter) createTable(ctx context.Context, tableName string, defs []string) error {
	if _, err := a.DB.ExecContext(ctx, "DROP TABLE IF EXISTS "+adapter.QuoteIdent(tableName)); err != nil {
		return err
	}
	_, err := a.DB.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", adapter.QuoteIdent(tableName), strings.Join(defs, ", ")))
	return err
}

// copyFromCSV streams the file through the pgx connection underneath database/sql.
func (a *Adapter) copyFromCSV(ctx context.Context, tableName string, file *os.File) (int64, error) {
	conn, err := a.DB.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var rows int64
	err = conn.Raw(func(driverConn any) error {
		pgxConn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("COPY requires the pgx driver, got %T", driverConn)
		}
		copySQL := fmt.Sprintf("COPY %s FROM STDIN WITH (FORMAT csv, HEADER true)", adapter.QuoteIdent(tableName))
		tag, err := pgxConn.Conn().PgConn().CopyFrom(ctx, file, copySQL)
		if err != nil {
			return err
		}
		rows = tag.RowsAffected()
		return nil
	})
	return rows, err
}

// Ensure Adapter implements adapter.Adapter interface
var (
	_ adapter.Adapter   = (*Adapter)(nil)
	_ adapter.CSVLoader = (*Adapter)(nil)
)
