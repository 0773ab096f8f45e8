package adapter

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// CSVLoader is implemented by adapters with a native CSV import.
type CSVLoader interface {
	LoadCSV(ctx context.Context, tableName, filePath string) error
}

// LoadCSV replaces tableName with the contents of a CSV file with a header row.
// Adapters implementing CSVLoader (duckdb, postgres) handle the file
// themselves. For the rest column types are inferred (INTEGER, REAL or TEXT)
// and rows are inserted with parameterized statements. Empty cells are stored
// as NULL.
func LoadCSV(ctx context.Context, a Adapter, tableName, filePath string) (int64, error) {
	if l, ok := a.(CSVLoader); ok {
		if err := l.LoadCSV(ctx, tableName, filePath); err != nil {
			return 0, err
		}
		return countTable(ctx, a, tableName)
	}

	header, records, err := readCSV(filePath)
	if err != nil {
		return 0, err
	}

	types := inferColumnTypes(len(header), records)
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = QuoteIdent(h) + " " + types[i]
	}

	if _, err := a.Exec(ctx, "DROP TABLE IF EXISTS "+QuoteIdent(tableName)); err != nil {
		return 0, err
	}
	if _, err := a.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", QuoteIdent(tableName), strings.Join(cols, ", "))); err != nil {
		return 0, err
	}

	insert := insertStatement(a.DialectName(), tableName, header)
	for _, rec := range records {
		args := make([]any, len(header))
		for i := range header {
			args[i] = convertCell(rec[i], types[i])
		}
		if _, err := a.Exec(ctx, insert, args...); err != nil {
			return 0, err
		}
	}
	return int64(len(records)), nil
}

// InferCSVSchema reads a CSV file and returns its header and the inferred
// type (INTEGER, REAL or TEXT) of each column.
func InferCSVSchema(filePath string) (header, types []string, err error) {
	header, records, err := readCSV(filePath)
	if err != nil {
		return nil, nil, err
	}
	return header, inferColumnTypes(len(header), records), nil
}

func readCSV(filePath string) ([]string, [][]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%s: missing header row", filePath)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filePath, err)
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return header, records, nil
}

// inferColumnTypes picks the narrowest type every non-empty cell fits.
func inferColumnTypes(n int, records [][]string) []string {
	types := make([]string, n)
	for i := range n {
		isInt, isReal := true, true
		for _, rec := range records {
			v := rec[i]
			if v == "" {
				continue
			}
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isReal = false
			}
		}
		switch {
		case isInt:
			types[i] = "INTEGER"
		case isReal:
			types[i] = "REAL"
		default:
			types[i] = "TEXT"
		}
	}
	return types
}

func convertCell(v, typ string) any {
	if v == "" {
		return nil
	}
	switch typ {
	case "INTEGER":
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case "REAL":
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return v
}

func insertStatement(dialect, tableName string, header []string) string {
	cols := make([]string, len(header))
	params := make([]string, len(header))
	for i, h := range header {
		cols[i] = QuoteIdent(h)
		if dialect == "postgres" {
			params[i] = "$" + strconv.Itoa(i+1)
		} else {
			params[i] = "?"
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", QuoteIdent(tableName), strings.Join(cols, ", "), strings.Join(params, ", "))
}

// QuoteIdent double-quotes an identifier. A dotted name is quoted per part.
func QuoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(strings.TrimSpace(p), `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

func countTable(ctx context.Context, a Adapter, tableName string) (int64, error) {
	rows, err := a.Query(ctx, "SELECT COUNT(*) FROM "+QuoteIdent(tableName))
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to scan count: %w", err)
		}
	}
	return n, rows.Err()
}
