package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadCSV_Generic(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`DROP TABLE IF EXISTS "orders"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE "orders" ("id" INTEGER, "amount" REAL, "tier" TEXT)`).WillReturnResult(sqlmock.NewResult(0, 0))
	insert := `INSERT INTO "orders" ("id", "amount", "tier") VALUES (?, ?, ?)`
	mock.ExpectExec(insert).WithArgs(int64(1), 100.5, "gold").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insert).WithArgs(int64(2), nil, "silver").WillReturnResult(sqlmock.NewResult(2, 1))

	a := &mockAdapter{BaseSQLAdapter{DB: db}}
	n, err := LoadCSV(context.Background(), a, "orders", writeCSV(t, "id,amount,tier\n1,100.5,gold\n2,,silver\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCSV_Errors(t *testing.T) {
	a := &mockAdapter{}

	_, err := LoadCSV(context.Background(), a, "t", filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open CSV")

	_, err = LoadCSV(context.Background(), a, "t", writeCSV(t, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing header row")
}

func TestInsertStatement(t *testing.T) {
	assert.Equal(t, `INSERT INTO "s"."t" ("a", "b") VALUES ($1, $2)`, insertStatement("postgres", "s.t", []string{"a", "b"}))
	assert.Equal(t, `INSERT INTO "t" ("a") VALUES (?)`, insertStatement("sqlite", "t", []string{"a"}))
}

func TestInferColumnTypes(t *testing.T) {
	records := [][]string{
		{"1", "1.5", "x", ""},
		{"2", "3", "4", ""},
	}
	assert.Equal(t, []string{"INTEGER", "REAL", "TEXT", "INTEGER"}, inferColumnTypes(4, records))
}

func TestInferCSVSchema(t *testing.T) {
	header, types, err := InferCSVSchema(writeCSV(t, "id,amount,tier\n1,100.5,gold\n2,,silver\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "amount", "tier"}, header)
	assert.Equal(t, []string{"INTEGER", "REAL", "TEXT"}, types)

	_, _, err = InferCSVSchema(writeCSV(t, ""))
	assert.Error(t, err)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"orders"`, QuoteIdent("orders"))
	assert.Equal(t, `"sales"."orders"`, QuoteIdent("sales.orders"))
	assert.Equal(t, `"odd""name"`, QuoteIdent(`odd"name`))
}
