// Package main provides the CLI for the leaprules business rule engine.
package main

import (
	"os"

	"github.com/leapstack-labs/leaprules/internal/cli"

	// Target database adapters register themselves via init()
	_ "github.com/leapstack-labs/leaprules/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leaprules/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leaprules/pkg/adapters/sqlite"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
