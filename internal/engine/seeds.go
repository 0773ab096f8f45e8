package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leaprules/pkg/adapter"
)

// SeedResult reports one loaded seed table.
type SeedResult struct {
	Table string `json:"table"`
	File  string `json:"file"`
	Rows  int64  `json:"rows"`
}

// LoadSeeds loads every CSV file in dir into the target database, one table
// per file named after it. A missing directory loads nothing.
func (e *Engine) LoadSeeds(ctx context.Context, dir string) ([]SeedResult, error) {
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read seeds directory: %w", err)
	}

	db, err := e.DB(ctx)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("loading seeds", "seeds_dir", dir)

	var out []SeedResult
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}

		table := strings.TrimSuffix(entry.Name(), ".csv")
		path := filepath.Join(dir, entry.Name())

		n, err := adapter.LoadCSV(ctx, db, table, path)
		if err != nil {
			return out, fmt.Errorf("failed to load seed %s: %w", entry.Name(), err)
		}
		e.logger.Debug("loaded seed file", "table", table, "path", path, "rows", n)
		out = append(out, SeedResult{Table: table, File: path, Rows: n})
	}
	return out, nil
}
