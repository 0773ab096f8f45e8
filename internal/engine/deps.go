package engine

import (
	"context"
	"maps"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leaprules/pkg/core"
	"github.com/leapstack-labs/leaprules/pkg/sqlref"
)

// RefreshResult summarises a dependency refresh.
type RefreshResult struct {
	// Updated is the number of rules whose dependencies were rewritten.
	Updated int
	// Reclassified is the number of rules whose operation type changed.
	Reclassified int
	// Batch holds the raw extraction outcome; rules in Batch.Errors keep
	// their previous dependency rows.
	Batch sqlref.BatchResult
}

// Err joins per-rule parse errors, or returns nil.
func (r *RefreshResult) Err() error {
	return r.Batch.Err()
}

// RefreshDependencies re-extracts dependencies for every SQL rule. Extraction
// runs in parallel chunks; a rule that fails to parse never stops the others.
func (e *Engine) RefreshDependencies(ctx context.Context, actor string) (*RefreshResult, error) {
	rules, err := e.store.ListRules()
	if err != nil {
		return nil, err
	}

	chunks := chunkRules(rules, runtime.GOMAXPROCS(0))
	batches := make([]sqlref.BatchResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			batches[i] = sqlref.ExtractBatch(chunk)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &RefreshResult{Batch: mergeBatches(batches)}
	for id, err := range res.Batch.Errors {
		e.logger.Warn("failed to extract dependencies", "rule_id", id, "error", err)
	}

	byID := make(map[int64]*core.Rule, len(rules))
	for _, r := range rules {
		byID[r.ID] = r
	}
	for _, id := range slices.Sorted(maps.Keys(res.Batch.Dependencies)) {
		if err := e.store.SetRuleDependencies(id, res.Batch.Dependencies[id]); err != nil {
			return res, err
		}
		res.Updated++

		rule := byID[id]
		if op := res.Batch.Operations[id]; rule.Operation != op {
			rule.Operation = op
			if err := e.store.UpdateRule(rule); err != nil {
				return res, err
			}
			res.Reclassified++
		}
	}

	e.logger.Info("dependencies refreshed", "updated", res.Updated, "reclassified", res.Reclassified, "errors", len(res.Batch.Errors))
	e.audit(ActionRefresh, "rule_dependencies", "", actor, nil, map[string]int{
		"updated":      res.Updated,
		"reclassified": res.Reclassified,
		"errors":       len(res.Batch.Errors),
	})
	return res, nil
}

// chunkRules deals the SQL bodies of rules round-robin into at most n maps.
func chunkRules(rules []*core.Rule, n int) []map[int64]string {
	n = max(1, min(n, len(rules)))
	chunks := make([]map[int64]string, n)
	for i := range chunks {
		chunks[i] = make(map[int64]string)
	}
	for i, r := range rules {
		chunks[i%n][r.ID] = r.SQL
	}
	return chunks
}

func mergeBatches(batches []sqlref.BatchResult) sqlref.BatchResult {
	out := sqlref.BatchResult{
		Dependencies: make(map[int64][]core.RuleDependency),
		Operations:   make(map[int64]core.OperationType),
		Errors:       make(map[int64]error),
	}
	for _, b := range batches {
		maps.Copy(out.Dependencies, b.Dependencies)
		maps.Copy(out.Operations, b.Operations)
		maps.Copy(out.Errors, b.Errors)
	}
	return out
}
