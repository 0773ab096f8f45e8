package executor

import (
	"testing"

	"github.com/leapstack-labs/leaprules/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(id int64, status core.RuleRunStatus) *core.ExecutionResult {
	return &core.ExecutionResult{RuleID: id, Status: status, Passed: status == core.RuleRunPassed}
}

func TestDetectConflicts(t *testing.T) {
	results := []*core.ExecutionResult{
		result(1, core.RuleRunPassed),
		result(2, core.RuleRunFailed),
		result(3, core.RuleRunPassed),
		result(4, core.RuleRunSkipped),
	}
	conflicts := []core.Conflict{
		{RuleA: 1, RuleB: 2, Priority: 1},
		{RuleA: 1, RuleB: 3, Priority: 5},
		{RuleA: 3, RuleB: 4, Priority: 9}, // 4 was skipped
		{RuleA: 2, RuleB: 8, Priority: 9}, // 8 never ran
	}

	reports := DetectConflicts(results, conflicts)
	require.Len(t, reports, 2)

	assert.Equal(t, 5, reports[0].Conflict.Priority)
	assert.Equal(t, int64(1), reports[0].A.RuleID)
	assert.Equal(t, int64(3), reports[0].B.RuleID)
	assert.False(t, reports[0].Contradictory())

	assert.Equal(t, 1, reports[1].Conflict.Priority)
	assert.True(t, reports[1].Contradictory())

	// outcomes are untouched
	assert.Equal(t, core.RuleRunFailed, results[1].Status)
}

func TestConflictReport_Winner(t *testing.T) {
	a := result(5, core.RuleRunPassed)
	b := result(3, core.RuleRunFailed)

	tests := []struct {
		name     string
		priority int
		expected int64
	}{
		{"positive favours A", 2, 5},
		{"negative favours B", -1, 3},
		{"tie picks lower id", 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ConflictReport{
				Conflict: core.Conflict{RuleA: 5, RuleB: 3, Priority: tt.priority},
				A:        a,
				B:        b,
			}
			assert.Equal(t, tt.expected, r.Winner().RuleID)
		})
	}
}

func TestDetectConflicts_Empty(t *testing.T) {
	assert.Empty(t, DetectConflicts(nil, []core.Conflict{{RuleA: 1, RuleB: 2}}))
	assert.Empty(t, DetectConflicts([]*core.ExecutionResult{result(1, core.RuleRunPassed)}, nil))
}
