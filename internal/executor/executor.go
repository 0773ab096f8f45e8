// Package executor walks the rule forest breadth-first, runs each rule through a
// caller-supplied function and propagates skips below failed critical rules.
//
// Rules run strictly one at a time in a deterministic order: roots in ascending
// id order, then for every rule its direct children followed by its
// global-critical-link targets, each group in ascending id order. A critical
// rule that fails, or whose run function errors, marks every rule reachable
// from it through parent edges or critical links as SKIPPED. Skip wins over
// any other path to the same rule.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leaprules/internal/dag"
	"github.com/leapstack-labs/leaprules/pkg/core"
)

// RunFunc executes a single rule. A returned error is converted into a FAILED
// result and never aborts the traversal.
type RunFunc func(ctx context.Context, r *core.Rule) (*core.ExecutionResult, error)

// Option configures a Traversal.
type Option func(*Traversal)

// WithLogger sets the logger used for data-quality warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Traversal) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithClock overrides the time source used for elapsed times.
func WithClock(now func() time.Time) Option {
	return func(t *Traversal) {
		if now != nil {
			t.now = now
		}
	}
}

// Traversal is a single breadth-first pass over a rule set. It is not safe for
// concurrent use.
type Traversal struct {
	graph  *dag.Graph
	rules  map[int64]*core.Rule
	logger *slog.Logger
	now    func() time.Time

	queue    []int64
	queued   map[int64]bool
	states   map[int64]core.RuleRunStatus
	skips    []*core.ExecutionResult
	finished bool
}

// New builds the rule graph once and seeds the queue with the roots. Rules whose
// parent is absent from the set are treated as roots.
func New(rules []*core.Rule, links []core.GlobalCriticalLink, opts ...Option) *Traversal {
	t := &Traversal{
		graph:  dag.NewGraph(),
		rules:  make(map[int64]*core.Rule, len(rules)),
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
		queued: make(map[int64]bool, len(rules)),
		states: make(map[int64]core.RuleRunStatus, len(rules)),
	}
	for _, opt := range opts {
		opt(t)
	}

	for _, r := range rules {
		if r == nil {
			continue
		}
		t.rules[r.ID] = r
		t.graph.AddNode(r.ID, r)
		t.states[r.ID] = core.RuleRunPending
	}

	for _, r := range rules {
		if r == nil {
			continue
		}
		parent, ok := r.Parent()
		if !ok || !t.graph.HasNode(parent) {
			continue
		}
		if err := t.graph.AddEdge(parent, r.ID, dag.EdgeParent); err != nil {
			t.logger.Warn("ignoring parent link", "rule_id", r.ID, "parent_id", parent, "error", err)
		}
	}
	for _, l := range links {
		if !t.graph.HasNode(l.SourceID) || !t.graph.HasNode(l.TargetID) {
			t.logger.Debug("ignoring critical link outside rule set",
				"source_id", l.SourceID, "target_id", l.TargetID)
			continue
		}
		if err := t.graph.AddEdge(l.SourceID, l.TargetID, dag.EdgeCriticalLink); err != nil {
			t.logger.Warn("ignoring critical link", "source_id", l.SourceID, "target_id", l.TargetID, "error", err)
		}
	}

	if has, path := t.graph.HasCycle(dag.EdgeAll); has {
		t.logger.Warn("rule graph contains a cycle", "error", ErrCycleDetected, "path", path)
	}

	for _, id := range t.graph.Roots(dag.EdgeParent) {
		t.enqueue(id)
	}
	return t
}

// Step runs the next rule in the queue, or reports the next pending skip. It
// returns false once the traversal is complete. The context is checked before
// every dequeue; a cancelled context stops the traversal with ctx.Err().
func (t *Traversal) Step(ctx context.Context, run RunFunc) (*core.ExecutionResult, bool, error) {
	if len(t.skips) > 0 {
		res := t.skips[0]
		t.skips = t.skips[1:]
		return res, true, nil
	}

	for len(t.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		id := t.queue[0]
		t.queue = t.queue[1:]
		if t.states[id] != core.RuleRunPending {
			// skipped after being queued; the skip was already reported
			continue
		}

		rule := t.rules[id]
		t.states[id] = core.RuleRunRunning
		res := t.execute(ctx, run, rule)
		t.states[id] = res.Status

		if rule.Critical && res.Status == core.RuleRunFailed {
			t.propagateSkip(rule)
		}
		t.enqueueChildren(id)

		return res, true, nil
	}

	if !t.finished {
		t.finished = true
		if stuck := t.pending(); len(stuck) > 0 {
			t.logger.Warn("rules unreachable from any root", "error", ErrCycleDetected, "rule_ids", stuck)
		}
	}
	return nil, false, nil
}

// State returns the current state of a rule.
func (t *Traversal) State(id int64) core.RuleRunStatus {
	return t.states[id]
}

// States returns a copy of every rule's current state.
func (t *Traversal) States() map[int64]core.RuleRunStatus {
	out := make(map[int64]core.RuleRunStatus, len(t.states))
	for id, st := range t.states {
		out[id] = st
	}
	return out
}

func (t *Traversal) enqueue(id int64) {
	if t.queued[id] {
		t.logger.Warn("rule reached through more than one path", "rule_id", id, "error", ErrCycleDetected)
		return
	}
	t.queued[id] = true
	t.queue = append(t.queue, id)
}

func (t *Traversal) enqueueChildren(id int64) {
	for _, kind := range []dag.EdgeKind{dag.EdgeParent, dag.EdgeCriticalLink} {
		for _, child := range t.graph.Children(id, kind) {
			if t.states[child] != core.RuleRunPending {
				continue
			}
			t.enqueue(child)
		}
	}
}

// propagateSkip marks every pending rule reachable from failed as SKIPPED and
// queues a report for each, in breadth-first order.
func (t *Traversal) propagateSkip(failed *core.Rule) {
	revisits := t.graph.Walk(failed.ID, dag.EdgeAll, func(id int64, _ int) bool {
		if t.states[id] != core.RuleRunPending {
			return true
		}
		t.states[id] = core.RuleRunSkipped
		t.queued[id] = true
		r := t.rules[id]
		t.skips = append(t.skips, &core.ExecutionResult{
			RuleID:    id,
			RuleName:  r.Name,
			Status:    core.RuleRunSkipped,
			Message:   fmt.Sprintf("skipped: critical rule %d (%s) failed", failed.ID, failed.Name),
			SkippedBy: failed.ID,
		})
		return true
	})
	if revisits > 0 {
		t.logger.Warn("skip propagation reached rules through more than one path",
			"rule_id", failed.ID, "revisits", revisits, "error", ErrCycleDetected)
	}
}

// execute calls run and normalises its outcome. Errors and panics become FAILED
// results carrying an ExecutionError message.
func (t *Traversal) execute(ctx context.Context, run RunFunc, rule *core.Rule) (res *core.ExecutionResult) {
	start := t.now()

	defer func() {
		if p := recover(); p != nil {
			res = t.failure(rule, &ExecutionError{RuleID: rule.ID, Err: fmt.Errorf("panic: %v", p)}, start)
		}
	}()

	out, err := run(ctx, rule)
	if err != nil {
		return t.failure(rule, &ExecutionError{RuleID: rule.ID, Err: err}, start)
	}
	if out == nil {
		return t.failure(rule, &ExecutionError{RuleID: rule.ID, Err: errNoResult}, start)
	}

	res = out
	res.RuleID = rule.ID
	if res.RuleName == "" {
		res.RuleName = rule.Name
	}
	res.Status = core.RuleRunFailed
	if res.Passed {
		res.Status = core.RuleRunPassed
	}
	if res.Elapsed == 0 {
		res.Elapsed = t.now().Sub(start)
	}
	return res
}

func (t *Traversal) failure(rule *core.Rule, err *ExecutionError, start time.Time) *core.ExecutionResult {
	t.logger.Warn("rule execution error", "rule_id", rule.ID, "error", err.Err)
	return &core.ExecutionResult{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Status:   core.RuleRunFailed,
		Message:  err.Error(),
		Elapsed:  t.now().Sub(start),
	}
}

func (t *Traversal) pending() []int64 {
	var ids []int64
	for _, id := range t.graph.IDs() {
		if t.states[id] == core.RuleRunPending {
			ids = append(ids, id)
		}
	}
	return ids
}

// Report is the outcome of a complete traversal.
type Report struct {
	// Results holds executed rules in run order.
	Results []*core.ExecutionResult
	// Skipped holds SKIPPED results naming the failed critical ancestor.
	Skipped []*core.ExecutionResult
	// States is the final state of every rule. Rules never reached stay PENDING.
	States map[int64]core.RuleRunStatus
	// Cancelled is set when the context ended the traversal early.
	Cancelled bool
}

// Counts returns the number of passed, failed and skipped rules.
func (r *Report) Counts() (passed, failed, skipped int) {
	for _, res := range r.Results {
		if res.Status == core.RuleRunPassed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed, len(r.Skipped)
}

// Result returns the executed or skipped result for a rule.
func (r *Report) Result(id int64) (*core.ExecutionResult, bool) {
	for _, res := range r.Results {
		if res.RuleID == id {
			return res, true
		}
	}
	for _, res := range r.Skipped {
		if res.RuleID == id {
			return res, true
		}
	}
	return nil, false
}

// RunAll drives a Traversal to completion. On cancellation it returns the
// partial report together with the context error.
func RunAll(ctx context.Context, rules []*core.Rule, links []core.GlobalCriticalLink, run RunFunc, opts ...Option) (*Report, error) {
	t := New(rules, links, opts...)
	report := &Report{}

	for {
		res, ok, err := t.Step(ctx, run)
		if err != nil {
			report.Cancelled = true
			report.States = t.States()
			return report, err
		}
		if !ok {
			break
		}
		if res.Status == core.RuleRunSkipped {
			report.Skipped = append(report.Skipped, res)
		} else {
			report.Results = append(report.Results, res)
		}
	}

	report.States = t.States()
	return report, nil
}
