package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leaprules/internal/dag"
	"github.com/leapstack-labs/leaprules/internal/impact"
	"github.com/leapstack-labs/leaprules/internal/state"
	"github.com/leapstack-labs/leaprules/pkg/core"
	"github.com/leapstack-labs/leaprules/pkg/sqlref"
)

// Audit actions.
const (
	ActionCreate  = "CREATE"
	ActionUpdate  = "UPDATE"
	ActionDelete  = "DELETE"
	ActionStatus  = "STATUS"
	ActionLock    = "LOCK"
	ActionUnlock  = "UNLOCK"
	ActionRefresh = "REFRESH_DEPENDENCIES"
	ActionRun     = "RUN"
)

// ruleRecord is the audit log representation of a rule.
type ruleRecord struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	SQL             string `json:"sql,omitempty"`
	ParentID        *int64 `json:"parent_id,omitempty"`
	DecisionTableID string `json:"decision_table_id,omitempty"`
	Status          string `json:"status"`
	Critical        bool   `json:"critical"`
	CriticalScope   string `json:"critical_scope"`
	Global          bool   `json:"global"`
	Operation       string `json:"operation"`
	Owner           string `json:"owner,omitempty"`
}

func recordOf(r *core.Rule) *ruleRecord {
	if r == nil {
		return nil
	}
	return &ruleRecord{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		SQL:             r.SQL,
		ParentID:        r.ParentID,
		DecisionTableID: r.DecisionTableID,
		Status:          string(r.Status),
		Critical:        r.Critical,
		CriticalScope:   string(r.CriticalScope),
		Global:          r.Global,
		Operation:       r.Operation.String(),
		Owner:           r.Owner,
	}
}

// audit writes an audit entry. Audit failures are logged, never returned.
func (e *Engine) audit(action, entity, recordID, actor string, oldVal, newVal any) {
	entry := &core.AuditEntry{
		Action:   action,
		Entity:   entity,
		RecordID: recordID,
		Actor:    actor,
		Old:      encodeAudit(oldVal),
		New:      encodeAudit(newVal),
	}
	if err := e.store.RecordAudit(entry); err != nil {
		e.logger.Warn("failed to record audit entry", "action", action, "entity", entity, "record_id", recordID, "error", err)
	}
}

func encodeAudit(v any) string {
	if v == nil {
		return ""
	}
	if r, ok := v.(*ruleRecord); ok && r == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// GetRule returns a rule by ID.
func (e *Engine) GetRule(id int64) (*core.Rule, error) {
	return e.store.GetRule(id)
}

// ListRules returns every rule ordered by ID.
func (e *Engine) ListRules() ([]*core.Rule, error) {
	return e.store.ListRules()
}

// SaveRule validates a rule, classifies its operation, extracts its
// dependencies and stores it. A rule with ID 0 is created; any other ID
// updates the existing rule. SQL that cannot be parsed is rejected and nothing
// is written.
func (e *Engine) SaveRule(_ context.Context, rule *core.Rule, actor string) error {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if strings.TrimSpace(rule.SQL) == "" && rule.DecisionTableID == "" {
		return &ValidationError{Field: "sql", Message: "or decision_table_id is required"}
	}
	if rule.DecisionTableID != "" {
		if _, ok := e.decisions.Get(rule.DecisionTableID); !ok {
			return &ValidationError{Field: "decision_table_id", Message: fmt.Sprintf("%q is not loaded", rule.DecisionTableID)}
		}
	}

	var deps []core.RuleDependency
	if strings.TrimSpace(rule.SQL) != "" {
		parsed, err := sqlref.Extract(rule.SQL)
		if err != nil {
			return fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		deps = parsed.Dependencies(0)
	}
	rule.Operation = sqlref.DetectOperation(rule.SQL, rule.DecisionTableID)

	var existing *core.Rule
	if rule.ID != 0 {
		var err error
		existing, err = e.store.GetRule(rule.ID)
		if err != nil {
			return err
		}
		if err := e.checkWritable(existing, actor); err != nil {
			return err
		}
		rule.CreatedAt = existing.CreatedAt
	} else if rule.Status == "" {
		rule.Status = core.RuleStatusDraft
	}
	if rule.Global && !e.isAdmin(actor) {
		return ErrAdminRequired
	}
	if err := e.checkParent(rule); err != nil {
		return err
	}

	action := ActionCreate
	if existing != nil {
		action = ActionUpdate
	}
	if err := e.store.SaveRuleWithDependencies(rule, deps); err != nil {
		return err
	}

	e.logger.Info("rule saved", "rule_id", rule.ID, "name", rule.Name, "operation", rule.Operation.String(), "dependencies", len(deps))
	e.audit(action, "rule", strconv.FormatInt(rule.ID, 10), actor, recordOf(existing), recordOf(rule))
	return nil
}

// SetRuleStatus moves a rule through its lifecycle.
func (e *Engine) SetRuleStatus(id int64, status core.RuleStatus, actor string) (*core.Rule, error) {
	rule, err := e.store.GetRule(id)
	if err != nil {
		return nil, err
	}
	if err := e.checkWritable(rule, actor); err != nil {
		return nil, err
	}

	old := recordOf(rule)
	rule.Status = status
	if err := e.store.UpdateRule(rule); err != nil {
		return nil, err
	}

	e.logger.Info("rule status changed", "rule_id", id, "from", old.Status, "to", string(status))
	e.audit(ActionStatus, "rule", strconv.FormatInt(id, 10), actor, old, recordOf(rule))
	return rule, nil
}

// DeleteRule removes a rule and returns what was downstream of it. Children
// are not deleted; they become roots.
func (e *Engine) DeleteRule(id int64, actor string) (impact.Result, error) {
	rule, err := e.store.GetRule(id)
	if err != nil {
		return impact.Result{}, err
	}
	if err := e.checkWritable(rule, actor); err != nil {
		return impact.Result{}, err
	}

	affected, err := e.Impact(id)
	if err != nil {
		return impact.Result{}, err
	}
	if err := e.store.DeleteRule(id); err != nil {
		return impact.Result{}, err
	}

	e.logger.Info("rule deleted", "rule_id", id, "name", rule.Name, "orphaned_children", len(affected.ChildRules))
	e.audit(ActionDelete, "rule", strconv.FormatInt(id, 10), actor, recordOf(rule), nil)
	return affected, nil
}

// LockRule takes the edit lock on a rule for actor.
func (e *Engine) LockRule(id int64, actor string, force bool) error {
	if err := e.store.LockRule(id, actor, force); err != nil {
		return err
	}
	e.audit(ActionLock, "rule", strconv.FormatInt(id, 10), actor, nil, map[string]any{"force": force})
	return nil
}

// UnlockRule releases the edit lock on a rule.
func (e *Engine) UnlockRule(id int64, actor string, force bool) error {
	if err := e.store.UnlockRule(id, actor, force); err != nil {
		return err
	}
	e.audit(ActionUnlock, "rule", strconv.FormatInt(id, 10), actor, nil, map[string]any{"force": force})
	return nil
}

// checkWritable enforces the global-rule guard and edit locks.
func (e *Engine) checkWritable(rule *core.Rule, actor string) error {
	if rule.Global && !e.isAdmin(actor) {
		return ErrAdminRequired
	}
	lock, err := e.store.GetLock(rule.ID)
	if errors.Is(err, state.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if lock.LockedBy != actor {
		return &state.LockedError{RuleID: rule.ID, LockedBy: lock.LockedBy, LockedAt: lock.LockedAt}
	}
	return nil
}

// checkParent ensures the parent exists and that the rule is not its own
// ancestor after the change.
func (e *Engine) checkParent(rule *core.Rule) error {
	parent, ok := rule.Parent()
	if !ok {
		return nil
	}
	if rule.ID != 0 && parent == rule.ID {
		return fmt.Errorf("rule %d: %w", rule.ID, ErrParentCycle)
	}

	rules, err := e.store.ListRules()
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(rules, func(r *core.Rule) bool { return r.ID == parent }) {
		return &ValidationError{Field: "parent_id", Message: fmt.Sprintf("%d does not exist", parent)}
	}
	if rule.ID == 0 {
		return nil
	}

	g := dag.NewGraph()
	for _, r := range rules {
		g.AddNode(r.ID, r)
	}
	for _, r := range rules {
		if r.ID == rule.ID {
			continue
		}
		if p, ok := r.Parent(); ok && g.HasNode(p) {
			_ = g.AddEdge(p, r.ID, dag.EdgeParent)
		}
	}
	if slices.Contains(g.Descendants(rule.ID, dag.EdgeParent), parent) {
		return fmt.Errorf("rule %d under %d: %w", rule.ID, parent, ErrParentCycle)
	}
	return nil
}

// Lock returns the current edit lock on a rule, or nil when it is unlocked.
func (e *Engine) Lock(id int64) (*core.RuleLock, error) {
	lock, err := e.store.GetLock(id)
	if errors.Is(err, state.ErrNotFound) {
		return nil, nil
	}
	return lock, err
}
