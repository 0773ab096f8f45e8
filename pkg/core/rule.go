package core

import (
	"fmt"
	"strings"
	"time"
)

// RuleStatus is the lifecycle state of a rule definition.
type RuleStatus string

// Rule status constants.
const (
	RuleStatusDraft           RuleStatus = "DRAFT"
	RuleStatusPendingApproval RuleStatus = "PENDING_APPROVAL"
	RuleStatusApproved        RuleStatus = "APPROVED"
	RuleStatusActive          RuleStatus = "ACTIVE"
	RuleStatusInactive        RuleStatus = "INACTIVE"
	RuleStatusRejected        RuleStatus = "REJECTED"
)

// ParseRuleStatus converts a string to a RuleStatus. Matching is case-insensitive.
func ParseRuleStatus(s string) (RuleStatus, error) {
	switch st := RuleStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case RuleStatusDraft, RuleStatusPendingApproval, RuleStatusApproved,
		RuleStatusActive, RuleStatusInactive, RuleStatusRejected:
		return st, nil
	case "":
		return RuleStatusDraft, nil
	}
	return "", fmt.Errorf("unknown rule status %q", s)
}

// Runnable reports whether rules in this state take part in an execution run.
func (s RuleStatus) Runnable() bool {
	return s != RuleStatusInactive && s != RuleStatusRejected
}

// CriticalScope describes how far the failure of a critical rule reaches.
type CriticalScope string

// Critical scope constants.
const (
	CriticalScopeNone    CriticalScope = "NONE"
	CriticalScopeGroup   CriticalScope = "GROUP"
	CriticalScopeCluster CriticalScope = "CLUSTER"
	CriticalScopeGlobal  CriticalScope = "GLOBAL"
)

// ParseCriticalScope converts a string to a CriticalScope. Empty input maps to NONE.
func ParseCriticalScope(s string) (CriticalScope, error) {
	switch sc := CriticalScope(strings.ToUpper(strings.TrimSpace(s))); sc {
	case CriticalScopeNone, CriticalScopeGroup, CriticalScopeCluster, CriticalScopeGlobal:
		return sc, nil
	case "":
		return CriticalScopeNone, nil
	}
	return "", fmt.Errorf("unknown critical scope %q", s)
}

// OperationType is the kind of statement a rule executes.
type OperationType int

// Operation types. The zero value is OperationOther.
const (
	OperationOther OperationType = iota
	OperationSelect
	OperationInsert
	OperationUpdate
	OperationDelete
	OperationDecisionTable
)

// String returns the canonical upper-case name of the operation.
func (o OperationType) String() string {
	switch o {
	case OperationSelect:
		return "SELECT"
	case OperationInsert:
		return "INSERT"
	case OperationUpdate:
		return "UPDATE"
	case OperationDelete:
		return "DELETE"
	case OperationDecisionTable:
		return "DECISION_TABLE"
	default:
		return "OTHER"
	}
}

// ParseOperationType converts a stored name back to an OperationType.
// Unknown names map to OperationOther.
func ParseOperationType(s string) OperationType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SELECT":
		return OperationSelect
	case "INSERT":
		return OperationInsert
	case "UPDATE":
		return OperationUpdate
	case "DELETE":
		return OperationDelete
	case "DECISION_TABLE":
		return OperationDecisionTable
	default:
		return OperationOther
	}
}

// IsWrite reports whether the operation modifies data.
func (o OperationType) IsWrite() bool {
	return o == OperationInsert || o == OperationUpdate || o == OperationDelete
}

// Rule is a single business rule.
type Rule struct {
	ID              int64
	Name            string
	Description     string
	SQL             string // empty for decision-table rules
	ParentID        *int64 // nil for root rules
	DecisionTableID string
	Status          RuleStatus
	Critical        bool
	CriticalScope   CriticalScope
	Global          bool
	Operation       OperationType
	Owner           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsRoot reports whether the rule has no parent.
func (r *Rule) IsRoot() bool {
	return r.ParentID == nil
}

// Parent returns the parent id and whether one is set.
func (r *Rule) Parent() (int64, bool) {
	if r.ParentID == nil {
		return 0, false
	}
	return *r.ParentID, true
}

// Clone returns a copy that shares no pointers with r.
func (r *Rule) Clone() *Rule {
	c := *r
	if r.ParentID != nil {
		p := *r.ParentID
		c.ParentID = &p
	}
	return &c
}

// ParentRef is a convenience for building rules with a parent.
func ParentRef(id int64) *int64 {
	return &id
}
