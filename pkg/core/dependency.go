package core

import "strings"

// DependencyOp says whether a rule reads or writes a table.
type DependencyOp string

// Dependency operations.
const (
	DependencyRead  DependencyOp = "READ"
	DependencyWrite DependencyOp = "WRITE"
)

// CTEPrefix marks a table name that refers to a common table expression
// rather than a real table.
const CTEPrefix = "(CTE) "

// ColumnPlaceholder is stored when a column could not be resolved to a table.
const ColumnPlaceholder = "*"

// RuleDependency records that a rule's SQL reads or writes a table column.
type RuleDependency struct {
	RuleID   int64
	Database string // schema or database qualifier, may be empty
	Table    string
	Column   string
	Op       DependencyOp
}

// QualifiedTable returns database.table, or just table when no qualifier is set.
func (d RuleDependency) QualifiedTable() string {
	if d.Database == "" {
		return d.Table
	}
	return d.Database + "." + d.Table
}

// IsCTEName reports whether a table name carries the CTE marker.
func IsCTEName(name string) bool {
	return strings.HasPrefix(name, CTEPrefix)
}
