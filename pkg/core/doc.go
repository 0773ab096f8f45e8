// Package core defines the shared language of the leaprules system.
//
// This package contains:
//   - Domain entities (Rule, RuleDependency, ExecutionResult, Conflict, Schedule)
//   - Closed enumerations for rule status, critical scope and SQL operation type
//   - Service interfaces (Adapter, Store, AuditSink, ScheduleSource)
//   - Configuration types (TargetConfig, AdapterConfig)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
