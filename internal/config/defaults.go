// Package config holds project-level defaults and target handling shared by
// the CLI and anything else that needs to find a leaprules project.
package config

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leaprules/pkg/adapter"
	"github.com/leapstack-labs/leaprules/pkg/core"
)

// Default configuration values.
const (
	DefaultStateFile    = ".leaprules/state.db"
	DefaultDecisionsDir = "decisions"
	DefaultSeedsDir     = "seeds"
	DefaultEnv          = "dev"
	DefaultTargetType   = "sqlite"
)

// DefaultSchemaForType returns the default schema for a database type.
func DefaultSchemaForType(dbType string) string {
	switch strings.ToLower(dbType) {
	case "postgres":
		return "public"
	default:
		return "main"
	}
}

// ApplyTargetDefaults applies default values to a TargetConfig based on the target type.
func ApplyTargetDefaults(t *core.TargetConfig) {
	if t == nil {
		return
	}
	if t.Type == "" {
		t.Type = DefaultTargetType
	}
	t.Type = strings.ToLower(t.Type)

	if t.Schema == "" {
		t.Schema = DefaultSchemaForType(t.Type)
	}
	if t.Type == "postgres" && t.Port == 0 {
		t.Port = 5432
	}
}

// ValidateTarget checks that the target names a registered adapter and has
// the connection details that adapter needs.
func ValidateTarget(t *core.TargetConfig) error {
	if t == nil {
		return fmt.Errorf("target is required")
	}
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}
	if t.Type == "postgres" && t.Database == "" {
		return fmt.Errorf("postgres target requires a database name")
	}
	if t.Port < 0 || t.Port > 65535 {
		return fmt.Errorf("target port %d out of range", t.Port)
	}
	return nil
}
