package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leaprules/pkg/adapter"
	"github.com/leapstack-labs/leaprules/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/leaprules/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leaprules/pkg/adapters/sqlite"
)

func TestApplyTargetDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   *core.TargetConfig
		want *core.TargetConfig
	}{
		{"empty", &core.TargetConfig{}, &core.TargetConfig{Type: "sqlite", Schema: "main"}},
		{"postgres", &core.TargetConfig{Type: "Postgres"}, &core.TargetConfig{Type: "postgres", Schema: "public", Port: 5432}},
		{"keeps explicit", &core.TargetConfig{Type: "postgres", Schema: "rules", Port: 6432}, &core.TargetConfig{Type: "postgres", Schema: "rules", Port: 6432}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ApplyTargetDefaults(tt.in)
			assert.Equal(t, tt.want, tt.in)
		})
	}
	ApplyTargetDefaults(nil)
}

func TestValidateTarget(t *testing.T) {
	require.NoError(t, ValidateTarget(&core.TargetConfig{Type: "sqlite"}))
	require.NoError(t, ValidateTarget(&core.TargetConfig{Type: "postgres", Database: "rules"}))

	assert.Error(t, ValidateTarget(nil))
	assert.Error(t, ValidateTarget(&core.TargetConfig{}))
	assert.ErrorContains(t, ValidateTarget(&core.TargetConfig{Type: "postgres"}), "requires a database name")
	assert.ErrorContains(t, ValidateTarget(&core.TargetConfig{Type: "sqlite", Port: 70000}), "out of range")

	var unknown *adapter.UnknownAdapterError
	require.ErrorAs(t, ValidateTarget(&core.TargetConfig{Type: "mssql"}), &unknown)
	assert.Contains(t, unknown.Available, "sqlite")
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	assert.Empty(t, FindProjectRoot(nested))

	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileNameAlt), []byte("environment: dev\n"), 0o600))
	assert.Equal(t, root, FindProjectRoot(nested))
	assert.Equal(t, filepath.Join(root, ConfigFileNameAlt), FindConfigFile(root))

	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte("environment: dev\n"), 0o600))
	assert.Equal(t, filepath.Join(root, ConfigFileName), FindConfigFile(root))
}
