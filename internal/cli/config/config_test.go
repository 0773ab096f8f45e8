package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Import adapter packages to ensure adapters are registered via init()
	_ "github.com/leapstack-labs/leaprules/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leaprules/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leaprules/pkg/adapters/sqlite"
)

// newFlags mirrors the persistent flags registered on the root command.
func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("target", "", "")
	fs.String("seeds-dir", "", "")
	fs.String("state", "", "")
	fs.String("decisions-dir", "", "")
	fs.String("env", "", "")
	fs.BoolP("verbose", "v", false, "")
	fs.StringP("output", "o", "", "")
	fs.String("log-level", "", "")
	fs.String("log-format", "", "")
	fs.String("actor", "", "")
	return fs
}

// inProject writes leaprules.yaml into a temp dir and makes it the CWD.
func inProject(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	if yaml != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "leaprules.yaml"), []byte(yaml), 0o600))
	}
	t.Chdir(dir)
	ResetConfig()
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := inProject(t, "")
	t.Setenv("USER", "tester")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, DefaultStateFile), cfg.StatePath)
	assert.Equal(t, filepath.Join(dir, DefaultDecisionsDir), cfg.DecisionsDir)
	assert.Equal(t, DefaultEnv, cfg.Environment)
	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.Equal(t, DefaultLockTimeout, cfg.LockTimeout)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "tester", cfg.Actor)
	assert.Equal(t, "sqlite", cfg.Target.Type)
	assert.Equal(t, "main", cfg.Target.Schema)
	assert.Empty(t, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_File(t *testing.T) {
	dir := inProject(t, `
state_path: state/rules.db
decisions_dir: tables
lock_timeout: 45m
admins: [alice, bob]
log_format: json
target:
  type: duckdb
  database: warehouse.duckdb
  options:
    threads: "4"
`)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "leaprules.yaml"), GetConfigFileUsed())
	assert.Equal(t, filepath.Join(dir, "state", "rules.db"), cfg.StatePath)
	assert.Equal(t, filepath.Join(dir, "tables"), cfg.DecisionsDir)
	assert.Equal(t, 45*time.Minute, cfg.LockTimeout)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Admins)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "duckdb", cfg.Target.Type)
	assert.Equal(t, filepath.Join(dir, "warehouse.duckdb"), cfg.Target.Database)
	assert.Equal(t, map[string]string{"threads": "4"}, cfg.Target.Options)
}

func TestLoadConfig_ProjectRootFromSubdir(t *testing.T) {
	dir := inProject(t, "environment: staging\n")
	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	t.Chdir(sub)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, "staging", cfg.Environment)
}

func TestLoadConfig_Precedence(t *testing.T) {
	inProject(t, "log_level: info\nadmins: [alice]\noutput: text\n")
	t.Setenv("LEAPRULES_LOG_LEVEL", "debug")
	t.Setenv("LEAPRULES_ADMINS", "carol,dave")
	t.Setenv("LEAPRULES_TARGET_SCHEMA", "audit")

	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--output", "json", "--state", ":memory:", "--actor", "eve"}))

	cfg, err := LoadConfig("", fs)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel, "env overrides file")
	assert.Equal(t, []string{"carol", "dave"}, cfg.Admins)
	assert.Equal(t, "audit", cfg.Target.Schema)
	assert.Equal(t, "json", cfg.OutputFormat, "flag overrides file")
	assert.Equal(t, ":memory:", cfg.StatePath)
	assert.Equal(t, "eve", cfg.Actor)
}

func TestLoadConfig_Environments(t *testing.T) {
	inProject(t, `
environment: dev
target:
  type: sqlite
  options:
    busy_timeout: "1000"
environments:
  prod:
    admins: [ops]
    target:
      type: postgres
      host: db.internal
      database: rules
      user: rules
      password: ${RULES_DB_PASSWORD}
`)
	t.Setenv("RULES_DB_PASSWORD", "s3cret")

	cfg, err := LoadConfigWithTarget("", "prod", nil)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, []string{"ops"}, cfg.Admins)
	assert.Equal(t, "postgres", cfg.Target.Type)
	assert.Equal(t, "db.internal", cfg.Target.Host)
	assert.Equal(t, 5432, cfg.Target.Port)
	assert.Equal(t, "public", cfg.Target.Schema)
	assert.Equal(t, "rules", cfg.Target.Database)
	assert.Equal(t, "s3cret", cfg.Target.Password)
	assert.Equal(t, "1000", cfg.Target.Options["busy_timeout"])

	_, err = LoadConfigWithTarget("", "qa", nil)
	assert.ErrorContains(t, err, `unknown target "qa"`)
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	inProject(t, "")
	other := t.TempDir()
	path := filepath.Join(other, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("state_path: s.db\n"), 0o600))

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(other, "s.db"), cfg.StatePath)
	assert.Equal(t, path, GetConfigFileUsed())
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{"bad yaml", "target: [\n", "error reading config file"},
		{"unknown adapter", "target:\n  type: oracle\n", "unknown adapter type"},
		{"bad log level", "log_level: loud\n", "invalid log_level"},
		{"bad log format", "log_format: xml\n", "invalid log_format"},
		{"bad output", "output: html\n", "invalid output"},
		{"bad duration", "lock_timeout: soon\n", "unable to decode config"},
		{"negative timeout", "lock_timeout: -5m\n", "lock_timeout must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inProject(t, tt.yaml)
			_, err := LoadConfig("", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestMergeTargetConfig(t *testing.T) {
	base := &TargetConfig{Type: "postgres", Host: "localhost", Port: 5432, Options: map[string]string{"sslmode": "disable"}}
	override := &TargetConfig{Host: "db", Options: map[string]string{"application_name": "leaprules"}}

	merged := MergeTargetConfig(base, override)
	assert.Equal(t, "postgres", merged.Type)
	assert.Equal(t, "db", merged.Host)
	assert.Equal(t, 5432, merged.Port)
	assert.Equal(t, map[string]string{"sslmode": "disable", "application_name": "leaprules"}, merged.Options)
	assert.Equal(t, "localhost", base.Host, "base is not modified")

	assert.Same(t, base, MergeTargetConfig(base, nil))
	assert.Same(t, override, MergeTargetConfig(nil, override))
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LR_HOST", "db.example.com")
	assert.Equal(t, "db.example.com:5432", expandEnvVars("${LR_HOST}:5432"))
	assert.Equal(t, "${LR_MISSING}", expandEnvVars("${LR_MISSING}"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(&buf, &Config{LogLevel: "info", LogFormat: "json"})
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("rule saved", "rule_id", 7)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"rule_id":7`)

	buf.Reset()
	logger, err = NewLogger(&buf, &Config{LogLevel: "error", LogFormat: "text", Verbose: true})
	require.NoError(t, err)
	logger.Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")

	_, err = NewLogger(&buf, &Config{LogLevel: "loud"})
	assert.Error(t, err)
	_, err = NewLogger(&buf, &Config{LogLevel: "info", LogFormat: "xml"})
	assert.Error(t, err)
}

func TestLoggerContext(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))

	logger, err := NewLogger(&bytes.Buffer{}, &Config{LogLevel: "warn"})
	require.NoError(t, err)
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, GetLogger(ctx))
}
