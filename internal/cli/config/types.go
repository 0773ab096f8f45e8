// Package config provides configuration management for the leaprules CLI.
//
// Settings are layered with koanf: built-in defaults, then leaprules.yaml,
// then LEAPRULES_ environment variables, then explicitly set flags.
package config

import (
	"time"

	intconfig "github.com/leapstack-labs/leaprules/internal/config"
	"github.com/leapstack-labs/leaprules/internal/state"
	"github.com/leapstack-labs/leaprules/pkg/core"
)

// TargetConfig is the database rules run against.
type TargetConfig = core.TargetConfig

// Config holds all CLI configuration options.
type Config struct {
	StatePath    string               `koanf:"state_path"`
	DecisionsDir string               `koanf:"decisions_dir"`
	SeedsDir     string               `koanf:"seeds_dir"`
	Environment  string               `koanf:"environment"`
	Verbose      bool                 `koanf:"verbose"`
	OutputFormat string               `koanf:"output"`
	LogLevel     string               `koanf:"log_level"`
	LogFormat    string               `koanf:"log_format"`
	DryRun       bool                 `koanf:"dry_run"`
	LockTimeout  time.Duration        `koanf:"lock_timeout"`
	Admins       []string             `koanf:"admins"`
	Actor        string               `koanf:"actor"`
	Target       *TargetConfig        `koanf:"target"`
	Environments map[string]EnvConfig `koanf:"environments"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	StatePath string        `koanf:"state_path"`
	Admins    []string      `koanf:"admins"`
	Target    *TargetConfig `koanf:"target"`
}

// Default configuration values.
const (
	DefaultStateFile    = intconfig.DefaultStateFile
	DefaultDecisionsDir = intconfig.DefaultDecisionsDir
	DefaultSeedsDir     = intconfig.DefaultSeedsDir
	DefaultEnv          = intconfig.DefaultEnv
	DefaultOutput       = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultLogLevel     = "warn"
	DefaultLogFormat    = "text"
	DefaultLockTimeout  = state.DefaultLockTimeout
)
