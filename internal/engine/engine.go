// Package engine is the rules service layer. It saves rules with their
// extracted dependencies, runs the rule forest against a target database,
// records run history and audit entries, and answers impact questions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/leapstack-labs/leaprules/internal/decision"
	"github.com/leapstack-labs/leaprules/internal/state"
	"github.com/leapstack-labs/leaprules/pkg/adapter"
	"github.com/leapstack-labs/leaprules/pkg/core"
)

// Engine orchestrates rule storage and execution.
type Engine struct {
	// Database adapter (lazy initialized)
	db          adapter.Adapter
	dbConfig    adapter.Config
	dbConnected bool
	dbMu        sync.Mutex

	logger *slog.Logger

	store        core.Store
	decisions    *decision.Registry
	decisionsDir string
	environment  string
	admins       []string
}

// Config holds engine configuration.
type Config struct {
	// StatePath is the path to the SQLite state database
	StatePath string
	// DecisionsDir holds decision table YAML files (optional)
	DecisionsDir string
	// Environment is the current environment (dev, staging, prod)
	Environment string
	// AdapterConfig is the target database rules run against
	AdapterConfig *adapter.Config
	// Admins may modify global rules
	Admins []string
	// LockTimeout is how long rule locks are honoured (0 uses the default)
	LockTimeout time.Duration
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New opens the state store, loads decision tables and returns an engine. The
// target database is only connected when a rule first needs it.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initializing engine", "state_path", cfg.StatePath, "environment", cfg.Environment)

	store := state.NewSQLiteStore(state.WithLogger(logger), state.WithLockTimeout(cfg.LockTimeout))
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}

	env := cfg.Environment
	if env == "" {
		env = "dev"
	}

	var dbConfig adapter.Config
	if cfg.AdapterConfig != nil {
		dbConfig = *cfg.AdapterConfig
	}
	if dbConfig.Type == "" {
		dbConfig.Type = "sqlite"
	}

	e := &Engine{
		dbConfig:     dbConfig,
		logger:       logger,
		store:        store,
		decisionsDir: cfg.DecisionsDir,
		environment:  env,
		admins:       cfg.Admins,
	}

	registry, err := decision.NewRegistry(
		decision.WithRowSource(e.queryRows),
		decision.WithLogger(logger),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if cfg.DecisionsDir != "" {
		if err := registry.LoadDir(cfg.DecisionsDir); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to load decision tables: %w", err)
		}
	}
	e.decisions = registry

	return e, nil
}

// ensureDBConnected lazily connects to the target database.
func (e *Engine) ensureDBConnected(ctx context.Context) error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if e.dbConnected {
		return nil
	}

	e.logger.Debug("connecting to database", "adapter_type", e.dbConfig.Type)

	db, err := adapter.Open(ctx, e.dbConfig, e.logger)
	if err != nil {
		return err
	}

	e.db = db
	e.dbConnected = true
	e.logger.Debug("database connected", "dialect", db.DialectName())
	return nil
}

// DB returns the connected target database, connecting on first use.
func (e *Engine) DB(ctx context.Context) (adapter.Adapter, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}
	return e.db, nil
}

// queryRows feeds decision table source queries from the target database.
func (e *Engine) queryRows(ctx context.Context, query string) ([]map[string]any, error) {
	db, err := e.DB(ctx)
	if err != nil {
		return nil, err
	}
	return adapter.QueryMaps(ctx, db, query)
}

// WatchDecisions reloads decision tables on file changes until ctx is done.
func (e *Engine) WatchDecisions(ctx context.Context, onReload func(error)) error {
	if e.decisionsDir == "" {
		return errors.New("no decisions directory configured")
	}
	return e.decisions.Watch(ctx, e.decisionsDir, onReload)
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// --- Getters (public accessors) ---

// Store returns the state store.
func (e *Engine) Store() core.Store {
	return e.store
}

// Decisions returns the decision table registry.
func (e *Engine) Decisions() *decision.Registry {
	return e.decisions
}

// Environment returns the environment runs are recorded under.
func (e *Engine) Environment() string {
	return e.environment
}

func (e *Engine) isAdmin(actor string) bool {
	return slices.Contains(e.admins, actor)
}

// SchemaVersion returns the applied state schema migration version.
func (e *Engine) SchemaVersion() (int64, error) {
	v, ok := e.store.(interface{ GetMigrationVersion() (int64, error) })
	if !ok {
		return 0, errors.New("state store does not report a schema version")
	}
	return v.GetMigrationVersion()
}

// Ping connects to the target database if needed and checks it responds.
func (e *Engine) Ping(ctx context.Context) error {
	db, err := e.DB(ctx)
	if err != nil {
		return err
	}
	rows, err := db.Query(ctx, "SELECT 1")
	if err != nil {
		return err
	}
	return rows.Close()
}

// GraphLinks returns the declared conflicts and global critical links.
func (e *Engine) GraphLinks() ([]core.Conflict, []core.GlobalCriticalLink, error) {
	conflicts, err := e.store.ListConflicts()
	if err != nil {
		return nil, nil, err
	}
	links, err := e.store.ListGlobalCriticalLinks()
	if err != nil {
		return nil, nil, err
	}
	return conflicts, links, nil
}
