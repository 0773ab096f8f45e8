package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"
)

// costLimit bounds the work a single condition may do.
const costLimit = 1_000_000

// ErrTableNotFound is returned when no table has the requested id.
var ErrTableNotFound = errors.New("decision table not found")

// Registry holds compiled decision tables. It is safe for concurrent use;
// reloads swap the whole table set at once.
type Registry struct {
	env    *cel.Env
	rows   RowSource
	logger *slog.Logger

	mu     sync.RWMutex
	tables map[string]*Table
}

// Option configures a Registry.
type Option func(*Registry)

// WithRowSource sets the function that runs source queries.
func WithRowSource(src RowSource) Option {
	return func(r *Registry) { r.rows = src }
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry with the standard CEL environment.
func NewRegistry(opts ...Option) (*Registry, error) {
	env, err := cel.NewEnv(
		cel.Variable("row", cel.DynType),
		cel.Variable("params", cel.DynType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	r := &Registry{
		env:    env,
		logger: slog.New(slog.DiscardHandler),
		tables: make(map[string]*Table),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// compile validates t and compiles every condition.
func (r *Registry) compile(t *Table) error {
	if err := t.validate(); err != nil {
		return err
	}

	programs := make([]cel.Program, 0, len(t.Rules))
	for i, rule := range t.Rules {
		ast, issues := r.env.Compile(rule.When)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("decision table %s: rule %d: compile error: %w", t.ID, i+1, issues.Err())
		}
		out := ast.OutputType()
		if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return fmt.Errorf("decision table %s: rule %d: condition must be boolean, got %s", t.ID, i+1, out)
		}
		prg, err := r.env.Program(ast, cel.CostLimit(costLimit))
		if err != nil {
			return fmt.Errorf("decision table %s: rule %d: program creation error: %w", t.ID, i+1, err)
		}
		programs = append(programs, prg)
	}
	t.programs = programs
	return nil
}

// Add compiles and registers a table, replacing any table with the same id.
func (r *Registry) Add(t *Table) error {
	if err := r.compile(t); err != nil {
		return err
	}
	r.mu.Lock()
	r.tables[t.ID] = t
	r.mu.Unlock()
	return nil
}

// Get returns a table by id.
func (r *Registry) Get(id string) (*Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[id]
	return t, ok
}

// IDs returns the registered table ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tables))
	for id := range r.tables {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// LoadDir reads every *.yaml and *.yml file in dir and replaces the registered
// tables. Nothing is replaced if any file fails; all failures are reported.
// A missing directory yields an empty registry.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.mu.Lock()
			r.tables = make(map[string]*Table)
			r.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to read decisions dir: %w", err)
	}

	loaded := make(map[string]*Table)
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !isTableFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		t, err := r.loadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, dup := loaded[t.ID]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate decision table id %q (also in %s)", path, t.ID, prev.Path))
			continue
		}
		loaded[t.ID] = t
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	r.mu.Lock()
	r.tables = loaded
	r.mu.Unlock()
	r.logger.Debug("decision tables loaded", "dir", dir, "count", len(loaded))
	return nil
}

func (r *Registry) loadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%s: invalid YAML: %w", path, err)
	}
	if t.ID == "" {
		t.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	t.Path = path
	if err := r.compile(&t); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &t, nil
}

func isTableFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Evaluate runs the table's source query, applies the hit policy to every fact
// row and summarises the result. Condition errors and hit-policy violations
// are returned as errors.
func (r *Registry) Evaluate(ctx context.Context, tableID string) (*Outcome, error) {
	t, ok := r.Get(tableID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, tableID)
	}

	rows := []map[string]any{{}}
	if strings.TrimSpace(t.Source) != "" {
		if r.rows == nil {
			return nil, fmt.Errorf("decision table %s has a source query but no database is configured", t.ID)
		}
		var err error
		rows, err = r.rows(ctx, t.Source)
		if err != nil {
			return nil, fmt.Errorf("decision table %s: source query failed: %w", t.ID, err)
		}
	}

	params := t.Params
	if params == nil {
		params = map[string]any{}
	}

	out := &Outcome{Rows: len(rows)}
	var firstFailure string
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pass, msg, err := t.decide(row, params)
		if err != nil {
			return nil, fmt.Errorf("decision table %s: row %d: %w", t.ID, i+1, err)
		}
		if !pass {
			out.RecordCount++
			if firstFailure == "" {
				firstFailure = msg
			}
		}
	}

	out.Passed = out.RecordCount == 0
	switch {
	case out.Passed:
		out.Message = fmt.Sprintf("%d of %d records passed", len(rows), len(rows))
	case firstFailure != "":
		out.Message = fmt.Sprintf("%s (%d of %d records failed)", firstFailure, out.RecordCount, len(rows))
	default:
		out.Message = fmt.Sprintf("%d of %d records failed", out.RecordCount, len(rows))
	}

	r.logger.Debug("decision table evaluated",
		"table", t.ID, "rows", len(rows), "failed", out.RecordCount, "passed", out.Passed)
	return out, nil
}

// decide evaluates one fact row under the table's hit policy. A row that no
// rule matches passes.
func (t *Table) decide(row, params map[string]any) (bool, string, error) {
	vars := map[string]any{"row": row, "params": params}

	var matched []int
	for i, prg := range t.programs {
		val, _, err := prg.Eval(vars)
		if err != nil {
			return false, "", fmt.Errorf("rule %d: %w", i+1, err)
		}
		b, ok := val.Value().(bool)
		if !ok {
			return false, "", fmt.Errorf("rule %d: condition returned %T, not bool", i+1, val.Value())
		}
		if b {
			matched = append(matched, i)
			if t.HitPolicy == HitPolicyFirst {
				break
			}
		}
	}

	if len(matched) == 0 {
		return true, "", nil
	}
	first := t.Rules[matched[0]]

	switch t.HitPolicy {
	case HitPolicyUnique:
		if len(matched) > 1 {
			return false, "", fmt.Errorf("hit policy UNIQUE violated: rules %s matched", ruleNumbers(matched))
		}
	case HitPolicyAny:
		for _, i := range matched[1:] {
			if t.Rules[i].Pass != first.Pass {
				return false, "", fmt.Errorf("hit policy ANY violated: rules %s disagree", ruleNumbers(matched))
			}
		}
	case HitPolicyCollect:
		var msgs []string
		pass := true
		for _, i := range matched {
			if !t.Rules[i].Pass {
				pass = false
				if m := t.Rules[i].Message; m != "" {
					msgs = append(msgs, m)
				}
			}
		}
		return pass, strings.Join(msgs, "; "), nil
	}
	return first.Pass, first.Message, nil
}

func ruleNumbers(idx []int) string {
	parts := make([]string, len(idx))
	for i, n := range idx {
		parts[i] = fmt.Sprint(n + 1)
	}
	return strings.Join(parts, ", ")
}
