package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leaprules/pkg/core"
)

// RuleFile is the YAML document accepted by Import. Rules reference their
// parent and each other by name.
type RuleFile struct {
	Rules               []RuleSpec     `yaml:"rules"`
	Conflicts           []ConflictSpec `yaml:"conflicts"`
	GlobalCriticalLinks []LinkSpec     `yaml:"global_critical_links"`
}

// RuleSpec is one rule in a RuleFile.
type RuleSpec struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	SQL           string `yaml:"sql"`
	Parent        string `yaml:"parent"`
	DecisionTable string `yaml:"decision_table"`
	Status        string `yaml:"status"`
	Critical      bool   `yaml:"critical"`
	CriticalScope string `yaml:"critical_scope"`
	Global        bool   `yaml:"global"`
	Owner         string `yaml:"owner"`
}

// ConflictSpec declares two conflicting rules by name.
type ConflictSpec struct {
	A        string `yaml:"a"`
	B        string `yaml:"b"`
	Priority int    `yaml:"priority"`
}

// LinkSpec declares a global critical link by rule name.
type LinkSpec struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// ImportResult counts what Import wrote.
type ImportResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Conflicts int `json:"conflicts"`
	Links     int `json:"links"`
}

// ParseRuleFile decodes a rule file. Unknown keys are rejected.
func ParseRuleFile(r io.Reader) (*RuleFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f RuleFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}
	return &f, nil
}

// Import saves every rule in f, creating new rules and updating rules whose
// name already exists. Parents may appear anywhere in the file. Conflicts and
// links are added after all rules are saved.
func (e *Engine) Import(ctx context.Context, f *RuleFile, actor string) (*ImportResult, error) {
	existing, err := e.store.ListRules()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*core.Rule, len(existing))
	for _, r := range existing {
		byName[r.Name] = r
	}

	res := &ImportResult{}
	pending := f.Rules
	for len(pending) > 0 {
		var deferred []RuleSpec
		for _, entry := range pending {
			if entry.Parent != "" && byName[entry.Parent] == nil {
				deferred = append(deferred, entry)
				continue
			}
			rule, err := entry.toRule(byName)
			if err != nil {
				return res, err
			}
			created := rule.ID == 0
			if err := e.SaveRule(ctx, rule, actor); err != nil {
				return res, fmt.Errorf("rule %q: %w", entry.Name, err)
			}
			byName[rule.Name] = rule
			if created {
				res.Created++
			} else {
				res.Updated++
			}
		}
		if len(deferred) == len(pending) {
			names := make([]string, len(deferred))
			for i, s := range deferred {
				names[i] = fmt.Sprintf("%s (parent %s)", s.Name, s.Parent)
			}
			return res, fmt.Errorf("unresolved parents: %s", strings.Join(names, ", "))
		}
		pending = deferred
	}

	for _, c := range f.Conflicts {
		a, b := byName[c.A], byName[c.B]
		if a == nil || b == nil {
			return res, fmt.Errorf("conflict %s/%s references an unknown rule", c.A, c.B)
		}
		if err := e.AddConflict(core.Conflict{RuleA: a.ID, RuleB: b.ID, Priority: c.Priority}, actor); err != nil {
			return res, err
		}
		res.Conflicts++
	}

	for _, l := range f.GlobalCriticalLinks {
		src, dst := byName[l.Source], byName[l.Target]
		if src == nil || dst == nil {
			return res, fmt.Errorf("global critical link %s -> %s references an unknown rule", l.Source, l.Target)
		}
		if err := e.AddGlobalCriticalLink(core.GlobalCriticalLink{SourceID: src.ID, TargetID: dst.ID}, actor); err != nil {
			return res, err
		}
		res.Links++
	}

	e.logger.Info("rules imported", "created", res.Created, "updated", res.Updated, "conflicts", res.Conflicts, "links", res.Links)
	return res, nil
}

func (s RuleSpec) toRule(byName map[string]*core.Rule) (*core.Rule, error) {
	status, err := core.ParseRuleStatus(s.Status)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", s.Name, err)
	}
	scope, err := core.ParseCriticalScope(s.CriticalScope)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", s.Name, err)
	}

	rule := &core.Rule{
		Name:            strings.TrimSpace(s.Name),
		Description:     s.Description,
		SQL:             s.SQL,
		DecisionTableID: s.DecisionTable,
		Status:          status,
		Critical:        s.Critical,
		CriticalScope:   scope,
		Global:          s.Global,
		Owner:           s.Owner,
	}
	if s.Parent != "" {
		rule.ParentID = core.ParentRef(byName[s.Parent].ID)
	}
	if prev, ok := byName[rule.Name]; ok {
		rule.ID = prev.ID
		if s.Status == "" {
			rule.Status = prev.Status
		}
	}
	return rule, nil
}
