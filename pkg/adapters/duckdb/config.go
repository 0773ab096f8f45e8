package duckdb

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds DuckDB-specific configuration.
// Parsed from adapter.Config.Options using mapstructure.
type Params struct {
	// Extensions to install and load, comma separated in options (e.g. "httpfs,json")
	Extensions []string `mapstructure:"extensions"`

	// Settings are every other option, applied with SET at session level
	// (e.g. memory_limit, threads).
	Settings map[string]any `mapstructure:",remain"`
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseParams decodes target options into Params.
func ParseParams(opts map[string]string) (*Params, error) {
	p := &Params{}
	if len(opts) == 0 {
		return p, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToSliceHookFunc(","),
		Result:     p,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(opts); err != nil {
		return nil, fmt.Errorf("invalid duckdb options: %w", err)
	}

	exts := p.Extensions[:0]
	for _, e := range p.Extensions {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !identPattern.MatchString(e) {
			return nil, fmt.Errorf("invalid duckdb extension name %q", e)
		}
		exts = append(exts, e)
	}
	p.Extensions = exts
	if len(p.Extensions) == 0 {
		p.Extensions = nil
	}

	for k := range p.Settings {
		if !identPattern.MatchString(k) {
			return nil, fmt.Errorf("invalid duckdb setting name %q", k)
		}
	}
	if len(p.Settings) == 0 {
		p.Settings = nil
	}
	return p, nil
}

// Statements returns the SQL that applies p to a fresh connection, in order.
func (p *Params) Statements() []string {
	var stmts []string
	for _, ext := range p.Extensions {
		stmts = append(stmts, "INSTALL "+ext, "LOAD "+ext)
	}

	keys := make([]string, 0, len(p.Settings))
	for k := range p.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := strings.ReplaceAll(fmt.Sprint(p.Settings[k]), "'", "''")
		stmts = append(stmts, fmt.Sprintf("SET %s = '%s'", k, v))
	}
	return stmts
}
