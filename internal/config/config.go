// Package config loads run configuration from YAML or CUE files.
//
// Both formats are checked against the embedded #Config schema, so a typo
// in a field name or an unknown save mode is rejected at load time with a
// position in the offending file.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/anaphora/internal/stats"
	"github.com/roach88/anaphora/internal/store"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"
)

//go:embed schema.cue
var schemaSource string

// Config is the configuration of one harness run.
type Config struct {
	// Permissive keeps critical failures from aborting the run.
	Permissive bool `yaml:"permissive" json:"permissive,omitempty"`

	// Save selects where the run's database goes: empty keeps it in memory,
	// replace overwrites <module>.db, archive writes a timestamped file.
	Save string `yaml:"save" json:"save,omitempty"`

	// Module names the database file.
	Module string `yaml:"module" json:"module,omitempty"`

	// Database is an explicit database path. It overrides Save.
	Database string `yaml:"database" json:"database,omitempty"`

	LogLevel string `yaml:"log_level" json:"log_level,omitempty"`

	// Stats lists the stats persisted per node. Empty tracks every
	// declared stat.
	Stats []string `yaml:"stats" json:"stats,omitempty"`

	// Derived declares extra stats computed from expressions.
	Derived []DerivedStat `yaml:"derived" json:"derived,omitempty"`
}

// DerivedStat is a stat computed from other stats, e.g.
//
//	name: failure_rate
//	expr: stat("failed") / (stat("succeeded") + stat("failed"))
type DerivedStat struct {
	Name string `yaml:"name" json:"name"`
	Expr string `yaml:"expr" json:"expr"`
	Type string `yaml:"type" json:"type,omitempty"`
	Mode string `yaml:"mode" json:"mode,omitempty"`
}

// Error is a configuration problem with its position when known.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a .yaml, .yml or .cue configuration file, checks it against
// the schema and fills in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	ctx := cuecontext.New()
	var v cue.Value
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		v = ctx.CompileBytes(data, cue.Filename(path))
	case ".yaml", ".yml":
		v, err = yamlValue(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("config file %s: unsupported extension (want .yaml, .yml or .cue)", path)
	}

	cfg, err := decode(ctx, v)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// yamlValue parses YAML into a CUE value so both formats share one schema.
func yamlValue(ctx *cue.Context, data []byte) (cue.Value, error) {
	var doc map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return cue.Value{}, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return ctx.Encode(doc), nil
}

// decode unifies v with #Config and decodes the result.
func decode(ctx *cue.Context, v cue.Value) (*Config, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, formatCUEError(err)
	}
	return &cfg, nil
}

func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}

	first := errs[0]
	out := &Error{Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		out.Pos = positions[0]
	}
	return out
}

// applyDefaults sets default values for unspecified options.
func (c *Config) applyDefaults() {
	if c.Module == "" {
		c.Module = store.DefaultModule
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	for i := range c.Derived {
		if c.Derived[i].Type == "" {
			c.Derived[i].Type = "numeric"
		}
		if c.Derived[i].Mode == "" {
			c.Derived[i].Mode = string(stats.All)
		}
	}
}

// Validate checks what the schema cannot: derived stats must compile and
// every tracked stat must be declared.
func (c *Config) Validate() error {
	if c.Save == store.SaveTrack {
		return store.ErrTrackUnsupported
	}
	if _, err := c.Registry(); err != nil {
		return err
	}
	return nil
}

// Registry returns a registry holding the builtin stats and the derived
// stats, in that order. A derived stat named like a builtin replaces it.
func (c *Config) Registry() (*stats.Registry, error) {
	reg := stats.NewRegistry()
	stats.RegisterBuiltins(reg)

	seen := make(map[string]bool, len(c.Derived))
	for _, d := range c.Derived {
		if seen[d.Name] {
			return nil, fmt.Errorf("derived stat %q declared twice", d.Name)
		}
		seen[d.Name] = true

		s, err := stats.Expr(d.Name, d.Expr, statType(d.Type), stats.Mode(d.Mode))
		if err != nil {
			return nil, err
		}
		if err := reg.Declare(s); err != nil {
			return nil, err
		}
	}

	if _, err := reg.Tracked(c.Stats...); err != nil {
		return nil, fmt.Errorf("config stats: %w", err)
	}
	return reg, nil
}

func statType(name string) stats.Type {
	switch name {
	case "integer":
		return stats.Integer
	case "real":
		return stats.Real
	default:
		return stats.Numeric
	}
}

// SlogLevel maps LogLevel to a slog level. Unknown names mean info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
