package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/record-overlap/internal/keys"
	"github.com/record-overlap/internal/normalize"
)

// Source kinds.
const (
	KindCSV      = "csv"
	KindXLSX     = "xlsx"
	KindPostgres = "postgres"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Source describes one input dataset.
type Source struct {
	Name      string `yaml:"name" json:"name"`
	Kind      string `yaml:"kind" json:"kind"`
	Path      string `yaml:"path,omitempty" json:"path,omitempty"`
	Delimiter string `yaml:"delimiter,omitempty" json:"delimiter,omitempty"`
	Encoding  string `yaml:"encoding,omitempty" json:"encoding,omitempty"`
	Sheet     string `yaml:"sheet,omitempty" json:"sheet,omitempty"`
	Table     string `yaml:"table,omitempty" json:"table,omitempty"`
	DSN       string `yaml:"dsn,omitempty" json:"-"`
	MaxRows   int64  `yaml:"max_rows,omitempty" json:"max_rows,omitempty"`
}

// ResolvedKind returns Kind, inferring it from the path extension when
// unset.
func (s Source) ResolvedKind() string {
	if s.Kind != "" {
		return strings.ToLower(s.Kind)
	}
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".xlsx", ".xlsm":
		return KindXLSX
	case "":
		if s.Table != "" {
			return KindPostgres
		}
	}
	return KindCSV
}

// Location is a human readable description of where the source lives.
func (s Source) Location() string {
	if s.ResolvedKind() == KindPostgres {
		return "table " + s.Table
	}
	return s.Path
}

// Sources holds both sides.
type Sources struct {
	A Source `yaml:"a"`
	B Source `yaml:"b"`
}

// Field maps one canonical field to a column per side.
type Field struct {
	Name  string `yaml:"name"`
	A     string `yaml:"a"`
	B     string `yaml:"b"`
	Width int    `yaml:"width,omitempty"`
}

// HashConfig controls the hash integrity check.
type HashConfig struct {
	Enabled    bool   `yaml:"enabled"`
	EmailField string `yaml:"email_field"`
	HashField  string `yaml:"hash_field"`
	SampleSize int    `yaml:"sample_size"`
	Truncate   int    `yaml:"truncate"`
}

// EngineConfig controls staging and the per-key worker pool.
type EngineConfig struct {
	Backend    string        `yaml:"backend"`
	Workers    int           `yaml:"workers"`
	KeyTimeout time.Duration `yaml:"key_timeout"`
	MaxPairs   int64         `yaml:"max_pairs"`
	TopGroups  int           `yaml:"top_groups"`
	ScratchDir string        `yaml:"scratch_dir"`
	BatchSize  int           `yaml:"batch_size"`
}

// WorkerCount resolves Workers, defaulting to half the CPU cores.
func (e EngineConfig) WorkerCount() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return max(1, runtime.NumCPU()/2)
}

// ExportConfig controls result files.
type ExportConfig struct {
	Dir  string `yaml:"dir"`
	JSON string `yaml:"json"`
	XLSX string `yaml:"xlsx"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Analysis is the complete configuration of one run.
type Analysis struct {
	Sources Sources      `yaml:"sources"`
	Fields  []Field      `yaml:"fields"`
	Keys    []keys.Def   `yaml:"keys"`
	Hash    HashConfig   `yaml:"hash"`
	Engine  EngineConfig `yaml:"engine"`
	Export  ExportConfig `yaml:"export"`
	Log     LogConfig    `yaml:"log"`
}

// Default returns the DataDirect / AliveData configuration with the
// standard key set and no input paths.
func Default() *Analysis {
	var fields []Field
	for _, f := range normalize.DefaultMapping().Fields() {
		fields = append(fields, Field{Name: f.Name, A: f.A, B: f.B, Width: f.Width})
	}
	return &Analysis{
		Sources: Sources{
			A: Source{Name: "DataDirect"},
			B: Source{Name: "AliveData"},
		},
		Fields: fields,
		Keys:   keys.Defaults(),
		Hash: HashConfig{
			Enabled:    true,
			EmailField: normalize.FieldEmail,
			HashField:  normalize.FieldEmailHash,
			SampleSize: 5,
			Truncate:   16,
		},
		Engine: EngineConfig{
			Backend:    BackendSQLite,
			KeyTimeout: 30 * time.Minute,
			MaxPairs:   10_000_000,
			TopGroups:  10,
			BatchSize:  5000,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML analysis file over the defaults. Environment
// references (${VAR}) are expanded before decoding.
func Load(path string) (*Analysis, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from OVERLAP_* environment variables.
func (a *Analysis) ApplyEnv() {
	a.Engine.Backend = GetEnv("OVERLAP_BACKEND", a.Engine.Backend)
	a.Engine.Workers = GetEnvInt("OVERLAP_WORKERS", a.Engine.Workers)
	a.Engine.ScratchDir = GetEnv("OVERLAP_SCRATCH_DIR", a.Engine.ScratchDir)
	a.Engine.KeyTimeout = GetEnvDuration("OVERLAP_KEY_TIMEOUT", a.Engine.KeyTimeout)
	a.Engine.MaxPairs = GetEnvInt64("OVERLAP_MAX_PAIRS", a.Engine.MaxPairs)
	a.Hash.Enabled = GetEnvBool("OVERLAP_HASH_CHECK", a.Hash.Enabled)
	a.Log.Level = GetEnv("OVERLAP_LOG_LEVEL", a.Log.Level)
	a.Log.Format = GetEnv("OVERLAP_LOG_FORMAT", a.Log.Format)
}

// Validate checks the configuration for structural errors. Unresolvable
// key fields are not errors here; they make a key unavailable at run time.
func (a *Analysis) Validate() error {
	var problems []string

	for _, s := range []struct {
		side string
		src  Source
	}{{"a", a.Sources.A}, {"b", a.Sources.B}} {
		switch s.src.ResolvedKind() {
		case KindCSV, KindXLSX:
			if s.src.Path == "" {
				problems = append(problems, fmt.Sprintf("sources.%s: path is required", s.side))
			}
		case KindPostgres:
			if s.src.Table == "" {
				problems = append(problems, fmt.Sprintf("sources.%s: table is required", s.side))
			}
		default:
			problems = append(problems, fmt.Sprintf("sources.%s: unknown kind %q", s.side, s.src.Kind))
		}
		if s.src.MaxRows < 0 {
			problems = append(problems, fmt.Sprintf("sources.%s: max_rows must not be negative", s.side))
		}
	}

	if _, err := a.Mapping(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(a.Keys) == 0 {
		problems = append(problems, "at least one key is required")
	}
	seen := make(map[string]bool)
	for i, k := range a.Keys {
		if k.Name == "" {
			problems = append(problems, fmt.Sprintf("keys[%d]: name is required", i))
		}
		if seen[k.Name] {
			problems = append(problems, fmt.Sprintf("keys[%d]: duplicate key name %q", i, k.Name))
		}
		seen[k.Name] = true
		if len(k.Fields) == 0 {
			problems = append(problems, fmt.Sprintf("keys[%d]: %q has no fields", i, k.Name))
		}
	}

	switch a.Engine.Backend {
	case BackendSQLite, BackendMemory:
	default:
		problems = append(problems, fmt.Sprintf("engine.backend: unknown backend %q", a.Engine.Backend))
	}
	if a.Engine.Workers < 0 {
		problems = append(problems, "engine.workers must not be negative")
	}
	if a.Engine.KeyTimeout < 0 {
		problems = append(problems, "engine.key_timeout must not be negative")
	}
	if a.Engine.MaxPairs < -1 {
		problems = append(problems, "engine.max_pairs must be -1 (unlimited) or greater")
	}
	if a.Engine.TopGroups < 0 {
		problems = append(problems, "engine.top_groups must not be negative")
	}
	if a.Hash.SampleSize < 0 || a.Hash.Truncate < 0 {
		problems = append(problems, "hash.sample_size and hash.truncate must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Mapping builds the canonical field table.
func (a *Analysis) Mapping() (*normalize.Mapping, error) {
	fields := make([]normalize.Field, len(a.Fields))
	for i, f := range a.Fields {
		fields[i] = normalize.Field{Name: f.Name, A: f.A, B: f.B, Width: f.Width}
	}
	return normalize.NewMapping(fields...)
}
