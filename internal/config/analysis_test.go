package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "DataDirect", cfg.Sources.A.Name)
	assert.Equal(t, "AliveData", cfg.Sources.B.Name)
	assert.Equal(t, BackendSQLite, cfg.Engine.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Engine.KeyTimeout)
	assert.True(t, cfg.Hash.Enabled)
	assert.Len(t, cfg.Keys, 15)

	m, err := cfg.Mapping()
	require.NoError(t, err)
	f, ok := m.Field("postcode")
	require.True(t, ok)
	assert.Equal(t, 4, f.Width)
}

func TestDefaultInfersSourceKind(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Sources.A.Kind)
	assert.Empty(t, cfg.Sources.B.Kind)

	cfg.Sources.A.Path = "people.xlsx"
	cfg.Sources.B.Table = "alive_people"
	assert.Equal(t, KindXLSX, cfg.Sources.A.ResolvedKind())
	assert.Equal(t, KindPostgres, cfg.Sources.B.ResolvedKind())
	assert.NoError(t, cfg.Validate())

	cfg.Sources.B = Source{Name: "AliveData", Path: "alive.csv"}
	assert.Equal(t, KindCSV, cfg.Sources.B.ResolvedKind())
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv("TEST_DATA_DIR", "/data")
	path := writeFile(t, "analysis.yaml", `
sources:
  a:
    path: ${TEST_DATA_DIR}/a.csv
  b:
    path: ${TEST_DATA_DIR}/b.xlsx
    sheet: People
keys:
  - name: email
    fields: [email]
  - name: full_name
    fields: [first_name, surname]
engine:
  backend: memory
  key_timeout: 90s
  max_pairs: -1
hash:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/a.csv", cfg.Sources.A.Path)
	assert.Equal(t, "DataDirect", cfg.Sources.A.Name)
	assert.Equal(t, KindXLSX, cfg.Sources.B.ResolvedKind())
	assert.Equal(t, "People", cfg.Sources.B.Sheet)
	require.Len(t, cfg.Keys, 2)
	assert.Equal(t, []string{"first_name", "surname"}, cfg.Keys[1].Fields)
	assert.Equal(t, BackendMemory, cfg.Engine.Backend)
	assert.Equal(t, 90*time.Second, cfg.Engine.KeyTimeout)
	assert.Equal(t, int64(-1), cfg.Engine.MaxPairs)
	assert.False(t, cfg.Hash.Enabled)
	// untouched sections keep their defaults
	assert.Equal(t, 10, cfg.Engine.TopGroups)
	assert.Len(t, cfg.Fields, 12)
	require.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "sources: [unclosed"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("OVERLAP_BACKEND", "memory")
	t.Setenv("OVERLAP_WORKERS", "3")
	t.Setenv("OVERLAP_SCRATCH_DIR", "/scratch")
	t.Setenv("OVERLAP_LOG_LEVEL", "debug")
	t.Setenv("OVERLAP_HASH_CHECK", "off")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, BackendMemory, cfg.Engine.Backend)
	assert.Equal(t, 3, cfg.Engine.WorkerCount())
	assert.Equal(t, "/scratch", cfg.Engine.ScratchDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Hash.Enabled)
}

func TestValidate(t *testing.T) {
	valid := func() *Analysis {
		cfg := Default()
		cfg.Sources.A.Path = "a.csv"
		cfg.Sources.B.Path = "b.csv"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Analysis)
		wantErr string
	}{
		{name: "valid", mutate: func(*Analysis) {}},
		{name: "missing path", mutate: func(a *Analysis) { a.Sources.A.Path = "" }, wantErr: "sources.a: path is required"},
		{name: "postgres needs table", mutate: func(a *Analysis) { a.Sources.B = Source{Kind: KindPostgres} }, wantErr: "sources.b: table is required"},
		{name: "unknown kind", mutate: func(a *Analysis) { a.Sources.B.Kind = "parquet" }, wantErr: "unknown kind"},
		{name: "no keys", mutate: func(a *Analysis) { a.Keys = nil }, wantErr: "at least one key"},
		{name: "duplicate key", mutate: func(a *Analysis) { a.Keys = append(a.Keys, a.Keys[0]) }, wantErr: "duplicate key name"},
		{name: "bad backend", mutate: func(a *Analysis) { a.Engine.Backend = "redis" }, wantErr: "unknown backend"},
		{name: "bad max pairs", mutate: func(a *Analysis) { a.Engine.MaxPairs = -5 }, wantErr: "max_pairs"},
		{name: "duplicate field", mutate: func(a *Analysis) { a.Fields = append(a.Fields, a.Fields[0]) }, wantErr: "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolvedKind(t *testing.T) {
	assert.Equal(t, KindCSV, Source{Path: "x.csv"}.ResolvedKind())
	assert.Equal(t, KindCSV, Source{Path: "x.txt"}.ResolvedKind())
	assert.Equal(t, KindXLSX, Source{Path: "x.XLSX"}.ResolvedKind())
	assert.Equal(t, KindPostgres, Source{Table: "people"}.ResolvedKind())
	assert.Equal(t, KindPostgres, Source{Kind: "Postgres"}.ResolvedKind())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("OVERLAP_TEST_INT", "notanint")
	t.Setenv("OVERLAP_TEST_DUR", "5m")

	assert.Equal(t, 7, GetEnvInt("OVERLAP_TEST_INT", 7))
	assert.Equal(t, 5*time.Minute, GetEnvDuration("OVERLAP_TEST_DUR", time.Second))
	assert.Equal(t, "fallback", GetEnv("OVERLAP_TEST_UNSET", "fallback"))
	assert.True(t, GetEnvBool("OVERLAP_TEST_UNSET", true))
}

func TestLoadEnv(t *testing.T) {
	path := writeFile(t, "test.env", "OVERLAP_TEST_FROM_FILE=loaded\n")
	t.Setenv("OVERLAP_TEST_FROM_FILE", "")
	os.Unsetenv("OVERLAP_TEST_FROM_FILE")

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "loaded", os.Getenv("OVERLAP_TEST_FROM_FILE"))

	assert.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "absent.env")))
}
