package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/record-overlap/internal/analysis"
	"github.com/record-overlap/internal/hashcheck"
	"github.com/record-overlap/internal/overlap"
)

func testReport() *analysis.Report {
	return &analysis.Report{
		RunID:      "run-42",
		StartedAt:  time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 5, 1, 9, 5, 0, 0, time.UTC),
		Backend:    "sqlite",
		Workers:    4,
		Fields: []analysis.FieldProfile{
			{Field: "email", ColumnA: "EmailStd", ColumnB: "email", NonNullA: 9, NonNullB: 8, FillRateA: 90, FillRateB: 80},
		},
		Keys: []overlap.KeyResult{
			{Name: "email", Fields: []string{"email"}, Status: overlap.StatusComputed, Counts: overlap.Counts{Matches: 7}},
			{
				Name: "FullName", Fields: []string{"first_name", "surname"}, Status: overlap.StatusComputed,
				Counts:     overlap.Counts{Matches: 3, ATotal: 2, BTotal: 2, DistinctA: 2, DistinctB: 1, DistinctCommon: 1},
				Statistics: overlap.Statistics{Jaccard: 1, ValueJaccard: 0.5, DuplicateInflated: true},
			},
			{Name: "landline", Fields: []string{"landline"}, Status: overlap.StatusUnavailable},
		},
		Hash: &hashcheck.Report{TotalChecked: 7, ValidCount: 7, ValidationRate: 100, SuspectSide: "none"},
	}
}

func newTestServer(t *testing.T, cfg *Config, report *analysis.Report) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(cfg, report, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, header http.Header, v any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, vals := range header {
		req.Header[k] = vals
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestResultsAPI(t *testing.T) {
	srv := newTestServer(t, &Config{}, testReport())

	var health map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/health", nil, &health))
	assert.Equal(t, "run-42", health["run_id"])

	var run map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/run", nil, &run))
	assert.Equal(t, "sqlite", run["backend"])
	assert.Equal(t, map[string]any{"computed": 2.0, "unavailable": 1.0}, run["key_status"])
	fields := run["fields"].([]any)
	require.Len(t, fields, 1)
	assert.Equal(t, 90.0, fields[0].(map[string]any)["fill_rate_a"])

	var keys []map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/keys", nil, &keys))
	assert.Len(t, keys, 3)

	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/keys?status=unavailable", nil, &keys))
	require.Len(t, keys, 1)
	assert.Equal(t, "landline", keys[0]["name"])

	var key map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/keys/FullName", nil, &key))
	assert.Equal(t, 3.0, key["matches"])
	assert.Equal(t, 1.0, key["distinct_common"])
	assert.Equal(t, 0.5, key["value_jaccard"])
	assert.Equal(t, true, key["duplicate_inflated"])

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/keys/nope", nil, &errBody))
	assert.Equal(t, "Key not found", errBody["error"])

	var hash map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/hash", nil, &hash))
	assert.Equal(t, 100.0, hash["validation_rate"])
}

func TestHashSkipped(t *testing.T) {
	report := testReport()
	report.Hash = nil
	report.HashReason = "disabled"
	srv := newTestServer(t, &Config{}, report)

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/hash", nil, &errBody))
	assert.Contains(t, errBody["error"], "disabled")
}

func TestRunWithoutFieldProfiles(t *testing.T) {
	report := testReport()
	report.Fields = nil
	srv := newTestServer(t, &Config{}, report)

	var run map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/run", nil, &run))
	assert.Equal(t, []any{}, run["fields"])
}

func TestAuthentication(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{Enabled: true, APIKey: "s3cret"}}
	srv := newTestServer(t, cfg, testReport())

	assert.Equal(t, http.StatusUnauthorized, getJSON(t, srv.URL+"/api/health", nil, nil))
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/health", http.Header{"X-Api-Key": {"s3cret"}}, nil))
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &Config{}, testReport())

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/keys", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OVERLAP_SERVE_PORT", "9191")
	t.Setenv("OVERLAP_SERVE_API_KEY", "k")

	cfg := DefaultConfig()
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.True(t, cfg.Auth.Enabled)
}
