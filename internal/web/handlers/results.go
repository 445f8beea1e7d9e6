package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/record-overlap/internal/analysis"
	"github.com/record-overlap/internal/overlap"
)

// ResultsHandler serves one finished run
type ResultsHandler struct {
	Report *analysis.Report
}

// KeySummary is one row of the key listing
type KeySummary struct {
	Name    string         `json:"name"`
	Fields  []string       `json:"fields"`
	Status  overlap.Status `json:"status"`
	Matches int64          `json:"matches"`
	Jaccard float64        `json:"jaccard"`

	ValueJaccard      float64 `json:"value_jaccard"`
	DuplicateInflated bool    `json:"duplicate_inflated"`
}

// RunSummary describes the run without per-key detail
type RunSummary struct {
	RunID      string                   `json:"run_id"`
	StartedAt  string                   `json:"started_at"`
	FinishedAt string                   `json:"finished_at"`
	Backend    string                   `json:"backend"`
	Workers    int                      `json:"workers"`
	Sources    []analysis.SourceSummary `json:"sources"`
	Fields     []analysis.FieldProfile  `json:"fields"`
	KeyStatus  map[overlap.Status]int   `json:"key_status"`
}

// Health reports liveness
func (h *ResultsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "run_id": h.Report.RunID})
}

// Run returns the run summary
func (h *ResultsHandler) Run(w http.ResponseWriter, r *http.Request) {
	summary := RunSummary{
		RunID:      h.Report.RunID,
		StartedAt:  h.Report.StartedAt.Format(time.RFC3339),
		FinishedAt: h.Report.FinishedAt.Format(time.RFC3339),
		Backend:    h.Report.Backend,
		Workers:    h.Report.Workers,
		Sources:    h.Report.Sources,
		Fields:     h.Report.Fields,
		KeyStatus:  make(map[overlap.Status]int),
	}
	if summary.Fields == nil {
		summary.Fields = []analysis.FieldProfile{}
	}
	for _, k := range h.Report.Keys {
		summary.KeyStatus[k.Status]++
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListKeys returns every key with its headline numbers, optionally
// filtered by ?status=
func (h *ResultsHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	status := overlap.Status(r.URL.Query().Get("status"))
	keys := make([]KeySummary, 0, len(h.Report.Keys))
	for _, k := range h.Report.Keys {
		if status != "" && k.Status != status {
			continue
		}
		keys = append(keys, KeySummary{
			Name:    k.Name,
			Fields:  k.Fields,
			Status:  k.Status,
			Matches: k.Matches,
			Jaccard: k.Jaccard,

			ValueJaccard:      k.ValueJaccard,
			DuplicateInflated: k.DuplicateInflated,
		})
	}
	writeJSON(w, http.StatusOK, keys)
}

// GetKey returns the full result of one key
func (h *ResultsHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	result, ok := h.Report.Key(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Key not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetHash returns the hash integrity report
func (h *ResultsHandler) GetHash(w http.ResponseWriter, r *http.Request) {
	if h.Report.Hash == nil {
		writeError(w, http.StatusNotFound, "Hash check not run: "+h.Report.HashReason)
		return
	}
	writeJSON(w, http.StatusOK, h.Report.Hash)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
