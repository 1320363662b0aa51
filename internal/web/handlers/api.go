package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/oar-pipeline/internal/analytics"
	"github.com/oar-pipeline/internal/audit"
	"github.com/oar-pipeline/internal/store"
	"github.com/oar-pipeline/internal/validation"
)

// RunsHandler handles run-level endpoints
type RunsHandler struct {
	Store *store.Store
	Log   *zap.Logger
}

// RunsResponse lists recorded runs, newest first
type RunsResponse struct {
	Runs []audit.Run `json:"runs"`
}

// StatsResponse is the summary of one stored run
type StatsResponse struct {
	RunID   string            `json:"run_id"`
	Summary analytics.Summary `json:"summary"`
}

// ValidationResponse is the integrity report of one stored run
type ValidationResponse struct {
	RunID  string            `json:"run_id"`
	OK     bool              `json:"ok"`
	Counts map[string]int    `json:"counts"`
	Report validation.Report `json:"report"`
}

// ListRuns returns recorded runs of every status
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.Tracker().List(r.Context(), parseIntParam(r.URL.Query().Get("limit"), 20))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, RunsResponse{Runs: runs})
}

// LatestRun returns the most recent completed run
func (h *RunsHandler) LatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.Tracker().Latest(r.Context())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetStats recomputes the summary statistics of a stored run
func (h *RunsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	runID, err := resolveRun(r, h.Store)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	tables, err := h.Store.LoadRun(r.Context(), runID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{RunID: runID, Summary: analytics.Summarize(tables)})
}

// GetValidation re-checks relational integrity of a stored run
func (h *RunsHandler) GetValidation(w http.ResponseWriter, r *http.Request) {
	runID, err := resolveRun(r, h.Store)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	tables, err := h.Store.LoadRun(r.Context(), runID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	report := validation.NewValidator(h.Log).Validate(tables)
	writeJSON(w, http.StatusOK, ValidationResponse{
		RunID:  runID,
		OK:     report.OK(),
		Counts: report.Counts(),
		Report: report,
	})
}
