package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/oar-pipeline/internal/db"
	"github.com/oar-pipeline/internal/store"
)

// maxLimit caps page sizes requested by clients.
const maxLimit = 1000

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// resolveRun returns the run named by the "run" query parameter, or the
// latest completed run.
func resolveRun(r *http.Request, st *store.Store) (string, error) {
	if id := r.URL.Query().Get("run"); id != "" {
		if _, err := st.Tracker().Get(r.Context(), id); err != nil {
			return "", err
		}
		return id, nil
	}
	return st.LatestRunID(r.Context())
}

// pageFilter reads limit/offset query parameters. limit defaults to 100
// and is capped at maxLimit.
func pageFilter(r *http.Request) store.Filter {
	q := r.URL.Query()
	limit := parseIntParam(q.Get("limit"), 100)
	if limit < 1 {
		limit = 100
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := parseIntParam(q.Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}
	return store.Filter{
		Country: q.Get("country"),
		Limit:   limit,
		Offset:  offset,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps not-found errors to 404 and logs everything else as a
// server error.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	if errors.Is(err, db.ErrRunNotFound) || errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	log.Error("Request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg})
}

// parseFloatParam parses a string parameter as float64, returns nil if empty or invalid
func parseFloatParam(s string) *float64 {
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return &f
	}
	return nil
}

// parseIntParam parses a string parameter as int with default value
func parseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return defaultVal
}
