package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/oar-pipeline/internal/model"
	"github.com/oar-pipeline/internal/store"
)

// RecordsHandler handles company and facility endpoints
type RecordsHandler struct {
	Store *store.Store
	Log   *zap.Logger
}

// Facility is a facility row together with the company it is linked to
type Facility struct {
	model.Facility
	CompanyID   *string `json:"company_id,omitempty"`
	CompanyName *string `json:"company_name,omitempty"`
}

// CompaniesResponse represents a page of companies
type CompaniesResponse struct {
	RunID     string          `json:"run_id"`
	Companies []model.Company `json:"companies"`
	Limit     int             `json:"limit"`
	Offset    int             `json:"offset"`
}

// CompanyResponse is one company with its facilities
type CompanyResponse struct {
	RunID      string        `json:"run_id"`
	Company    model.Company `json:"company"`
	Facilities []Facility    `json:"facilities"`
}

// FacilitiesResponse represents a page of facilities
type FacilitiesResponse struct {
	RunID      string     `json:"run_id"`
	Facilities []Facility `json:"facilities"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
}

// ListCompanies returns a filtered and paginated list of companies
func (h *RecordsHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	runID, err := resolveRun(r, h.Store)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	filter := pageFilter(r)
	companies, err := h.Store.ListCompanies(r.Context(), runID, filter)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if companies == nil {
		companies = []model.Company{}
	}

	writeJSON(w, http.StatusOK, CompaniesResponse{
		RunID:     runID,
		Companies: companies,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	})
}

// GetCompany returns one company and its linked facilities
func (h *RecordsHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	runID, err := resolveRun(r, h.Store)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	company, facilities, err := h.Store.GetCompany(r.Context(), runID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	writeJSON(w, http.StatusOK, CompanyResponse{
		RunID:      runID,
		Company:    company,
		Facilities: withCompany(facilities),
	})
}

// ListFacilities returns a filtered and paginated list of facilities
func (h *RecordsHandler) ListFacilities(w http.ResponseWriter, r *http.Request) {
	runID, err := resolveRun(r, h.Store)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	filter := pageFilter(r)
	filter.CompanyID = r.URL.Query().Get("company_id")
	facilities, err := h.Store.ListFacilities(r.Context(), runID, filter)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	writeJSON(w, http.StatusOK, FacilitiesResponse{
		RunID:      runID,
		Facilities: withCompany(facilities),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

func withCompany(facilities []model.Facility) []Facility {
	out := make([]Facility, 0, len(facilities))
	for _, f := range facilities {
		out = append(out, Facility{Facility: f, CompanyID: f.CompanyID, CompanyName: f.CompanyName})
	}
	return out
}
