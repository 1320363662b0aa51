package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/oar-pipeline/internal/model"
	"github.com/oar-pipeline/internal/store"
)

// maxFeatures caps GeoJSON responses.
const maxFeatures = 10000

// MapsHandler handles map-related endpoints
type MapsHandler struct {
	Store *store.Store
	Log   *zap.Logger
}

// GeoJSONResponse represents a GeoJSON FeatureCollection
type GeoJSONResponse struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one GeoJSON point feature
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   Geometry               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// Geometry is a GeoJSON point in [lon, lat] order
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// GetGeoJSON returns geolocated facilities of a run as a FeatureCollection.
// min_lat, max_lat, min_lng and max_lng restrict results to a viewport when
// all four are given.
func (h *MapsHandler) GetGeoJSON(w http.ResponseWriter, r *http.Request) {
	runID, err := resolveRun(r, h.Store)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	query := r.URL.Query()
	limit := parseIntParam(query.Get("limit"), maxFeatures)
	if limit < 1 || limit > maxFeatures {
		limit = maxFeatures
	}
	filter := store.Filter{
		Country:    query.Get("country"),
		CompanyID:  query.Get("company_id"),
		Geolocated: true,
		Limit:      limit,
	}

	// Parse viewport bounds for spatial filtering
	minLat := parseFloatParam(query.Get("min_lat"))
	maxLat := parseFloatParam(query.Get("max_lat"))
	minLng := parseFloatParam(query.Get("min_lng"))
	maxLng := parseFloatParam(query.Get("max_lng"))
	if minLat != nil && maxLat != nil && minLng != nil && maxLng != nil {
		if *minLat > *maxLat || *minLng > *maxLng {
			badRequest(w, "viewport minimum exceeds maximum")
			return
		}
		filter.Bounds = &store.Bounds{MinLat: *minLat, MaxLat: *maxLat, MinLon: *minLng, MaxLon: *maxLng}
	}

	facilities, err := h.Store.ListFacilities(r.Context(), runID, filter)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	features := make([]Feature, 0, len(facilities))
	for _, f := range facilities {
		features = append(features, toFeature(f))
	}
	writeJSON(w, http.StatusOK, GeoJSONResponse{Type: "FeatureCollection", Features: features})
}

func toFeature(f model.Facility) Feature {
	return Feature{
		Type: "Feature",
		Geometry: Geometry{
			Type:        "Point",
			Coordinates: [2]float64{*f.Lon, *f.Lat},
		},
		Properties: map[string]interface{}{
			"facility_id":   f.FacilityID,
			"facility_name": f.CanonicalName,
			"country":       model.Deref(f.Country),
			"sector":        model.Deref(f.Sector),
			"is_closed":     f.IsClosed,
			"company_id":    model.Deref(f.CompanyID),
			"company_name":  model.Deref(f.CompanyName),
		},
	}
}
