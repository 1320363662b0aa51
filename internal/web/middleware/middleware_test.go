package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/oar-pipeline/internal/metrics"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
	_, _ = w.Write([]byte("hi"))
})

func TestAuthentication(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing key", header: "", want: http.StatusUnauthorized},
		{name: "wrong key", header: "nope", want: http.StatusUnauthorized},
		{name: "valid key", header: "secret", want: http.StatusTeapot},
	}

	h := Authentication("secret")(ok)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
			if tt.header != "" {
				req.Header.Set(APIKeyHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		origin     string
		method     string
		wantStatus int
		wantHeader string
	}{
		{name: "wildcard", origins: []string{"*"}, origin: "http://a.test", method: http.MethodGet, wantStatus: http.StatusTeapot, wantHeader: "*"},
		{name: "listed origin", origins: []string{"http://a.test/"}, origin: "http://a.test", method: http.MethodGet, wantStatus: http.StatusTeapot, wantHeader: "http://a.test"},
		{name: "unlisted origin", origins: []string{"http://a.test"}, origin: "http://b.test", method: http.MethodGet, wantStatus: http.StatusTeapot, wantHeader: ""},
		{name: "preflight", origins: []string{"*"}, origin: "http://a.test", method: http.MethodOptions, wantStatus: http.StatusNoContent, wantHeader: "*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/stats", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			CORS(tt.origins)(ok).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantHeader, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRequestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := metrics.New()

	router := mux.NewRouter()
	router.Handle("/api/companies/{id}", ok)
	router.Use(RequestLogging(zap.New(core), m))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/companies/COMP_1", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	entries := logs.FilterMessage("HTTP request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/api/companies/{id}", fields["route"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, int64(2), fields["bytes"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/companies/{id}", "418")))
}
