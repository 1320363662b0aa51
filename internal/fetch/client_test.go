package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	import_pkg "github.com/oar-pipeline/internal/import"
	"github.com/oar-pipeline/internal/model"
)

const pageOne = `{
  "type": "FeatureCollection",
  "count": 3,
  "next": "%s/facilities/?format=json&page=2",
  "features": [
    {
      "id": "MA2021001",
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [-7.5898, 33.5731]},
      "properties": {
        "os_id": "MA2021001",
        "name": "Textile Plant 1",
        "address": "Zone Industrielle, Casablanca",
        "country": "Morocco",
        "is_closed": null,
        "created_at": "2021-03-04T10:00:00Z",
        "sector": ["Apparel", "Textiles"],
        "contributors": [{"id": 1201, "name": "Green Textiles SA"}, {"id": 9, "name": "Other"}]
      }
    },
    {
      "id": "TR2021002",
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [28.97, 41.01]},
      "properties": {"os_id": "TR2021002", "name": "Istanbul Mill", "country": "Turkey", "contributors": [{"id": 7, "name": "Anadolu"}]}
    }
  ]
}`

const pageTwo = `{
  "type": "FeatureCollection",
  "count": 3,
  "next": null,
  "features": [
    {
      "id": "ES2021003",
      "type": "Feature",
      "geometry": null,
      "properties": {"os_id": "ES2021003", "name": "Tejidos", "country_name": "Spain", "is_closed": true, "contributors": []}
    }
  ]
}`

func testOptions(baseURL string) Options {
	opts := DefaultOptions()
	opts.BaseURL = baseURL
	opts.Backoff = time.Millisecond
	opts.RateLimit = 0
	opts.MinCompanies = 1
	return opts
}

func TestFetchFacilities(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, pageTwo)
			return
		}
		fmt.Fprintf(w, pageOne, srv.URL)
	}))
	defer srv.Close()

	records, stats, err := NewClient(nil, testOptions(srv.URL)).FetchFacilities(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Stats{Pages: 2, Features: 3, Kept: 2, OutsideCountries: 1, Companies: 1}, stats)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "MA2021001", model.Deref(first.ID))
	require.NotNil(t, first.Lat)
	require.NotNil(t, first.Lon)
	assert.Equal(t, 33.5731, *first.Lat, "lat is the second GeoJSON coordinate")
	assert.Equal(t, -7.5898, *first.Lon)
	assert.Equal(t, "1201", model.Deref(first.CompanyID), "first contributor is the company")
	assert.Equal(t, "Green Textiles SA", model.Deref(first.CompanyName))
	assert.Equal(t, "Apparel, Textiles", model.Deref(first.Sector))
	assert.False(t, first.IsClosed)
	require.NotNil(t, first.CreatedAt)

	second := records[1]
	assert.Equal(t, "Spain", model.Deref(second.Country))
	assert.Nil(t, second.Lat)
	assert.Nil(t, second.CompanyID)
	assert.True(t, second.IsClosed)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, pageTwo)
	}))
	defer srv.Close()

	records, _, err := NewClient(nil, testOptions(srv.URL)).FetchFacilities(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.Retries = 2
	_, _, err := NewClient(nil, opts).FetchFacilities(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, _, err := NewClient(nil, testOptions(srv.URL)).FetchFacilities(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"features": [`)
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.Retries = 0
	_, _, err := NewClient(nil, opts).FetchFacilities(context.Background())
	assert.Error(t, err)
}

func TestFetchHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewClient(nil, testOptions(srv.URL)).FetchFacilities(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteRawCSVRoundTrip(t *testing.T) {
	lat, lon := 33.5731, -7.5898
	created := time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC)
	updated := time.Date(2023, 7, 1, 8, 30, 15, 123456789, time.UTC)
	in := []model.RawRecord{
		{
			ID: model.StringPtr("MA1"), Name: model.StringPtr("Plant, North"), Country: model.StringPtr("Morocco"),
			Lat: &lat, Lon: &lon, IsClosed: true, CreatedAt: &created, UpdatedAt: &updated,
			CompanyID: model.StringPtr("C1"), CompanyName: model.StringPtr("Green \"Eco\" Textiles"),
		},
		{ID: model.StringPtr("MA2"), Name: model.StringPtr("Dye House"), CompanyID: model.StringPtr("C1")},
	}

	path := filepath.Join(t.TempDir(), "raw", SnapshotName(created))
	require.NoError(t, WriteRawCSV(path, in))

	out, stats, err := import_pkg.NewCSVImporter(nil).ReadRecords(path)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, in, out, "timestamps keep sub-second precision")
}

func TestSnapshotName(t *testing.T) {
	assert.Equal(t, "oar_raw_20210304_100000.csv", SnapshotName(time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC)))
}
