// Package analytics computes the summary statistics reported for a run.
package analytics

import (
	"math"
	"sort"

	"github.com/oar-pipeline/internal/model"
	"github.com/oar-pipeline/internal/normalize"
)

// Summary holds the statistics of one set of tables. Distribution figures
// cover companies with at least one linked facility.
type Summary struct {
	TotalCompanies          int            `json:"total_companies"`
	TotalFacilities         int            `json:"total_facilities"`
	TotalLinks              int            `json:"total_links"`
	CompaniesWithFacilities int            `json:"companies_with_facilities"`
	ClosedFacilities        int            `json:"closed_facilities"`
	GeolocatedFacilities    int            `json:"geolocated_facilities"`
	FacilitiesPerCompany    Distribution   `json:"facilities_per_company"`
	Histogram               []Bucket       `json:"facilities_per_company_histogram"`
	CompaniesByCountry      []CountryCount `json:"companies_by_country"`
	FacilitiesByCountry     []CountryCount `json:"facilities_by_country"`
	FacilitiesBySector      []SectorCount  `json:"facilities_by_sector"`
}

// Distribution is the box-plot description of a set of counts.
type Distribution struct {
	Count  int     `json:"count"`
	Min    int     `json:"min"`
	Max    int     `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
}

// Bucket counts companies whose facility count falls in [Low, High].
// High is 0 for the open-ended last bucket.
type Bucket struct {
	Label     string `json:"label"`
	Low       int    `json:"low"`
	High      int    `json:"high"`
	Companies int    `json:"companies"`
}

// CountryCount is one row of a per-country breakdown.
type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// SectorCount is one row of the per-sector breakdown.
type SectorCount struct {
	Sector string `json:"sector"`
	Count  int    `json:"count"`
}

var histogramBuckets = []Bucket{
	{Label: "1", Low: 1, High: 1},
	{Label: "2", Low: 2, High: 2},
	{Label: "3-5", Low: 3, High: 5},
	{Label: "6-10", Low: 6, High: 10},
	{Label: "11-20", Low: 11, High: 20},
	{Label: "21-50", Low: 21, High: 50},
	{Label: "51+", Low: 51},
}

// Summarize computes the statistics of tables. Breakdowns are ordered by
// descending count, then name.
func Summarize(tables model.Tables) Summary {
	s := Summary{
		TotalCompanies:  len(tables.Companies),
		TotalFacilities: len(tables.Facilities),
		TotalLinks:      len(tables.Links),
	}

	perCompany := make(map[string]int)
	for _, l := range tables.Links {
		perCompany[l.CompanyID]++
	}
	s.CompaniesWithFacilities = len(perCompany)

	counts := make([]int, 0, len(perCompany))
	for _, n := range perCompany {
		counts = append(counts, n)
	}
	s.FacilitiesPerCompany = Describe(counts)
	s.Histogram = histogram(counts)

	byCountry := make(map[string]int)
	for _, c := range tables.Companies {
		byCountry[c.CanonicalCountry]++
	}
	s.CompaniesByCountry = countryCounts(byCountry)

	facCountry := make(map[string]int)
	bySector := make(map[string]int)
	for _, f := range tables.Facilities {
		if f.IsClosed {
			s.ClosedFacilities++
		}
		if f.HasCoordinates() {
			s.GeolocatedFacilities++
		}
		facCountry[normalize.Country(model.Deref(f.Country))]++

		sector := model.Deref(f.Sector)
		if sector == "" {
			sector = normalize.UnknownCompany
		}
		bySector[sector]++
	}
	s.FacilitiesByCountry = countryCounts(facCountry)

	for _, kv := range sortedCounts(bySector) {
		s.FacilitiesBySector = append(s.FacilitiesBySector, SectorCount{Sector: kv.key, Count: kv.n})
	}
	return s
}

// Describe returns the distribution of counts. Quartiles use linear
// interpolation between closest ranks.
func Describe(counts []int) Distribution {
	if len(counts) == 0 {
		return Distribution{}
	}

	sorted := append([]int(nil), counts...)
	sort.Ints(sorted)

	total := 0
	for _, n := range sorted {
		total += n
	}

	return Distribution{
		Count:  len(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   float64(total) / float64(len(sorted)),
		Median: quantile(sorted, 0.5),
		Q1:     quantile(sorted, 0.25),
		Q3:     quantile(sorted, 0.75),
	}
}

func quantile(sorted []int, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return float64(sorted[lo]) + frac*float64(sorted[hi]-sorted[lo])
}

func histogram(counts []int) []Bucket {
	buckets := append([]Bucket(nil), histogramBuckets...)
	for _, n := range counts {
		for i := range buckets {
			if n >= buckets[i].Low && (buckets[i].High == 0 || n <= buckets[i].High) {
				buckets[i].Companies++
				break
			}
		}
	}
	return buckets
}

type keyCount struct {
	key string
	n   int
}

func sortedCounts(m map[string]int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, n := range m {
		out = append(out, keyCount{k, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].key < out[j].key
	})
	return out
}

func countryCounts(m map[string]int) []CountryCount {
	var out []CountryCount
	for _, kv := range sortedCounts(m) {
		out = append(out, CountryCount{Country: kv.key, Count: kv.n})
	}
	return out
}
