package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/oar-pipeline/internal/analytics"
)

// WriteTextReport writes the human readable report of a run to path.
func WriteTextReport(path string, b Bundle, files Files, generated time.Time) error {
	var buf bytes.Buffer
	RenderReport(&buf, b, files, generated)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// RenderReport writes the report body to w.
func RenderReport(w io.Writer, b Bundle, files Files, generated time.Time) {
	s := b.Summary
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(w, "OAR PIPELINE REPORT")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Run: %s\n", b.RunID)
	if b.Source != "" {
		fmt.Fprintf(w, "Source: %s\n", b.Source)
	}
	fmt.Fprintf(w, "Generated: %s\n\n", generated.UTC().Format("2006-01-02 15:04:05 UTC"))

	fmt.Fprintln(w, "GLOBAL STATISTICS")
	fmt.Fprintln(w, strings.Repeat("-", 17))
	fmt.Fprintf(w, "Total companies: %d\n", s.TotalCompanies)
	fmt.Fprintf(w, "Total facilities: %d\n", s.TotalFacilities)
	fmt.Fprintf(w, "Total links: %d\n", s.TotalLinks)
	fmt.Fprintf(w, "Companies with facilities: %d\n", s.CompaniesWithFacilities)
	fmt.Fprintf(w, "Average facilities per company: %.2f\n", s.FacilitiesPerCompany.Mean)
	fmt.Fprintf(w, "Median facilities per company: %.2f\n", s.FacilitiesPerCompany.Median)
	fmt.Fprintf(w, "Max facilities per company: %d\n", s.FacilitiesPerCompany.Max)
	fmt.Fprintf(w, "Closed facilities: %d\n", s.ClosedFacilities)
	fmt.Fprintf(w, "Geolocated facilities: %d\n\n", s.GeolocatedFacilities)

	fmt.Fprintln(w, "BY COUNTRY")
	fmt.Fprintln(w, strings.Repeat("-", 10))
	writeCountryTable(w, s.CompaniesByCountry, s.FacilitiesByCountry)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "DATA QUALITY")
	fmt.Fprintln(w, strings.Repeat("-", 12))
	fmt.Fprintf(w, "Merged companies: %d\n", b.Build.Companies.MergedCompanies)
	fmt.Fprintf(w, "Duplicate company ids: %d\n", b.Build.Companies.DuplicateOriginalIDs)
	fmt.Fprintf(w, "Records without company: %d\n", b.Build.Companies.MissingCompanyID)
	fmt.Fprintf(w, "Collapsed facilities: %d\n", b.Build.Facilities.CollapsedFacilities)
	fmt.Fprintf(w, "Unresolved company references: %d\n", b.Build.Facilities.UnresolvedCompanies)
	fmt.Fprintf(w, "Conflicting links: %d\n", b.Build.Facilities.ConflictingLinks)
	fmt.Fprintf(w, "Dropped links: %d\n", b.Reconcile.Dropped())
	if b.Validation.OK() {
		fmt.Fprintln(w, "Relational integrity: OK")
	} else {
		fmt.Fprintf(w, "Relational integrity: %s\n", b.Validation)
	}
	fmt.Fprintln(w)

	if b.ClassifyStats.Companies > 0 {
		fmt.Fprintln(w, "CLASSIFICATION")
		fmt.Fprintln(w, strings.Repeat("-", 14))
		fmt.Fprintf(w, "Companies with keyword matches: %d (%.1f%%)\n\n",
			b.ClassifyStats.Matched, b.ClassifyStats.MatchRate*100)
	}

	fmt.Fprintln(w, "FILES")
	fmt.Fprintln(w, strings.Repeat("-", 5))
	for _, f := range []string{
		files.Tables.Companies, files.Tables.Facilities, files.Tables.Links,
		files.Combined, files.Summary, files.Classification, files.Workbook,
	} {
		if f != "" {
			fmt.Fprintf(w, "%s\n", filepath.Base(f))
		}
	}
}

// writeCountryTable prints companies and facilities per country. Names are
// padded by display width so accented and wide names stay aligned.
func writeCountryTable(w io.Writer, companies, facilities []analytics.CountryCount) {
	facByCountry := make(map[string]int, len(facilities))
	for _, c := range facilities {
		facByCountry[c.Country] = c.Count
	}

	width := runewidth.StringWidth("Country")
	for _, c := range companies {
		width = max(width, runewidth.StringWidth(c.Country))
	}

	fmt.Fprintf(w, "%s  %10s  %10s\n", runewidth.FillRight("Country", width), "Companies", "Facilities")
	for _, c := range companies {
		fmt.Fprintf(w, "%s  %10d  %10d\n", runewidth.FillRight(c.Country, width), c.Count, facByCountry[c.Country])
	}
}
