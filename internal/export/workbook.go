package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/oar-pipeline/internal/analytics"
	"github.com/oar-pipeline/internal/model"
)

// Sheet names of the dashboard workbook.
const (
	SheetCompanies  = "Companies"
	SheetFacilities = "Facilities"
	SheetLinks      = "Links"
	SheetSummary    = "Summary"
)

// WriteWorkbook writes the XLSX dashboard: one sheet per table and a
// Summary sheet with per-country and distribution charts.
func WriteWorkbook(path string, tables model.Tables, summary analytics.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := writeSummarySheet(f, summary, headerStyle); err != nil {
		return err
	}

	companyRows := make([][]interface{}, 0, len(tables.Companies))
	for _, c := range tables.Companies {
		companyRows = append(companyRows, []interface{}{
			c.CompanyID, c.CanonicalName, c.CanonicalCountry, model.Deref(c.OriginalID), model.Deref(c.OriginalName),
		})
	}
	if err := writeTableSheet(f, SheetCompanies, companyColumns, companyRows, headerStyle); err != nil {
		return err
	}

	facilityRows := make([][]interface{}, 0, len(tables.Facilities))
	for _, fac := range tables.Facilities {
		facilityRows = append(facilityRows, []interface{}{
			fac.FacilityID, fac.CanonicalName, model.Deref(fac.Address), model.Deref(fac.Country),
			floatCell(fac.Lat), floatCell(fac.Lon), fac.IsClosed,
			model.Deref(fac.Sector), model.Deref(fac.ProcessingActivity), model.Deref(fac.Contributor),
			formatTime(fac.CreatedAt), formatTime(fac.UpdatedAt), model.Deref(fac.OriginalID),
		})
	}
	if err := writeTableSheet(f, SheetFacilities, facilityColumns, facilityRows, headerStyle); err != nil {
		return err
	}

	linkRows := make([][]interface{}, 0, len(tables.Links))
	for _, l := range tables.Links {
		linkRows = append(linkRows, []interface{}{l.CompanyID, l.FacilityID})
	}
	if err := writeTableSheet(f, SheetLinks, linkColumns, linkRows, headerStyle); err != nil {
		return err
	}

	f.SetActiveSheet(0)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// writeTableSheet streams a header and rows into a new sheet.
func writeTableSheet(f *excelize.File, sheet string, header []string, rows [][]interface{}, headerStyle int) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open sheet %s: %w", sheet, err)
	}
	for i := range header {
		if err := sw.SetColWidth(i+1, i+1, 20); err != nil {
			return fmt.Errorf("failed to size columns of %s: %w", sheet, err)
		}
	}

	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", cells); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", sheet, err)
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+2, sheet, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet %s: %w", sheet, err)
	}
	return nil
}

// writeSummarySheet lays out the key figures, the per-country counts and
// the histogram, and adds a column chart for each of the last two.
func writeSummarySheet(f *excelize.File, s analytics.Summary, headerStyle int) error {
	set := func(cell string, v interface{}) error {
		if err := f.SetCellValue(SheetSummary, cell, v); err != nil {
			return fmt.Errorf("failed to write %s!%s: %w", SheetSummary, cell, err)
		}
		return nil
	}

	figures := []struct {
		label string
		value interface{}
	}{
		{"Total companies", s.TotalCompanies},
		{"Total facilities", s.TotalFacilities},
		{"Total links", s.TotalLinks},
		{"Companies with facilities", s.CompaniesWithFacilities},
		{"Average facilities per company", s.FacilitiesPerCompany.Mean},
		{"Median facilities per company", s.FacilitiesPerCompany.Median},
		{"Max facilities per company", s.FacilitiesPerCompany.Max},
		{"Closed facilities", s.ClosedFacilities},
	}
	if err := set("A1", "Metric"); err != nil {
		return err
	}
	if err := set("B1", "Value"); err != nil {
		return err
	}
	for i, fig := range figures {
		if err := set(fmt.Sprintf("A%d", i+2), fig.label); err != nil {
			return err
		}
		if err := set(fmt.Sprintf("B%d", i+2), fig.value); err != nil {
			return err
		}
	}

	// Per-country table in D:F, histogram in H:I.
	for cell, v := range map[string]string{
		"D1": "Country", "E1": "Companies", "F1": "Facilities",
		"H1": "Facilities per company", "I1": "Companies",
	} {
		if err := set(cell, v); err != nil {
			return err
		}
	}

	facByCountry := make(map[string]int, len(s.FacilitiesByCountry))
	for _, c := range s.FacilitiesByCountry {
		facByCountry[c.Country] = c.Count
	}
	for i, c := range s.CompaniesByCountry {
		row := i + 2
		if err := set(fmt.Sprintf("D%d", row), c.Country); err != nil {
			return err
		}
		if err := set(fmt.Sprintf("E%d", row), c.Count); err != nil {
			return err
		}
		if err := set(fmt.Sprintf("F%d", row), facByCountry[c.Country]); err != nil {
			return err
		}
	}
	for i, b := range s.Histogram {
		row := i + 2
		if err := set(fmt.Sprintf("H%d", row), b.Label); err != nil {
			return err
		}
		if err := set(fmt.Sprintf("I%d", row), b.Companies); err != nil {
			return err
		}
	}

	for _, hdr := range []string{"A1", "B1", "D1", "E1", "F1", "H1", "I1"} {
		if err := f.SetCellStyle(SheetSummary, hdr, hdr, headerStyle); err != nil {
			return fmt.Errorf("failed to style %s: %w", hdr, err)
		}
	}
	if err := f.SetColWidth(SheetSummary, "A", "A", 32); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}
	if err := f.SetColWidth(SheetSummary, "D", "I", 16); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}

	if n := len(s.CompaniesByCountry); n > 0 {
		err := f.AddChart(SheetSummary, "K2", &excelize.Chart{
			Type: excelize.Col,
			Series: []excelize.ChartSeries{{
				Name:       fmt.Sprintf("%s!$E$1", SheetSummary),
				Categories: fmt.Sprintf("%s!$D$2:$D$%d", SheetSummary, n+1),
				Values:     fmt.Sprintf("%s!$E$2:$E$%d", SheetSummary, n+1),
			}},
			Title: []excelize.RichTextRun{{Text: "Companies by country"}},
		})
		if err != nil {
			return fmt.Errorf("failed to add country chart: %w", err)
		}
	}

	if n := len(s.Histogram); n > 0 {
		err := f.AddChart(SheetSummary, "K20", &excelize.Chart{
			Type: excelize.Col,
			Series: []excelize.ChartSeries{{
				Name:       fmt.Sprintf("%s!$I$1", SheetSummary),
				Categories: fmt.Sprintf("%s!$H$2:$H$%d", SheetSummary, n+1),
				Values:     fmt.Sprintf("%s!$I$2:$I$%d", SheetSummary, n+1),
			}},
			Title: []excelize.RichTextRun{{Text: "Facilities per company distribution"}},
		})
		if err != nil {
			return fmt.Errorf("failed to add distribution chart: %w", err)
		}
	}
	return nil
}

// floatCell leaves missing coordinates as empty cells.
func floatCell(f *float64) interface{} {
	if f == nil {
		return ""
	}
	return *f
}
