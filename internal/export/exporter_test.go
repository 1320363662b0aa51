package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/oar-pipeline/internal/analytics"
	"github.com/oar-pipeline/internal/classify"
	"github.com/oar-pipeline/internal/model"
	"github.com/oar-pipeline/internal/validation"
)

var fixedTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func sampleTables() model.Tables {
	lat, lon := 33.5731, -7.5898
	created := time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC)
	return model.Tables{
		Companies: []model.Company{
			{CompanyID: "COMP_0000000000000001", CanonicalName: "Green Textiles", CanonicalCountry: "Morocco",
				OriginalID: model.StringPtr("C1"), OriginalName: model.StringPtr("Green Textiles SA")},
			{CompanyID: "COMP_0000000000000002", CanonicalName: "Société Générale", CanonicalCountry: "France"},
		},
		Facilities: []model.Facility{
			{FacilityID: "FAC_0000000000000001", CanonicalName: "Textile Plant, North", Country: model.StringPtr("Morocco"),
				Lat: &lat, Lon: &lon, IsClosed: true, CreatedAt: &created, OriginalID: model.StringPtr("R1")},
			{FacilityID: "FAC_0000000000000002", CanonicalName: "Dye House"},
		},
		Links: []model.Link{
			{CompanyID: "COMP_0000000000000001", FacilityID: "FAC_0000000000000001"},
		},
	}
}

func sampleBundle() Bundle {
	tables := sampleTables()
	c, _ := classify.NewClassifier(nil, classify.DefaultKeywords)
	results, stats := c.Classify(tables.Companies)
	return Bundle{
		RunID:          "run-1",
		Source:         "raw.csv",
		Tables:         tables,
		Summary:        analytics.Summarize(tables),
		Validation:     validation.NewValidator(nil).Validate(tables),
		Classification: results,
		ClassifyStats:  stats,
	}
}

func TestTablesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := sampleTables()

	paths, err := WriteTables(dir, in)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, LinksFile), paths.Links)

	out, err := ReadTables(dir)
	require.NoError(t, err)

	assert.Equal(t, in.Companies, out.Companies)
	assert.Equal(t, in.Links, out.Links)
	require.Len(t, out.Facilities, 2)

	want := in.Facilities[0]
	want.CompanyID = model.StringPtr("COMP_0000000000000001")
	want.CompanyName = model.StringPtr("Green Textiles")
	assert.Equal(t, want, out.Facilities[0], "company fields are restored from links")
	assert.Equal(t, in.Facilities[1], out.Facilities[1])
}

func TestTablesHeaders(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteTables(dir, model.Tables{})
	require.NoError(t, err)

	for file, header := range map[string]string{
		CompaniesFile:  "company_id,company_name,country,original_company_id,original_name",
		FacilitiesFile: "facility_id,facility_name,address,country,lat,lon,is_closed,sector,processing_activity,contributor,created_at,updated_at,original_id",
		LinksFile:      "company_id,facility_id",
	} {
		data, err := os.ReadFile(filepath.Join(dir, file))
		require.NoError(t, err)
		assert.Equal(t, header+"\n", string(data), file)
	}
}

func TestReadTablesErrors(t *testing.T) {
	_, err := ReadTables(t.TempDir())
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CompaniesFile), []byte("company_id,company_name\n"), 0o644))
	_, err = ReadTables(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestWriteCleaned(t *testing.T) {
	tables := sampleTables()
	AttachCompanies(&tables)

	paths, err := WriteCleaned(t.TempDir(), tables)
	require.NoError(t, err)

	data, err := os.ReadFile(paths.Companies)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "company_id,company_name,country,original_company_id,original_name", lines[0])

	data, err = os.ReadFile(paths.Facilities)
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[0], ",original_id,company_id,company_name"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ",R1,COMP_0000000000000001,Green Textiles"), lines[1])
	assert.True(t, strings.HasSuffix(lines[2], ",,,"), "unlinked facility has no company: %s", lines[2])
}

func TestExport(t *testing.T) {
	root := t.TempDir()
	dirs := Dirs{
		Cleaned:    filepath.Join(root, "cleaned"),
		Relational: filepath.Join(root, "relational"),
		Outputs:    filepath.Join(root, "outputs"),
		Final:      filepath.Join(root, "final"),
	}

	files, err := NewExporter(nil, dirs).WithClock(func() time.Time { return fixedTime }).Export(sampleBundle())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dirs.Final, "combined_data_20240506_070809.json"), files.Combined)
	assert.Equal(t, filepath.Join(dirs.Final, "summary_statistics_20240506_070809.json"), files.Summary)
	assert.Equal(t, filepath.Join(dirs.Final, "report_20240506_070809.txt"), files.Report)
	require.NotNil(t, files.Cleaned)
	assert.Equal(t, filepath.Join(dirs.Cleaned, CleanedCompaniesFile), files.Cleaned.Companies)
	for _, p := range []string{files.Cleaned.Facilities, files.Tables.Companies, files.Classification, files.Workbook} {
		assert.FileExists(t, p)
	}

	data, err := os.ReadFile(files.Combined)
	require.NoError(t, err)
	var combined Combined
	require.NoError(t, json.Unmarshal(data, &combined))
	assert.Equal(t, "run-1", combined.Metadata.RunID)
	assert.Equal(t, 2, combined.Metadata.TotalCompanies)
	assert.Equal(t, fixedTime, combined.Metadata.ExportDate)
	assert.Len(t, combined.Links, 1)

	data, err = os.ReadFile(files.Summary)
	require.NoError(t, err)
	var summary SummaryDocument
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 2, summary.Summary.TotalFacilities)
	assert.Equal(t, 1, summary.Validation[validation.OrphanedCompany])
	assert.Equal(t, 1, summary.Classification.Matched)

	data, err = os.ReadFile(files.Classification)
	require.NoError(t, err)
	assert.Contains(t, string(data), "COMP_0000000000000001,Green Textiles,true,green,1")
}

func TestExportEmptyTables(t *testing.T) {
	root := t.TempDir()
	dirs := Dirs{Relational: root, Outputs: root, Final: root}

	files, err := NewExporter(nil, dirs).WithClock(func() time.Time { return fixedTime }).
		Export(Bundle{RunID: "empty", Summary: analytics.Summarize(model.Tables{})})
	require.NoError(t, err)
	assert.Empty(t, files.Classification)
	assert.Nil(t, files.Cleaned, "no cleaned dir configured")

	data, err := os.ReadFile(files.Combined)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"companies": []`)
}

func TestRenderReport(t *testing.T) {
	var buf bytes.Buffer
	b := sampleBundle()
	RenderReport(&buf, b, Files{Combined: "/tmp/final/combined.json"}, fixedTime)
	out := buf.String()

	assert.Contains(t, out, "Run: run-1")
	assert.Contains(t, out, "Generated: 2024-05-06 07:08:09 UTC")
	assert.Contains(t, out, "Total companies: 2")
	assert.Contains(t, out, "Relational integrity: orphaned companies=1")
	assert.Contains(t, out, "combined.json")
	assert.NotContains(t, out, "/tmp/final")

	// Country rows line up on display width.
	var rows []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Morocco") || strings.HasPrefix(line, "France") || strings.HasPrefix(line, "Country") {
			rows = append(rows, line)
		}
	}
	require.Len(t, rows, 3)
	assert.Equal(t, len(rows[0]), len(rows[1]))
	assert.Equal(t, len(rows[1]), len(rows[2]))
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.xlsx")
	tables := sampleTables()
	require.NoError(t, WriteWorkbook(path, tables, analytics.Summarize(tables)))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetCompanies, SheetFacilities, SheetLinks}, f.GetSheetList())

	rows, err := f.GetRows(SheetCompanies)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, companyColumns, rows[0])
	assert.Equal(t, "Green Textiles", rows[1][1])

	total, err := f.GetCellValue(SheetSummary, "B2")
	require.NoError(t, err)
	assert.Equal(t, "2", total)

	country, err := f.GetCellValue(SheetSummary, "D2")
	require.NoError(t, err)
	assert.Contains(t, []string{"France", "Morocco"}, country)
}
