package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oar-pipeline/internal/model"
)

// File names of the relational tables.
const (
	CompaniesFile  = "companies.csv"
	FacilitiesFile = "facilities.csv"
	LinksFile      = "company_facilities_links.csv"

	CleanedCompaniesFile  = "companies_cleaned.csv"
	CleanedFacilitiesFile = "facilities_cleaned.csv"
)

var (
	companyColumns = []string{"company_id", "company_name", "country", "original_company_id", "original_name"}

	facilityColumns = []string{
		"facility_id", "facility_name", "address", "country", "lat", "lon", "is_closed",
		"sector", "processing_activity", "contributor", "created_at", "updated_at", "original_id",
	}

	linkColumns = []string{"company_id", "facility_id"}
)

// TablePaths are the files written by WriteTables.
type TablePaths struct {
	Companies  string `json:"companies"`
	Facilities string `json:"facilities"`
	Links      string `json:"links"`
}

// WriteTables writes the three relational tables as UTF-8 CSV into dir.
func WriteTables(dir string, tables model.Tables) (TablePaths, error) {
	paths := TablePaths{
		Companies:  filepath.Join(dir, CompaniesFile),
		Facilities: filepath.Join(dir, FacilitiesFile),
		Links:      filepath.Join(dir, LinksFile),
	}

	companyRows := make([][]string, 0, len(tables.Companies))
	for _, c := range tables.Companies {
		companyRows = append(companyRows, []string{
			c.CompanyID, c.CanonicalName, c.CanonicalCountry,
			model.Deref(c.OriginalID), model.Deref(c.OriginalName),
		})
	}
	if err := writeCSV(paths.Companies, companyColumns, companyRows); err != nil {
		return paths, err
	}

	facilityRows := make([][]string, 0, len(tables.Facilities))
	for _, f := range tables.Facilities {
		facilityRows = append(facilityRows, []string{
			f.FacilityID, f.CanonicalName, model.Deref(f.Address), model.Deref(f.Country),
			formatFloat(f.Lat), formatFloat(f.Lon), strconv.FormatBool(f.IsClosed),
			model.Deref(f.Sector), model.Deref(f.ProcessingActivity), model.Deref(f.Contributor),
			formatTime(f.CreatedAt), formatTime(f.UpdatedAt), model.Deref(f.OriginalID),
		})
	}
	if err := writeCSV(paths.Facilities, facilityColumns, facilityRows); err != nil {
		return paths, err
	}

	linkRows := make([][]string, 0, len(tables.Links))
	for _, l := range tables.Links {
		linkRows = append(linkRows, []string{l.CompanyID, l.FacilityID})
	}
	if err := writeCSV(paths.Links, linkColumns, linkRows); err != nil {
		return paths, err
	}
	return paths, nil
}

// CleanedPaths are the files written by WriteCleaned.
type CleanedPaths struct {
	Companies  string `json:"companies"`
	Facilities string `json:"facilities"`
}

// WriteCleaned writes the intermediate cleaned tables into dir: the company
// table and a facility table carrying its resolved company, one row per
// facility.
func WriteCleaned(dir string, tables model.Tables) (CleanedPaths, error) {
	paths := CleanedPaths{
		Companies:  filepath.Join(dir, CleanedCompaniesFile),
		Facilities: filepath.Join(dir, CleanedFacilitiesFile),
	}

	companyRows := make([][]string, 0, len(tables.Companies))
	for _, c := range tables.Companies {
		companyRows = append(companyRows, []string{
			c.CompanyID, c.CanonicalName, c.CanonicalCountry,
			model.Deref(c.OriginalID), model.Deref(c.OriginalName),
		})
	}
	if err := writeCSV(paths.Companies, companyColumns, companyRows); err != nil {
		return paths, err
	}

	header := append(append([]string(nil), facilityColumns...), "company_id", "company_name")
	facilityRows := make([][]string, 0, len(tables.Facilities))
	for _, f := range tables.Facilities {
		facilityRows = append(facilityRows, []string{
			f.FacilityID, f.CanonicalName, model.Deref(f.Address), model.Deref(f.Country),
			formatFloat(f.Lat), formatFloat(f.Lon), strconv.FormatBool(f.IsClosed),
			model.Deref(f.Sector), model.Deref(f.ProcessingActivity), model.Deref(f.Contributor),
			formatTime(f.CreatedAt), formatTime(f.UpdatedAt), model.Deref(f.OriginalID),
			model.Deref(f.CompanyID), model.Deref(f.CompanyName),
		})
	}
	if err := writeCSV(paths.Facilities, header, facilityRows); err != nil {
		return paths, err
	}
	return paths, nil
}

// ReadTables reads the relational tables written by WriteTables from dir.
// Facilities get their company fields restored from the links.
func ReadTables(dir string) (model.Tables, error) {
	var tables model.Tables

	err := readCSV(filepath.Join(dir, CompaniesFile), companyColumns, func(get func(string) string) {
		tables.Companies = append(tables.Companies, model.Company{
			CompanyID:        get("company_id"),
			CanonicalName:    get("company_name"),
			CanonicalCountry: get("country"),
			OriginalID:       model.StringPtr(get("original_company_id")),
			OriginalName:     model.StringPtr(get("original_name")),
		})
	})
	if err != nil {
		return tables, err
	}

	err = readCSV(filepath.Join(dir, FacilitiesFile), facilityColumns, func(get func(string) string) {
		tables.Facilities = append(tables.Facilities, model.Facility{
			FacilityID:         get("facility_id"),
			CanonicalName:      get("facility_name"),
			Address:            model.StringPtr(get("address")),
			Country:            model.StringPtr(get("country")),
			Lat:                parseFloat(get("lat")),
			Lon:                parseFloat(get("lon")),
			IsClosed:           get("is_closed") == "true",
			Sector:             model.StringPtr(get("sector")),
			ProcessingActivity: model.StringPtr(get("processing_activity")),
			Contributor:        model.StringPtr(get("contributor")),
			CreatedAt:          parseTime(get("created_at")),
			UpdatedAt:          parseTime(get("updated_at")),
			OriginalID:         model.StringPtr(get("original_id")),
		})
	})
	if err != nil {
		return tables, err
	}

	err = readCSV(filepath.Join(dir, LinksFile), linkColumns, func(get func(string) string) {
		tables.Links = append(tables.Links, model.Link{
			CompanyID:  get("company_id"),
			FacilityID: get("facility_id"),
		})
	})
	if err != nil {
		return tables, err
	}

	AttachCompanies(&tables)
	return tables, nil
}

// AttachCompanies sets the company fields of every linked facility.
func AttachCompanies(tables *model.Tables) {
	names := make(map[string]string, len(tables.Companies))
	for _, c := range tables.Companies {
		names[c.CompanyID] = c.CanonicalName
	}
	owner := make(map[string]string, len(tables.Links))
	for _, l := range tables.Links {
		if _, ok := owner[l.FacilityID]; !ok {
			owner[l.FacilityID] = l.CompanyID
		}
	}
	for i := range tables.Facilities {
		f := &tables.Facilities[i]
		id, ok := owner[f.FacilityID]
		if !ok {
			continue
		}
		f.CompanyID = model.StringPtr(id)
		if name, ok := names[id]; ok {
			f.CompanyName = model.StringPtr(name)
		}
	}
}

func writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}

// readCSV calls fn once per data row with a getter resolving column names
// through the header. Every column in want must be present.
func readCSV(path string, want []string, fn func(get func(string) string)) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s is empty", path)
		}
		return fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range want {
		if _, ok := cols[c]; !ok {
			return fmt.Errorf("%s: missing column %q", path, c)
		}
	}

	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
		fn(func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		})
	}
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
