// Package export writes the outputs of a run: relational CSV tables, the
// combined and summary JSON documents, the classification CSV, a plain
// text report and an XLSX dashboard.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oar-pipeline/internal/analytics"
	"github.com/oar-pipeline/internal/classify"
	"github.com/oar-pipeline/internal/entity"
	"github.com/oar-pipeline/internal/model"
	"github.com/oar-pipeline/internal/validation"
)

// Bundle is everything a finished run hands to the exporter.
type Bundle struct {
	RunID          string
	Source         string
	Tables         model.Tables
	Summary        analytics.Summary
	Validation     validation.Report
	Reconcile      validation.ReconcileStats
	Build          entity.BuildStats
	Classification []classify.Result
	ClassifyStats  classify.Stats
}

// Dirs are the output locations used by the exporter. Cleaned is optional.
type Dirs struct {
	Cleaned    string
	Relational string
	Outputs    string
	Final      string
}

// Files lists every file written by Export.
type Files struct {
	Cleaned        *CleanedPaths `json:"cleaned,omitempty"`
	Tables         TablePaths    `json:"tables"`
	Combined       string        `json:"combined"`
	Summary        string        `json:"summary"`
	Classification string        `json:"classification,omitempty"`
	Report         string        `json:"report"`
	Workbook       string        `json:"workbook,omitempty"`
}

// Exporter writes run outputs.
type Exporter struct {
	dirs     Dirs
	log      *zap.Logger
	now      func() time.Time
	workbook bool
}

// NewExporter creates an exporter writing below dirs.
func NewExporter(log *zap.Logger, dirs Dirs) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{dirs: dirs, log: log, now: time.Now, workbook: true}
}

// WithClock replaces the time source used for timestamps and file names.
func (e *Exporter) WithClock(now func() time.Time) *Exporter {
	e.now = now
	return e
}

// WithoutWorkbook disables the XLSX dashboard.
func (e *Exporter) WithoutWorkbook() *Exporter {
	e.workbook = false
	return e
}

// Export writes every output of b and returns their paths.
func (e *Exporter) Export(b Bundle) (Files, error) {
	var files Files
	generated := e.now().UTC()
	stamp := generated.Format("20060102_150405")

	if e.dirs.Cleaned != "" {
		cleaned, err := WriteCleaned(e.dirs.Cleaned, b.Tables)
		if err != nil {
			return files, fmt.Errorf("failed to write cleaned tables: %w", err)
		}
		files.Cleaned = &cleaned
	}

	paths, err := WriteTables(e.dirs.Relational, b.Tables)
	if err != nil {
		return files, fmt.Errorf("failed to write tables: %w", err)
	}
	files.Tables = paths

	if b.Classification != nil {
		files.Classification = filepath.Join(e.dirs.Outputs, "classification_results.csv")
		if err := WriteClassificationCSV(files.Classification, b.Classification); err != nil {
			return files, err
		}
	}

	if e.workbook {
		files.Workbook = filepath.Join(e.dirs.Outputs, fmt.Sprintf("dashboard_%s.xlsx", stamp))
		if err := WriteWorkbook(files.Workbook, b.Tables, b.Summary); err != nil {
			return files, err
		}
	}

	files.Combined = filepath.Join(e.dirs.Final, fmt.Sprintf("combined_data_%s.json", stamp))
	if err := writeJSON(files.Combined, NewCombined(b, generated)); err != nil {
		return files, err
	}

	files.Summary = filepath.Join(e.dirs.Final, fmt.Sprintf("summary_statistics_%s.json", stamp))
	if err := writeJSON(files.Summary, NewSummaryDocument(b, generated)); err != nil {
		return files, err
	}

	files.Report = filepath.Join(e.dirs.Final, fmt.Sprintf("report_%s.txt", stamp))
	if err := WriteTextReport(files.Report, b, files, generated); err != nil {
		return files, err
	}

	e.log.Info("Exported run",
		zap.String("run_id", b.RunID),
		zap.String("combined", files.Combined),
		zap.String("report", files.Report),
		zap.String("workbook", files.Workbook))
	return files, nil
}

// Metadata heads the combined document.
type Metadata struct {
	RunID           string    `json:"run_id"`
	Source          string    `json:"source,omitempty"`
	ExportDate      time.Time `json:"export_date"`
	TotalCompanies  int       `json:"total_companies"`
	TotalFacilities int       `json:"total_facilities"`
	TotalLinks      int       `json:"total_links"`
}

// Combined is the single-document export of all three tables.
type Combined struct {
	Metadata   Metadata         `json:"metadata"`
	Companies  []model.Company  `json:"companies"`
	Facilities []model.Facility `json:"facilities"`
	Links      []model.Link     `json:"links"`
}

// NewCombined builds the combined document of b.
func NewCombined(b Bundle, generated time.Time) Combined {
	return Combined{
		Metadata: Metadata{
			RunID:           b.RunID,
			Source:          b.Source,
			ExportDate:      generated,
			TotalCompanies:  len(b.Tables.Companies),
			TotalFacilities: len(b.Tables.Facilities),
			TotalLinks:      len(b.Tables.Links),
		},
		Companies:  nonNil(b.Tables.Companies),
		Facilities: nonNil(b.Tables.Facilities),
		Links:      nonNil(b.Tables.Links),
	}
}

// SummaryDocument is the summary statistics export.
type SummaryDocument struct {
	RunID          string                    `json:"run_id"`
	ExportDate     time.Time                 `json:"export_date"`
	Summary        analytics.Summary         `json:"summary"`
	Build          entity.BuildStats         `json:"build"`
	Validation     map[string]int            `json:"validation"`
	Reconcile      validation.ReconcileStats `json:"reconcile"`
	Classification classify.Stats            `json:"classification"`
}

// NewSummaryDocument builds the summary document of b.
func NewSummaryDocument(b Bundle, generated time.Time) SummaryDocument {
	return SummaryDocument{
		RunID:          b.RunID,
		ExportDate:     generated,
		Summary:        b.Summary,
		Build:          b.Build,
		Validation:     b.Validation.Counts(),
		Reconcile:      b.Reconcile,
		Classification: b.ClassifyStats,
	}
}

// WriteClassificationCSV writes one row per classified company.
func WriteClassificationCSV(path string, results []classify.Result) error {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.CompanyID,
			r.CompanyName,
			strconv.FormatBool(r.HasMatch),
			strings.Join(r.MatchedKeywords, ", "),
			strconv.Itoa(r.MatchCount),
		})
	}
	header := []string{"company_id", "company_name", "has_match", "matched_keywords", "match_count"}
	if err := writeCSV(path, header, rows); err != nil {
		return fmt.Errorf("failed to write classification: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
