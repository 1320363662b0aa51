package fetch

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	import_pkg "github.com/oar-pipeline/internal/import"
	"github.com/oar-pipeline/internal/model"
)

// WriteRawCSV writes records to path in the raw registry column layout, so
// the snapshot can be re-read by the CSV importer.
func WriteRawCSV(path string, records []model.RawRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(import_pkg.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			model.Deref(r.ID),
			model.Deref(r.Name),
			model.Deref(r.Address),
			model.Deref(r.Country),
			formatFloat(r.Lat),
			formatFloat(r.Lon),
			strconv.FormatBool(r.IsClosed),
			formatTime(r.CreatedAt),
			formatTime(r.UpdatedAt),
			model.Deref(r.Contributor),
			model.Deref(r.Sector),
			model.Deref(r.ProcessingActivity),
			model.Deref(r.CompanyName),
			model.Deref(r.CompanyID),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return file.Close()
}

// SnapshotName returns the file name of a raw snapshot taken at t.
func SnapshotName(t time.Time) string {
	return fmt.Sprintf("oar_raw_%s.csv", t.UTC().Format("20060102_150405"))
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
