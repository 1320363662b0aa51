// Package import_pkg reads raw registry exports into model.RawRecord values.
package import_pkg

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/oar-pipeline/internal/model"
)

var validate = validator.New()

// ImportStats counts what the importer skipped or repaired.
type ImportStats struct {
	Rows               int `json:"rows"`
	Records            int `json:"records"`
	MalformedRows      int `json:"malformed_rows"`
	InvalidCoordinates int `json:"invalid_coordinates"`
}

// CSVImporter reads raw registry CSV files
type CSVImporter struct {
	log *zap.Logger
}

// NewCSVImporter creates a new CSV importer
func NewCSVImporter(log *zap.Logger) *CSVImporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &CSVImporter{log: log}
}

// ReadRecords reads every record of the CSV file at path.
func (ci *CSVImporter) ReadRecords(path string) ([]model.RawRecord, ImportStats, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, ImportStats{}, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	records, stats, err := ci.Read(file)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to import %s: %w", path, err)
	}
	return records, stats, nil
}

// Read parses a raw registry CSV stream. Rows that cannot be parsed are
// skipped and counted; out-of-range coordinates are cleared and counted.
func (ci *CSVImporter) Read(r io.Reader) ([]model.RawRecord, ImportStats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var stats ImportStats

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, stats, ErrNoRecords
		}
		return nil, stats, fmt.Errorf("failed to read header: %w", err)
	}
	cols, err := newColumnMap(header)
	if err != nil {
		return nil, stats, err
	}

	var records []model.RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		stats.Rows++
		if err != nil {
			stats.MalformedRows++
			ci.log.Warn("Skipping malformed CSV row", zap.Int("row", stats.Rows), zap.Error(err))
			continue
		}

		rec := cols.mapRecord(row)
		if ci.clearInvalidCoordinates(&rec) {
			stats.InvalidCoordinates++
		}
		records = append(records, rec)

		if len(records)%10000 == 0 {
			ci.log.Debug("Imported records", zap.Int("records", len(records)))
		}
	}
	stats.Records = len(records)

	ci.log.Info("Import complete",
		zap.Int("records", stats.Records),
		zap.Int("malformed_rows", stats.MalformedRows),
		zap.Int("invalid_coordinates", stats.InvalidCoordinates))

	if len(records) == 0 {
		return nil, stats, ErrNoRecords
	}
	return records, stats, nil
}

// clearInvalidCoordinates drops the coordinate pair of rec when either
// value is out of range, and reports whether it did.
func (ci *CSVImporter) clearInvalidCoordinates(rec *model.RawRecord) bool {
	err := ValidateRecord(*rec)
	if err == nil {
		return false
	}

	ci.log.Warn("Clearing out-of-range coordinates",
		zap.String("id", model.Deref(rec.ID)),
		zap.Error(err))
	rec.Lat, rec.Lon = nil, nil
	return true
}

// ValidateRecord checks field constraints of a raw record.
func ValidateRecord(rec model.RawRecord) error {
	err := validate.Struct(rec)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%s fails %q constraint (value %v)", fe.Field(), fe.Tag(), fe.Value())
	}
	return err
}
