package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	import_pkg "github.com/oar-pipeline/internal/import"
	"github.com/oar-pipeline/internal/model"
	"github.com/oar-pipeline/internal/normalize"
)

// permanentError stops the retry loop.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// BulkURL returns the address of the bulk CSV export.
func (c *Client) BulkURL() string {
	if c.opts.BulkURL != "" {
		return c.opts.BulkURL
	}
	return strings.TrimRight(c.opts.BaseURL, "/") + "/facilities.csv"
}

// DownloadBulk streams the bulk CSV export through importer and returns the
// records located in the configured countries.
func (c *Client) DownloadBulk(ctx context.Context, importer *import_pkg.CSVImporter) ([]model.RawRecord, Stats, error) {
	if importer == nil {
		importer = import_pkg.NewCSVImporter(c.log)
	}

	var all []model.RawRecord
	err := c.get(ctx, c.BulkURL(), "text/csv", func(body io.Reader) error {
		records, _, err := importer.Read(body)
		if errors.Is(err, import_pkg.ErrNoRecords) {
			return &permanentError{err: err}
		}
		if err != nil {
			return fmt.Errorf("failed to read bulk export: %w", err)
		}
		all = records
		return nil
	})
	if err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{Pages: 1, Features: len(all)}
	companies := make(map[string]bool)
	records := make([]model.RawRecord, 0, len(all))
	for _, rec := range all {
		if len(c.countries) > 0 && !c.countries[normalize.Country(model.Deref(rec.Country))] {
			stats.OutsideCountries++
			continue
		}
		if rec.CompanyID != nil {
			companies[*rec.CompanyID] = true
		}
		records = append(records, rec)
	}
	stats.Kept = len(records)
	stats.Companies = len(companies)

	c.log.Info("Downloaded bulk export",
		zap.String("url", c.BulkURL()),
		zap.Int("rows", stats.Features),
		zap.Int("kept", stats.Kept),
		zap.Int("companies", stats.Companies))
	return records, stats, nil
}
