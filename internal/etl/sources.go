package etl

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/oar-pipeline/internal/fetch"
	import_pkg "github.com/oar-pipeline/internal/import"
	"github.com/oar-pipeline/internal/model"
)

// Source loads the raw records of one run.
type Source interface {
	// Name identifies the source in logs and the run audit trail.
	Name() string
	Load(ctx context.Context) ([]model.RawRecord, error)
}

// FileSource reads a raw registry CSV file.
type FileSource struct {
	Path     string
	Importer *import_pkg.CSVImporter
}

// NewFileSource creates a source reading the CSV file at path.
func NewFileSource(path string, log *zap.Logger) *FileSource {
	return &FileSource{Path: path, Importer: import_pkg.NewCSVImporter(log)}
}

// Name returns "file:<path>".
func (s *FileSource) Name() string {
	return "file:" + s.Path
}

// Load imports the file. Context cancellation is checked once the file has
// been read.
func (s *FileSource) Load(ctx context.Context) ([]model.RawRecord, error) {
	records, _, err := s.Importer.ReadRecords(s.Path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// FetchSource downloads records from the registry API and, when
// SnapshotDir is set, keeps a raw CSV snapshot of what was fetched.
type FetchSource struct {
	Client      *fetch.Client
	SnapshotDir string
	log         *zap.Logger
	now         func() time.Time
}

// NewFetchSource creates a source backed by client.
func NewFetchSource(client *fetch.Client, snapshotDir string, log *zap.Logger) *FetchSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &FetchSource{Client: client, SnapshotDir: snapshotDir, log: log, now: time.Now}
}

// Name returns "api".
func (s *FetchSource) Name() string {
	return "api"
}

// Load fetches every facility of the configured countries.
func (s *FetchSource) Load(ctx context.Context) ([]model.RawRecord, error) {
	records, stats, err := s.Client.FetchFacilities(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, import_pkg.ErrNoRecords
	}

	if s.SnapshotDir != "" {
		path := filepath.Join(s.SnapshotDir, fetch.SnapshotName(s.now()))
		if err := fetch.WriteRawCSV(path, records); err != nil {
			return nil, fmt.Errorf("failed to write snapshot: %w", err)
		}
		s.log.Info("Saved raw snapshot",
			zap.String("path", path),
			zap.Int("records", len(records)),
			zap.Int("companies", stats.Companies))
	}
	return records, nil
}

// BulkSource downloads the bulk CSV export of the registry and, when
// SnapshotDir is set, keeps a raw CSV snapshot of the filtered records.
type BulkSource struct {
	Client      *fetch.Client
	Importer    *import_pkg.CSVImporter
	SnapshotDir string
	log         *zap.Logger
	now         func() time.Time
}

// NewBulkSource creates a bulk export source backed by client.
func NewBulkSource(client *fetch.Client, snapshotDir string, log *zap.Logger) *BulkSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &BulkSource{
		Client:      client,
		Importer:    import_pkg.NewCSVImporter(log),
		SnapshotDir: snapshotDir,
		log:         log,
		now:         time.Now,
	}
}

// Name returns "bulk".
func (s *BulkSource) Name() string {
	return "bulk"
}

// Load downloads the export and keeps the configured countries.
func (s *BulkSource) Load(ctx context.Context) ([]model.RawRecord, error) {
	records, _, err := s.Client.DownloadBulk(ctx, s.Importer)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, import_pkg.ErrNoRecords
	}

	if s.SnapshotDir != "" {
		path := filepath.Join(s.SnapshotDir, fetch.SnapshotName(s.now()))
		if err := fetch.WriteRawCSV(path, records); err != nil {
			return nil, fmt.Errorf("failed to write snapshot: %w", err)
		}
		s.log.Info("Saved raw snapshot", zap.String("path", path), zap.Int("records", len(records)))
	}
	return records, nil
}

// RecordsSource serves records already in memory.
type RecordsSource struct {
	Label   string
	Records []model.RawRecord
}

// Name returns the label.
func (s RecordsSource) Name() string {
	return s.Label
}

// Load returns the records.
func (s RecordsSource) Load(ctx context.Context) ([]model.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.Records) == 0 {
		return nil, import_pkg.ErrNoRecords
	}
	return s.Records, nil
}
