// Package etl runs the pipeline phases in order over one source and hands
// the results to the exporter and the optional store.
package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oar-pipeline/internal/analytics"
	"github.com/oar-pipeline/internal/audit"
	"github.com/oar-pipeline/internal/classify"
	"github.com/oar-pipeline/internal/debug"
	"github.com/oar-pipeline/internal/entity"
	"github.com/oar-pipeline/internal/export"
	"github.com/oar-pipeline/internal/metrics"
	"github.com/oar-pipeline/internal/model"
	"github.com/oar-pipeline/internal/store"
	"github.com/oar-pipeline/internal/validation"
)

// Phase names, in execution order.
const (
	PhaseLoad       = "load"
	PhaseCompanies  = "companies"
	PhaseFacilities = "facilities"
	PhaseValidate   = "validate"
	PhaseReconcile  = "reconcile"
	PhaseAnalytics  = "analytics"
	PhaseClassify   = "classify"
	PhaseExport     = "export"
	PhaseStore      = "store"
)

// Options configure a Pipeline.
type Options struct {
	Workers  int
	Keywords []string
	Dirs     export.Dirs
	Workbook bool
}

// Result is everything a finished run produced.
type Result struct {
	RunID          string
	Source         string
	Records        int
	Tables         model.Tables
	Build          entity.BuildStats
	Validation     validation.Report
	Reconcile      validation.ReconcileStats
	Summary        analytics.Summary
	Classification []classify.Result
	ClassifyStats  classify.Stats
	Files          export.Files
	Stored         bool
	Duration       time.Duration
}

// Pipeline handles one end-to-end run
type Pipeline struct {
	log        *zap.Logger
	metrics    *metrics.Metrics
	store      *store.Store
	builder    *entity.Builder
	validator  *validation.Validator
	classifier *classify.Classifier
	exporter   *export.Exporter
	newID      func() string
	now        func() time.Time
}

// NewPipeline creates a new pipeline. m and st may be nil; without a store
// runs are only exported to files.
func NewPipeline(opts Options, log *zap.Logger, m *metrics.Metrics, st *store.Store) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}

	keywords := opts.Keywords
	if len(keywords) == 0 {
		keywords = classify.DefaultKeywords
	}
	classifier, err := classify.NewClassifier(log, keywords)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	exporter := export.NewExporter(log, opts.Dirs)
	if !opts.Workbook {
		exporter.WithoutWorkbook()
	}

	return &Pipeline{
		log:        log,
		metrics:    m,
		store:      st,
		builder:    entity.NewBuilder(log, opts.Workers),
		validator:  validation.NewValidator(log),
		classifier: classifier,
		exporter:   exporter,
		newID:      uuid.NewString,
		now:        time.Now,
	}, nil
}

// Run executes every phase over src. A failed run is recorded in the audit
// trail when a store is configured.
func (p *Pipeline) Run(ctx context.Context, src Source) (*Result, error) {
	start := p.now()
	res := &Result{RunID: p.newID(), Source: src.Name()}
	log := p.log.With(zap.String("run_id", res.RunID))
	log.Info("Starting run", zap.String("source", res.Source))

	if p.store != nil {
		if err := p.store.Tracker().Start(ctx, res.RunID, res.Source); err != nil {
			p.metrics.RecordRun(audit.StatusFailed)
			return nil, err
		}
	}

	if err := p.run(ctx, log, src, res); err != nil {
		p.metrics.RecordRun(audit.StatusFailed)
		if p.store != nil {
			// The run context may be cancelled already.
			if ferr := p.store.Tracker().Fail(context.Background(), res.RunID, err); ferr != nil {
				log.Error("Failed to record run failure", zap.Error(ferr))
			}
		}
		log.Error("Run failed", zap.Error(err))
		return nil, err
	}

	res.Duration = p.now().Sub(start)
	p.metrics.RecordRun(audit.StatusCompleted)
	log.Info("Run completed",
		zap.Int("records", res.Records),
		zap.Int("companies", len(res.Tables.Companies)),
		zap.Int("facilities", len(res.Tables.Facilities)),
		zap.Int("links", len(res.Tables.Links)),
		zap.Int("dropped_links", res.Reconcile.Dropped()),
		zap.Bool("stored", res.Stored),
		zap.Duration("took", res.Duration))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, log *zap.Logger, src Source, res *Result) error {
	var (
		records    []model.RawRecord
		companies  *entity.CompanyTable
		facilities *entity.FacilityTable
	)

	err := p.phase(ctx, log, PhaseLoad, func() error {
		var err error
		records, err = src.Load(ctx)
		res.Records = len(records)
		p.metrics.RecordRecords(len(records))
		return err
	})
	if err != nil {
		return err
	}

	err = p.phase(ctx, log, PhaseCompanies, func() error {
		var err error
		companies, err = p.builder.BuildCompanies(ctx, records)
		return err
	})
	if err != nil {
		return err
	}

	err = p.phase(ctx, log, PhaseFacilities, func() error {
		var err error
		facilities, err = p.builder.BuildFacilities(ctx, records, companies)
		return err
	})
	if err != nil {
		return err
	}

	res.Build = entity.BuildStats{Companies: companies.Stats, Facilities: facilities.Stats}
	res.Tables = model.Tables{
		Companies:  companies.Rows,
		Facilities: facilities.Rows,
		Links:      facilities.Links,
	}

	err = p.phase(ctx, log, PhaseValidate, func() error {
		res.Validation = p.validator.Validate(res.Tables)
		return nil
	})
	if err != nil {
		return err
	}

	err = p.phase(ctx, log, PhaseReconcile, func() error {
		res.Tables.Links, res.Reconcile = p.validator.Reconcile(res.Tables)
		return nil
	})
	if err != nil {
		return err
	}
	p.metrics.SetTables(len(res.Tables.Companies), len(res.Tables.Facilities), len(res.Tables.Links))
	p.metrics.SetIntegrity(res.Validation.Counts(), res.Reconcile.Dropped())

	err = p.phase(ctx, log, PhaseAnalytics, func() error {
		res.Summary = analytics.Summarize(res.Tables)
		return nil
	})
	if err != nil {
		return err
	}

	err = p.phase(ctx, log, PhaseClassify, func() error {
		res.Classification, res.ClassifyStats = p.classifier.Classify(res.Tables.Companies)
		return nil
	})
	if err != nil {
		return err
	}

	err = p.phase(ctx, log, PhaseExport, func() error {
		var err error
		res.Files, err = p.exporter.Export(export.Bundle{
			RunID:          res.RunID,
			Source:         res.Source,
			Tables:         res.Tables,
			Summary:        res.Summary,
			Validation:     res.Validation,
			Reconcile:      res.Reconcile,
			Build:          res.Build,
			Classification: res.Classification,
			ClassifyStats:  res.ClassifyStats,
		})
		return err
	})
	if err != nil {
		return err
	}

	if p.store == nil {
		return nil
	}
	return p.phase(ctx, log, PhaseStore, func() error {
		if err := p.store.SaveRun(ctx, res.RunID, res.Tables); err != nil {
			return err
		}
		err := p.store.Tracker().Finish(ctx, res.RunID, audit.Outcome{
			Companies:    len(res.Tables.Companies),
			Facilities:   len(res.Tables.Facilities),
			Links:        len(res.Tables.Links),
			DroppedLinks: res.Reconcile.Dropped(),
			Issues:       res.Validation.Counts(),
		})
		if err != nil {
			return err
		}
		res.Stored = true
		return nil
	})
}

// phase runs fn after checking ctx, timing it in the log and in metrics.
func (p *Pipeline) phase(ctx context.Context, log *zap.Logger, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	done := debug.Timing(log, name)
	start := time.Now()
	err := fn()
	p.metrics.ObservePhase(name, time.Since(start))
	done()

	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
