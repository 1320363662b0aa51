// Package entity turns raw registry records into the Companies, Facilities
// and Links tables.
//
// Normalization and id derivation run per record and may fan out over a
// bounded worker pool. Deduplication always runs afterwards, sequentially
// and in input order, so first-seen tie breaking does not depend on
// scheduling.
package entity

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/oar-pipeline/internal/identity"
	"github.com/oar-pipeline/internal/model"
	"github.com/oar-pipeline/internal/normalize"
)

// minChunk keeps tiny inputs on a single goroutine.
const minChunk = 512

// Builder derives entity tables from raw records.
type Builder struct {
	log     *zap.Logger
	workers int
}

// NewBuilder creates a builder. workers < 1 means sequential processing.
func NewBuilder(log *zap.Logger, workers int) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	return &Builder{log: log, workers: workers}
}

// CompanyStats counts what happened to raw records while building companies.
type CompanyStats struct {
	RawRecords           int `json:"raw_records"`
	MissingCompanyID     int `json:"missing_company_id"`
	DuplicateOriginalIDs int `json:"duplicate_original_ids"`
	MergedCompanies      int `json:"merged_companies"`
	Companies            int `json:"companies"`
}

// FacilityStats counts what happened to raw records while building
// facilities and links.
type FacilityStats struct {
	RawRecords          int `json:"raw_records"`
	CollapsedFacilities int `json:"collapsed_facilities"`
	UnresolvedCompanies int `json:"unresolved_company_refs"`
	DuplicateLinks      int `json:"duplicate_links"`
	ConflictingLinks    int `json:"conflicting_links"`
	Facilities          int `json:"facilities"`
	Links               int `json:"links"`
}

// BuildStats combines the company and facility counters of one build.
type BuildStats struct {
	Companies  CompanyStats  `json:"companies"`
	Facilities FacilityStats `json:"facilities"`
}

// CompanyTable holds the deduplicated companies together with an index from
// every original company id seen to the canonical company it collapsed into.
type CompanyTable struct {
	Rows  []model.Company
	Stats CompanyStats

	byOriginal map[string]string
	byID       map[string]int
}

// Resolve returns the company an original company id collapsed into.
func (t *CompanyTable) Resolve(originalID string) (model.Company, bool) {
	if t == nil {
		return model.Company{}, false
	}
	id, ok := t.byOriginal[strings.TrimSpace(originalID)]
	if !ok {
		return model.Company{}, false
	}
	return t.Rows[t.byID[id]], true
}

// Len returns the number of canonical companies.
func (t *CompanyTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// FacilityTable holds the deduplicated facilities and the links between
// them and their companies.
type FacilityTable struct {
	Rows  []model.Facility
	Links []model.Link
	Stats FacilityStats
}

type companyCandidate struct {
	originalID string
	company    model.Company
}

// BuildCompanies normalizes every record's company, derives its id and
// collapses records with the same original id, then companies with the
// same canonical (name, country) pair. The first record seen wins in both
// cases and is kept as provenance.
func (b *Builder) BuildCompanies(ctx context.Context, records []model.RawRecord) (*CompanyTable, error) {
	candidates := make([]companyCandidate, len(records))
	err := b.each(ctx, len(records), func(i int) {
		r := records[i]
		originalID := strings.TrimSpace(model.Deref(r.CompanyID))
		if originalID == "" {
			return
		}
		name := normalize.CompanyName(model.Deref(r.CompanyName))
		country := normalize.Country(model.Deref(r.Country))
		candidates[i] = companyCandidate{
			originalID: originalID,
			company: model.Company{
				CompanyID:        identity.CompanyID(name, country),
				CanonicalName:    name,
				CanonicalCountry: country,
				OriginalID:       model.StringPtr(originalID),
				OriginalName:     r.CompanyName,
			},
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to normalize companies: %w", err)
	}

	table := &CompanyTable{
		byOriginal: make(map[string]string),
		byID:       make(map[string]int),
	}
	table.Stats.RawRecords = len(records)

	for _, c := range candidates {
		if c.originalID == "" {
			table.Stats.MissingCompanyID++
			continue
		}
		if _, seen := table.byOriginal[c.originalID]; seen {
			table.Stats.DuplicateOriginalIDs++
			continue
		}

		id := c.company.CompanyID
		table.byOriginal[c.originalID] = id
		if _, exists := table.byID[id]; exists {
			table.Stats.MergedCompanies++
			b.log.Debug("Merged company",
				zap.String("original_company_id", c.originalID),
				zap.String("company_id", id),
				zap.String("company_name", c.company.CanonicalName))
			continue
		}

		table.byID[id] = len(table.Rows)
		table.Rows = append(table.Rows, c.company)
	}
	table.Stats.Companies = len(table.Rows)

	b.log.Info("Built companies",
		zap.Int("raw_records", table.Stats.RawRecords),
		zap.Int("companies", table.Stats.Companies),
		zap.Int("merged", table.Stats.MergedCompanies),
		zap.Int("duplicate_original_ids", table.Stats.DuplicateOriginalIDs),
		zap.Int("missing_company_id", table.Stats.MissingCompanyID))

	return table, nil
}

// BuildFacilities normalizes every record's facility, derives its id and
// links it to the company its original company id resolves to. Facilities
// sharing an id collapse to the first seen. A facility is linked to at most
// one company; a later, different company for the same facility is dropped
// and counted.
func (b *Builder) BuildFacilities(ctx context.Context, records []model.RawRecord, companies *CompanyTable) (*FacilityTable, error) {
	candidates := make([]model.Facility, len(records))
	err := b.each(ctx, len(records), func(i int) {
		r := records[i]
		name := normalize.FacilityName(model.Deref(r.Name))
		f := model.Facility{
			FacilityID:         identity.FacilityID(name, r.Lat, r.Lon),
			CanonicalName:      name,
			Address:            r.Address,
			Country:            r.Country,
			Lat:                r.Lat,
			Lon:                r.Lon,
			IsClosed:           r.IsClosed,
			Sector:             r.Sector,
			ProcessingActivity: r.ProcessingActivity,
			Contributor:        r.Contributor,
			CreatedAt:          r.CreatedAt,
			UpdatedAt:          r.UpdatedAt,
			OriginalID:         r.ID,
		}
		if company, ok := companies.Resolve(model.Deref(r.CompanyID)); ok {
			f.CompanyID = model.StringPtr(company.CompanyID)
			f.CompanyName = model.StringPtr(company.CanonicalName)
		}
		candidates[i] = f
	})
	if err != nil {
		return nil, fmt.Errorf("failed to normalize facilities: %w", err)
	}

	table := &FacilityTable{}
	table.Stats.RawRecords = len(records)

	rowIndex := make(map[string]int, len(candidates))
	linkedTo := make(map[string]string)

	for i, f := range candidates {
		if _, seen := rowIndex[f.FacilityID]; !seen {
			rowIndex[f.FacilityID] = len(table.Rows)
			table.Rows = append(table.Rows, f)
		} else {
			table.Stats.CollapsedFacilities++
		}

		if f.CompanyID == nil {
			if strings.TrimSpace(model.Deref(records[i].CompanyID)) != "" {
				table.Stats.UnresolvedCompanies++
				b.log.Debug("Unresolved company reference",
					zap.String("facility_id", f.FacilityID),
					zap.String("original_company_id", model.Deref(records[i].CompanyID)))
			}
			continue
		}

		companyID := *f.CompanyID
		switch existing, linked := linkedTo[f.FacilityID]; {
		case !linked:
			linkedTo[f.FacilityID] = companyID
			table.Links = append(table.Links, model.Link{CompanyID: companyID, FacilityID: f.FacilityID})
			// The row may come from an earlier record that resolved no company.
			row := &table.Rows[rowIndex[f.FacilityID]]
			row.CompanyID = f.CompanyID
			row.CompanyName = f.CompanyName
		case existing == companyID:
			table.Stats.DuplicateLinks++
		default:
			table.Stats.ConflictingLinks++
			b.log.Warn("Facility already linked to another company",
				zap.String("facility_id", f.FacilityID),
				zap.String("linked_company_id", existing),
				zap.String("dropped_company_id", companyID))
		}
	}
	table.Stats.Facilities = len(table.Rows)
	table.Stats.Links = len(table.Links)

	b.log.Info("Built facilities",
		zap.Int("raw_records", table.Stats.RawRecords),
		zap.Int("facilities", table.Stats.Facilities),
		zap.Int("links", table.Stats.Links),
		zap.Int("collapsed", table.Stats.CollapsedFacilities),
		zap.Int("unresolved_company_refs", table.Stats.UnresolvedCompanies),
		zap.Int("conflicting_links", table.Stats.ConflictingLinks))

	return table, nil
}

// Build runs BuildCompanies and BuildFacilities and assembles the tables.
func (b *Builder) Build(ctx context.Context, records []model.RawRecord) (model.Tables, BuildStats, error) {
	companies, err := b.BuildCompanies(ctx, records)
	if err != nil {
		return model.Tables{}, BuildStats{}, err
	}
	facilities, err := b.BuildFacilities(ctx, records, companies)
	if err != nil {
		return model.Tables{}, BuildStats{}, err
	}

	tables := model.Tables{
		Companies:  companies.Rows,
		Facilities: facilities.Rows,
		Links:      facilities.Links,
	}
	return tables, BuildStats{Companies: companies.Stats, Facilities: facilities.Stats}, nil
}

// each calls fn for every index in [0, n), spreading contiguous chunks over
// the worker pool. fn must only write to its own index.
func (b *Builder) each(ctx context.Context, n int, fn func(i int)) error {
	if b.workers == 1 || n <= minChunk {
		for i := 0; i < n; i++ {
			if i%minChunk == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			fn(i)
		}
		return nil
	}

	chunk := (n + b.workers - 1) / b.workers
	if chunk < minChunk {
		chunk = minChunk
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for start := 0; start < n; start += chunk {
		start, end := start, min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%minChunk == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				fn(i)
			}
			return nil
		})
	}
	return g.Wait()
}
