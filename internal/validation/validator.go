// Package validation checks referential integrity between the Companies,
// Facilities and Links tables and filters links that cannot be resolved.
// Neither operation modifies the entity tables.
package validation

import (
	"sort"

	"go.uber.org/zap"

	"github.com/oar-pipeline/internal/model"
)

// sampleSize caps how many ids are attached to a warning.
const sampleSize = 10

// Validator checks relational integrity of a set of tables
type Validator struct {
	log *zap.Logger
}

// NewValidator creates a validator logging issues to log
func NewValidator(log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{log: log}
}

// Validate reports orphaned entities and dangling link references. Issues
// are logged as warnings and never treated as fatal.
func (v *Validator) Validate(tables model.Tables) Report {
	companies := tables.CompanyIDs()
	facilities := tables.FacilityIDs()

	linkedCompanies := make(map[string]bool, len(tables.Links))
	linkedFacilities := make(map[string]bool, len(tables.Links))
	dangCompanies := make(map[string]bool)
	dangFacilities := make(map[string]bool)

	for _, l := range tables.Links {
		linkedCompanies[l.CompanyID] = true
		linkedFacilities[l.FacilityID] = true
		if !companies[l.CompanyID] {
			dangCompanies[l.CompanyID] = true
		}
		if !facilities[l.FacilityID] {
			dangFacilities[l.FacilityID] = true
		}
	}

	var report Report
	for id := range companies {
		if !linkedCompanies[id] {
			report.OrphanedCompanies = append(report.OrphanedCompanies, id)
		}
	}
	for id := range facilities {
		if !linkedFacilities[id] {
			report.OrphanedFacilities = append(report.OrphanedFacilities, id)
		}
	}
	report.DanglingCompanyRefs = sortedKeys(dangCompanies)
	report.DanglingFacilityRefs = sortedKeys(dangFacilities)
	sort.Strings(report.OrphanedCompanies)
	sort.Strings(report.OrphanedFacilities)

	v.warn("Companies without facilities", OrphanedCompany, report.OrphanedCompanies)
	v.warn("Facilities without company", OrphanedFacility, report.OrphanedFacilities)
	v.warn("Links reference unknown companies", DanglingCompany, report.DanglingCompanyRefs)
	v.warn("Links reference unknown facilities", DanglingFacility, report.DanglingFacilityRefs)

	if report.OK() {
		v.log.Info("Relational integrity verified",
			zap.Int("companies", len(tables.Companies)),
			zap.Int("facilities", len(tables.Facilities)),
			zap.Int("links", len(tables.Links)))
	}
	return report
}

// Reconcile returns the links whose company and facility both exist, in
// their original order, together with counts of what was dropped.
func (v *Validator) Reconcile(tables model.Tables) ([]model.Link, ReconcileStats) {
	companies := tables.CompanyIDs()
	facilities := tables.FacilityIDs()

	stats := ReconcileStats{InputLinks: len(tables.Links)}
	kept := make([]model.Link, 0, len(tables.Links))

	for _, l := range tables.Links {
		hasCompany, hasFacility := companies[l.CompanyID], facilities[l.FacilityID]
		switch {
		case hasCompany && hasFacility:
			kept = append(kept, l)
		case !hasCompany && !hasFacility:
			stats.MissingBoth++
		case !hasCompany:
			stats.MissingCompany++
		default:
			stats.MissingFacility++
		}
	}
	stats.KeptLinks = len(kept)

	if stats.Dropped() > 0 {
		v.log.Warn("Dropped unresolvable links",
			zap.Int("dropped", stats.Dropped()),
			zap.Int("missing_company", stats.MissingCompany),
			zap.Int("missing_facility", stats.MissingFacility),
			zap.Int("missing_both", stats.MissingBoth))
	}
	return kept, stats
}

func (v *Validator) warn(msg, kind string, ids []string) {
	if len(ids) == 0 {
		return
	}
	v.log.Warn(msg,
		zap.String("issue", kind),
		zap.Int("count", len(ids)),
		zap.Strings("sample", ids[:min(sampleSize, len(ids))]))
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
