package validation

import "fmt"

// Issue kinds reported by the validator
const (
	OrphanedCompany  = "orphaned_company"
	OrphanedFacility = "orphaned_facility"
	DanglingCompany  = "dangling_company_ref"
	DanglingFacility = "dangling_facility_ref"
)

// Report lists every integrity violation found in one set of tables.
// Each list is sorted and holds distinct ids.
type Report struct {
	// Companies with no link
	OrphanedCompanies []string `json:"orphaned_companies"`
	// Facilities with no link
	OrphanedFacilities []string `json:"orphaned_facilities"`
	// Company ids referenced by links but missing from the companies table
	DanglingCompanyRefs []string `json:"dangling_company_refs"`
	// Facility ids referenced by links but missing from the facilities table
	DanglingFacilityRefs []string `json:"dangling_facility_refs"`
}

// OK reports whether no violation was found.
func (r Report) OK() bool {
	return len(r.OrphanedCompanies) == 0 &&
		len(r.OrphanedFacilities) == 0 &&
		len(r.DanglingCompanyRefs) == 0 &&
		len(r.DanglingFacilityRefs) == 0
}

// Counts returns the number of ids per issue kind.
func (r Report) Counts() map[string]int {
	return map[string]int{
		OrphanedCompany:  len(r.OrphanedCompanies),
		OrphanedFacility: len(r.OrphanedFacilities),
		DanglingCompany:  len(r.DanglingCompanyRefs),
		DanglingFacility: len(r.DanglingFacilityRefs),
	}
}

func (r Report) String() string {
	return fmt.Sprintf("orphaned companies=%d, orphaned facilities=%d, dangling company refs=%d, dangling facility refs=%d",
		len(r.OrphanedCompanies), len(r.OrphanedFacilities), len(r.DanglingCompanyRefs), len(r.DanglingFacilityRefs))
}

// ReconcileStats counts the links dropped by Reconcile.
type ReconcileStats struct {
	InputLinks      int `json:"input_links"`
	KeptLinks       int `json:"kept_links"`
	MissingCompany  int `json:"missing_company"`
	MissingFacility int `json:"missing_facility"`
	MissingBoth     int `json:"missing_both"`
}

// Dropped returns the total number of dropped links.
func (s ReconcileStats) Dropped() int {
	return s.InputLinks - s.KeptLinks
}
