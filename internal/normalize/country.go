package normalize

import (
	"sort"
	"strings"
)

// countryVariants lists, per canonical country, the spellings seen in the
// registry: English name, ISO alpha-3 code and demonym.
var countryVariants = map[string][]string{
	"Morocco":  {"Morocco", "MAR", "Moroccan"},
	"Spain":    {"Spain", "ESP", "Spanish"},
	"Portugal": {"Portugal", "PRT", "Portuguese"},
	"Italy":    {"Italy", "ITA", "Italian"},
	"France":   {"France", "FRA", "French"},
	"Greece":   {"Greece", "GRC", "Greek"},
	"Malta":    {"Malta", "MLT", "Maltese"},
}

// countryLookup indexes every variant, lower-cased, to its canonical name.
var countryLookup = func() map[string]string {
	lookup := make(map[string]string)
	for canonical, variants := range countryVariants {
		for _, v := range variants {
			lookup[strings.ToLower(v)] = canonical
		}
	}
	return lookup
}()

// Country maps a raw country value to its canonical name. Values outside
// the known table are title-cased.
func Country(raw string) string {
	s := collapseSpaces(prepare(raw))
	if s == "" {
		return UnknownCompany
	}

	if canonical, ok := countryLookup[lower(s)]; ok {
		return canonical
	}
	return TitleCase(s)
}

// IsKnownCountry reports whether raw resolves through the variant table.
func IsKnownCountry(raw string) bool {
	_, ok := countryLookup[lower(collapseSpaces(prepare(raw)))]
	return ok
}

// KnownCountries returns the canonical names in the variant table, sorted.
func KnownCountries() []string {
	names := make([]string, 0, len(countryVariants))
	for name := range countryVariants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
