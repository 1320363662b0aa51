// Package normalize maps raw company, facility and country strings to their
// canonical forms. Every function here is pure, total and idempotent.
package normalize

import (
	"regexp"
)

const (
	// UnknownCompany stands in for a missing company name or country.
	UnknownCompany = "Unknown"
	// UnknownFacility stands in for a missing facility name.
	UnknownFacility = "Unknown Facility"
)

// Legal-entity suffixes, anchored at the end and preceded by whitespace.
// "& Co" is listed first so "Smith & Co." does not leave a dangling "&".
var reLegalSuffix = regexp.MustCompile(`(?i)\s+(?:&\s*Co|Inc|LLC|Ltd|GmbH|SA|NV|PLC|Corp|Company|Co)\.?$`)

// Anything that is not a word character, whitespace, "&" or "-".
var reCompanyDisallowed = regexp.MustCompile(`[^\p{L}\p{N}\p{M}_\s&-]`)

// Facility names additionally keep apostrophes, dots, commas and parentheses.
var reFacilityDisallowed = regexp.MustCompile(`[^\p{L}\p{N}\p{M}_\s\-'&.,()]`)

// CompanyName returns the canonical form of a raw company name:
// legal suffixes removed, punctuation replaced by spaces, whitespace
// collapsed and every token title-cased.
//
//	CompanyName("Apex Manufacturing Co.") == "Apex Manufacturing"
func CompanyName(raw string) string {
	s := prepare(raw)
	if s == "" {
		return UnknownCompany
	}

	s = stripLegalSuffixes(s)
	s = reCompanyDisallowed.ReplaceAllString(s, " ")
	s = collapseSpaces(s)
	// Punctuation cleanup can expose a suffix ("Apex Co," -> "Apex Co").
	s = stripLegalSuffixes(s)
	s = TitleCase(s)

	if s == "" {
		return UnknownCompany
	}
	return s
}

// FacilityName returns the canonical form of a raw facility name. Unlike
// company names no suffixes are stripped.
func FacilityName(raw string) string {
	s := prepare(raw)
	if s == "" {
		return UnknownFacility
	}

	s = reFacilityDisallowed.ReplaceAllString(s, " ")
	s = TitleCase(s)

	if s == "" {
		return UnknownFacility
	}
	return s
}

// stripLegalSuffixes removes trailing legal-entity suffixes until none is
// left ("Acme Holdings Co Ltd" loses both).
func stripLegalSuffixes(s string) string {
	for {
		loc := reLegalSuffix.FindStringIndex(s)
		if loc == nil {
			return s
		}
		s = s[:loc[0]]
	}
}
