// Package identity derives stable entity identifiers from canonical
// attributes. The same canonical input always yields the same id, on any
// platform and in any run.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	CompanyPrefix  = "COMP_"
	FacilityPrefix = "FAC_"

	// HexLength is the number of hex characters kept from the digest
	// (64 bits).
	HexLength = 16

	keyDelimiter = "|"
)

// CompanyID returns the id of the company with the given canonical name and
// country.
func CompanyID(canonicalName, canonicalCountry string) string {
	return CompanyPrefix + digest(canonicalName+keyDelimiter+canonicalCountry)
}

// FacilityID returns the id of a facility. Coordinates take part in the key
// only when both are present; otherwise the id depends on the name alone,
// so two unlocated facilities with the same canonical name share an id.
func FacilityID(canonicalName string, lat, lon *float64) string {
	key := canonicalName
	if lat != nil && lon != nil {
		key = fmt.Sprintf("%s%s%.4f%s%.4f", canonicalName, keyDelimiter, *lat, keyDelimiter, *lon)
	}
	return FacilityPrefix + digest(key)
}

// digest hashes the lower-cased key and keeps the first HexLength hex chars.
func digest(key string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(key)))
	return hex.EncodeToString(sum[:])[:HexLength]
}

// IsCompanyID reports whether id has the shape of a company id.
func IsCompanyID(id string) bool {
	return hasShape(id, CompanyPrefix)
}

// IsFacilityID reports whether id has the shape of a facility id.
func IsFacilityID(id string) bool {
	return hasShape(id, FacilityPrefix)
}

func hasShape(id, prefix string) bool {
	if !strings.HasPrefix(id, prefix) || len(id) != len(prefix)+HexLength {
		return false
	}
	_, err := hex.DecodeString(id[len(prefix):])
	return err == nil
}
