package model

import (
	"fmt"
	"time"
)

// RawRecord is one row of the registry dataset before any cleaning.
// Nil pointers mean the source column was empty.
type RawRecord struct {
	ID                 *string    `json:"id,omitempty"`
	Name               *string    `json:"name,omitempty"`
	Address            *string    `json:"address,omitempty"`
	Country            *string    `json:"country,omitempty"`
	Lat                *float64   `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lon                *float64   `json:"lon,omitempty" validate:"omitempty,longitude"`
	IsClosed           bool       `json:"is_closed"`
	CreatedAt          *time.Time `json:"created_at,omitempty"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
	Contributor        *string    `json:"contributor,omitempty"`
	Sector             *string    `json:"sector,omitempty"`
	ProcessingActivity *string    `json:"processing_activity,omitempty"`
	CompanyName        *string    `json:"company_name,omitempty"`
	CompanyID          *string    `json:"company_id,omitempty"`
}

// Company is a canonical company identity. CompanyID is derived from
// CanonicalName and CanonicalCountry; OriginalID and OriginalName keep the
// first raw record that produced it.
type Company struct {
	CompanyID        string  `json:"company_id" db:"company_id"`
	CanonicalName    string  `json:"company_name" db:"company_name"`
	CanonicalCountry string  `json:"country" db:"country"`
	OriginalID       *string `json:"original_company_id,omitempty" db:"original_company_id"`
	OriginalName     *string `json:"original_name,omitempty" db:"original_name"`
}

// Facility is a canonical facility. CompanyID and CompanyName are only set
// when the raw company reference resolved; they are not part of the
// exported facility table.
type Facility struct {
	FacilityID         string     `json:"facility_id" db:"facility_id"`
	CanonicalName      string     `json:"facility_name" db:"facility_name"`
	Address            *string    `json:"address,omitempty" db:"address"`
	Country            *string    `json:"country,omitempty" db:"country"`
	Lat                *float64   `json:"lat,omitempty" db:"lat"`
	Lon                *float64   `json:"lon,omitempty" db:"lon"`
	IsClosed           bool       `json:"is_closed" db:"is_closed"`
	Sector             *string    `json:"sector,omitempty" db:"sector"`
	ProcessingActivity *string    `json:"processing_activity,omitempty" db:"processing_activity"`
	Contributor        *string    `json:"contributor,omitempty" db:"contributor"`
	CreatedAt          *time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty" db:"updated_at"`
	OriginalID         *string    `json:"original_id,omitempty" db:"original_id"`

	CompanyID   *string `json:"-" db:"-"`
	CompanyName *string `json:"-" db:"-"`
}

// HasCoordinates reports whether both lat and lon are present.
func (f Facility) HasCoordinates() bool {
	return f.Lat != nil && f.Lon != nil
}

// Link associates a facility with the company operating it.
type Link struct {
	CompanyID  string `json:"company_id" db:"company_id"`
	FacilityID string `json:"facility_id" db:"facility_id"`
}

func (l Link) String() string {
	return fmt.Sprintf("%s -> %s", l.CompanyID, l.FacilityID)
}

// Tables is the Companies/Facilities/Links triple produced by one run.
type Tables struct {
	Companies  []Company  `json:"companies"`
	Facilities []Facility `json:"facilities"`
	Links      []Link     `json:"links"`
}

// CompanyIDs returns the set of company ids in the table.
func (t Tables) CompanyIDs() map[string]bool {
	ids := make(map[string]bool, len(t.Companies))
	for _, c := range t.Companies {
		ids[c.CompanyID] = true
	}
	return ids
}

// FacilityIDs returns the set of facility ids in the table.
func (t Tables) FacilityIDs() map[string]bool {
	ids := make(map[string]bool, len(t.Facilities))
	for _, f := range t.Facilities {
		ids[f.FacilityID] = true
	}
	return ids
}

// StringPtr returns nil for an empty string, a pointer otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
