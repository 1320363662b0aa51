// Package store persists finished runs to SQL and reads them back for the
// web API.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/oar-pipeline/internal/audit"
	"github.com/oar-pipeline/internal/db"
	"github.com/oar-pipeline/internal/model"
)

// batchSize bounds rows per INSERT to stay below driver parameter limits.
const batchSize = 500

// ErrNotFound is returned when an entity does not exist in a run.
var ErrNotFound = errors.New("not found")

var (
	companyColumns  = []string{"company_id", "company_name", "country", "original_company_id", "original_name"}
	facilityColumns = []string{
		"facility_id", "facility_name", "address", "country", "lat", "lon", "is_closed",
		"sector", "processing_activity", "contributor", "created_at", "updated_at", "original_id",
	}
)

// Filter narrows list queries. Zero values mean no restriction.
type Filter struct {
	Country    string
	CompanyID  string
	Geolocated bool
	Bounds     *Bounds
	Limit      int
	Offset     int
}

// Bounds is an inclusive lat/lon box. Facilities without coordinates never
// fall inside it.
type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Store reads and writes run tables.
type Store struct {
	conn    *db.Connection
	tracker *audit.Tracker
	log     *zap.Logger
}

// New creates a store over conn.
func New(conn *db.Connection, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{conn: conn, tracker: audit.NewTracker(conn, log), log: log}
}

// Init creates the schema if missing.
func (s *Store) Init(ctx context.Context) error {
	return s.conn.EnsureSchema(ctx)
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Tracker returns the audit tracker sharing this store's connection.
func (s *Store) Tracker() *audit.Tracker {
	return s.tracker
}

// SaveRun writes the tables of a run in one transaction, replacing any rows
// previously saved under runID.
func (s *Store) SaveRun(ctx context.Context, runID string, tables model.Tables) error {
	tx, err := s.conn.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	flavor := s.conn.Flavor()
	for _, table := range []string{"links", "facilities", "companies"} {
		del := flavor.NewDeleteBuilder()
		del.DeleteFrom(table)
		del.Where(del.Equal("run_id", runID))
		query, args := del.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	err = insertBatches(ctx, tx, flavor, "companies", append([]string{"run_id"}, companyColumns...), len(tables.Companies),
		func(i int) []interface{} {
			c := tables.Companies[i]
			return []interface{}{runID, c.CompanyID, c.CanonicalName, c.CanonicalCountry, c.OriginalID, c.OriginalName}
		})
	if err != nil {
		return err
	}

	err = insertBatches(ctx, tx, flavor, "facilities", append([]string{"run_id"}, facilityColumns...), len(tables.Facilities),
		func(i int) []interface{} {
			f := tables.Facilities[i]
			return []interface{}{
				runID, f.FacilityID, f.CanonicalName, f.Address, f.Country, f.Lat, f.Lon, f.IsClosed,
				f.Sector, f.ProcessingActivity, f.Contributor, timeText(f.CreatedAt), timeText(f.UpdatedAt), f.OriginalID,
			}
		})
	if err != nil {
		return err
	}

	err = insertBatches(ctx, tx, flavor, "links", []string{"run_id", "company_id", "facility_id"}, len(tables.Links),
		func(i int) []interface{} {
			l := tables.Links[i]
			return []interface{}{runID, l.CompanyID, l.FacilityID}
		})
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", runID, err)
	}

	s.log.Info("Saved run",
		zap.String("run_id", runID),
		zap.Int("companies", len(tables.Companies)),
		zap.Int("facilities", len(tables.Facilities)),
		zap.Int("links", len(tables.Links)))
	return nil
}

func insertBatches(ctx context.Context, tx *sqlx.Tx, flavor sqlbuilder.Flavor, table string, cols []string, n int, row func(int) []interface{}) error {
	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)

		ib := flavor.NewInsertBuilder()
		ib.InsertInto(table)
		ib.Cols(cols...)
		for i := start; i < end; i++ {
			ib.Values(row(i)...)
		}

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}

// LatestRunID returns the id of the most recent completed run.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	run, err := s.tracker.Latest(ctx)
	if err != nil {
		return "", err
	}
	return run.RunID, nil
}

// LoadRun reads every table of a run.
func (s *Store) LoadRun(ctx context.Context, runID string) (model.Tables, error) {
	var tables model.Tables
	if _, err := s.tracker.Get(ctx, runID); err != nil {
		return tables, err
	}

	companies, err := s.ListCompanies(ctx, runID, Filter{Limit: -1})
	if err != nil {
		return tables, err
	}
	facilities, err := s.ListFacilities(ctx, runID, Filter{Limit: -1})
	if err != nil {
		return tables, err
	}
	links, err := s.Links(ctx, runID)
	if err != nil {
		return tables, err
	}

	tables.Companies = companies
	tables.Facilities = facilities
	tables.Links = links
	return tables, nil
}

// ListCompanies returns the companies of a run ordered by name. A negative
// Limit returns every row.
func (s *Store) ListCompanies(ctx context.Context, runID string, f Filter) ([]model.Company, error) {
	sb := s.conn.Flavor().NewSelectBuilder()
	sb.Select(companyColumns...)
	sb.From("companies")
	where := []string{sb.Equal("run_id", runID)}
	if f.Country != "" {
		where = append(where, sb.Equal("country", f.Country))
	}
	sb.Where(where...)
	sb.OrderBy("company_name", "company_id")
	page(sb, f)

	query, args := sb.Build()
	var companies []model.Company
	if err := s.conn.DB.SelectContext(ctx, &companies, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return companies, nil
}

// GetCompany returns one company of a run and its linked facilities.
func (s *Store) GetCompany(ctx context.Context, runID, companyID string) (model.Company, []model.Facility, error) {
	sb := s.conn.Flavor().NewSelectBuilder()
	sb.Select(companyColumns...)
	sb.From("companies")
	sb.Where(sb.Equal("run_id", runID), sb.Equal("company_id", companyID))

	query, args := sb.Build()
	var company model.Company
	if err := s.conn.DB.GetContext(ctx, &company, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return company, nil, fmt.Errorf("company %s: %w", companyID, ErrNotFound)
		}
		return company, nil, fmt.Errorf("failed to get company: %w", err)
	}

	facilities, err := s.ListFacilities(ctx, runID, Filter{CompanyID: companyID, Limit: -1})
	if err != nil {
		return company, nil, err
	}
	return company, facilities, nil
}

type facilityRow struct {
	FacilityID         string   `db:"facility_id"`
	FacilityName       string   `db:"facility_name"`
	Address            *string  `db:"address"`
	Country            *string  `db:"country"`
	Lat                *float64 `db:"lat"`
	Lon                *float64 `db:"lon"`
	IsClosed           bool     `db:"is_closed"`
	Sector             *string  `db:"sector"`
	ProcessingActivity *string  `db:"processing_activity"`
	Contributor        *string  `db:"contributor"`
	CreatedAt          *string  `db:"created_at"`
	UpdatedAt          *string  `db:"updated_at"`
	OriginalID         *string  `db:"original_id"`
	CompanyID          *string  `db:"company_id"`
	CompanyName        *string  `db:"company_name"`
}

func (r facilityRow) toFacility() model.Facility {
	return model.Facility{
		FacilityID:         r.FacilityID,
		CanonicalName:      r.FacilityName,
		Address:            r.Address,
		Country:            r.Country,
		Lat:                r.Lat,
		Lon:                r.Lon,
		IsClosed:           r.IsClosed,
		Sector:             r.Sector,
		ProcessingActivity: r.ProcessingActivity,
		Contributor:        r.Contributor,
		CreatedAt:          parseTimeText(r.CreatedAt),
		UpdatedAt:          parseTimeText(r.UpdatedAt),
		OriginalID:         r.OriginalID,
		CompanyID:          r.CompanyID,
		CompanyName:        r.CompanyName,
	}
}

// ListFacilities returns the facilities of a run with their linked company,
// ordered by id.
func (s *Store) ListFacilities(ctx context.Context, runID string, f Filter) ([]model.Facility, error) {
	sb := s.conn.Flavor().NewSelectBuilder()
	cols := make([]string, 0, len(facilityColumns)+2)
	for _, c := range facilityColumns {
		cols = append(cols, sb.As("f."+c, c))
	}
	cols = append(cols, sb.As("l.company_id", "company_id"), sb.As("c.company_name", "company_name"))
	sb.Select(cols...)
	sb.From("facilities f")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "links l", "l.run_id = f.run_id", "l.facility_id = f.facility_id")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "companies c", "c.run_id = l.run_id", "c.company_id = l.company_id")

	where := []string{sb.Equal("f.run_id", runID)}
	if f.Country != "" {
		where = append(where, sb.Equal("f.country", f.Country))
	}
	if f.CompanyID != "" {
		where = append(where, sb.Equal("l.company_id", f.CompanyID))
	}
	if f.Geolocated {
		where = append(where, sb.IsNotNull("f.lat"), sb.IsNotNull("f.lon"))
	}
	if b := f.Bounds; b != nil {
		where = append(where,
			sb.Between("f.lat", b.MinLat, b.MaxLat),
			sb.Between("f.lon", b.MinLon, b.MaxLon))
	}
	sb.Where(where...)
	sb.OrderBy("f.facility_id")
	page(sb, f)

	query, args := sb.Build()
	var rows []facilityRow
	if err := s.conn.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list facilities: %w", err)
	}

	facilities := make([]model.Facility, 0, len(rows))
	for _, r := range rows {
		facilities = append(facilities, r.toFacility())
	}
	return facilities, nil
}

// Links returns the links of a run in facility order.
func (s *Store) Links(ctx context.Context, runID string) ([]model.Link, error) {
	sb := s.conn.Flavor().NewSelectBuilder()
	sb.Select("company_id", "facility_id")
	sb.From("links")
	sb.Where(sb.Equal("run_id", runID))
	sb.OrderBy("facility_id")

	query, args := sb.Build()
	var links []model.Link
	if err := s.conn.DB.SelectContext(ctx, &links, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return links, nil
}

// page applies Limit/Offset. Limit 0 means 100; a negative Limit means all.
func page(sb *sqlbuilder.SelectBuilder, f Filter) {
	limit := f.Limit
	if limit == 0 {
		limit = 100
	}
	if limit > 0 {
		sb.Limit(limit)
		if f.Offset > 0 {
			sb.Offset(f.Offset)
		}
	}
}

func timeText(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := db.FormatTime(*t)
	return &s
}

func parseTimeText(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := db.ParseTime(*s)
	if err != nil {
		return nil
	}
	return &t
}
