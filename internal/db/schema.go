package db

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeFormat is how timestamps are stored. Fixed width so that stored
// values sort chronologically as text on every driver.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeFormat, in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a value written by FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}

// schema creates the run tables if they do not exist. The column types are
// understood by both PostgreSQL and SQLite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		source TEXT,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		companies INTEGER NOT NULL DEFAULT 0,
		facilities INTEGER NOT NULL DEFAULT 0,
		links INTEGER NOT NULL DEFAULT 0,
		dropped_links INTEGER NOT NULL DEFAULT 0,
		issues TEXT,
		error TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS companies (
		run_id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		company_name TEXT NOT NULL,
		country TEXT NOT NULL,
		original_company_id TEXT,
		original_name TEXT,
		PRIMARY KEY (run_id, company_id)
	)`,
	`CREATE TABLE IF NOT EXISTS facilities (
		run_id TEXT NOT NULL,
		facility_id TEXT NOT NULL,
		facility_name TEXT NOT NULL,
		address TEXT,
		country TEXT,
		lat DOUBLE PRECISION,
		lon DOUBLE PRECISION,
		is_closed BOOLEAN NOT NULL DEFAULT FALSE,
		sector TEXT,
		processing_activity TEXT,
		contributor TEXT,
		created_at TEXT,
		updated_at TEXT,
		original_id TEXT,
		PRIMARY KEY (run_id, facility_id)
	)`,
	`CREATE TABLE IF NOT EXISTS links (
		run_id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		facility_id TEXT NOT NULL,
		PRIMARY KEY (run_id, facility_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_links_company ON links (run_id, company_id)`,
	`CREATE INDEX IF NOT EXISTS idx_companies_country ON companies (run_id, country)`,
}

// EnsureSchema creates missing tables and indexes.
func (c *Connection) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// ErrRunNotFound is returned when a run id has no stored run.
var ErrRunNotFound = errors.New("run not found")
