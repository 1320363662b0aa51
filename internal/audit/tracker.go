// Package audit records the lifecycle of pipeline runs in the runs table.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"go.uber.org/zap"

	"github.com/oar-pipeline/internal/db"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var runColumns = []string{
	"run_id", "source", "status", "started_at", "finished_at",
	"companies", "facilities", "links", "dropped_links", "issues", "error",
}

// Run is one recorded pipeline run.
type Run struct {
	RunID        string         `json:"run_id"`
	Source       string         `json:"source,omitempty"`
	Status       string         `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	Companies    int            `json:"companies"`
	Facilities   int            `json:"facilities"`
	Links        int            `json:"links"`
	DroppedLinks int            `json:"dropped_links"`
	Issues       map[string]int `json:"issues,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Outcome is what a finished run reports.
type Outcome struct {
	Companies    int
	Facilities   int
	Links        int
	DroppedLinks int
	Issues       map[string]int
}

type runRow struct {
	RunID        string         `db:"run_id"`
	Source       sql.NullString `db:"source"`
	Status       string         `db:"status"`
	StartedAt    string         `db:"started_at"`
	FinishedAt   sql.NullString `db:"finished_at"`
	Companies    int            `db:"companies"`
	Facilities   int            `db:"facilities"`
	Links        int            `db:"links"`
	DroppedLinks int            `db:"dropped_links"`
	Issues       sql.NullString `db:"issues"`
	Error        sql.NullString `db:"error"`
}

// Tracker manages the audit trail of pipeline runs
type Tracker struct {
	conn *db.Connection
	log  *zap.Logger
	now  func() time.Time
}

// NewTracker creates a new audit tracker
func NewTracker(conn *db.Connection, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{conn: conn, log: log, now: time.Now}
}

// Start records a new running run.
func (t *Tracker) Start(ctx context.Context, runID, source string) error {
	ib := t.conn.Flavor().NewInsertBuilder()
	ib.InsertInto("runs")
	ib.Cols("run_id", "source", "status", "started_at")
	ib.Values(runID, source, StatusRunning, db.FormatTime(t.now()))

	query, args := ib.Build()
	if _, err := t.conn.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	t.log.Debug("Recorded run start", zap.String("run_id", runID))
	return nil
}

// Finish marks a run completed with its outcome.
func (t *Tracker) Finish(ctx context.Context, runID string, out Outcome) error {
	issues, err := json.Marshal(out.Issues)
	if err != nil {
		return fmt.Errorf("failed to encode issues: %w", err)
	}

	ub := t.conn.Flavor().NewUpdateBuilder()
	ub.Update("runs")
	ub.Set(
		ub.Assign("status", StatusCompleted),
		ub.Assign("finished_at", db.FormatTime(t.now())),
		ub.Assign("companies", out.Companies),
		ub.Assign("facilities", out.Facilities),
		ub.Assign("links", out.Links),
		ub.Assign("dropped_links", out.DroppedLinks),
		ub.Assign("issues", string(issues)),
	)
	ub.Where(ub.Equal("run_id", runID))
	return t.update(ctx, runID, ub)
}

// Fail marks a run failed with the error that stopped it.
func (t *Tracker) Fail(ctx context.Context, runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	ub := t.conn.Flavor().NewUpdateBuilder()
	ub.Update("runs")
	ub.Set(
		ub.Assign("status", StatusFailed),
		ub.Assign("finished_at", db.FormatTime(t.now())),
		ub.Assign("error", msg),
	)
	ub.Where(ub.Equal("run_id", runID))
	return t.update(ctx, runID, ub)
}

func (t *Tracker) update(ctx context.Context, runID string, ub *sqlbuilder.UpdateBuilder) error {
	query, args := ub.Build()
	res, err := t.conn.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", db.ErrRunNotFound, runID)
	}
	return nil
}

// Get returns the run with the given id.
func (t *Tracker) Get(ctx context.Context, runID string) (*Run, error) {
	sb := t.conn.Flavor().NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From("runs")
	sb.Where(sb.Equal("run_id", runID))

	query, args := sb.Build()
	var row runRow
	if err := t.conn.DB.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", db.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return row.toRun()
}

// Latest returns the most recently started completed run.
func (t *Tracker) Latest(ctx context.Context) (*Run, error) {
	runs, err := t.list(ctx, StatusCompleted, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, db.ErrRunNotFound
	}
	return &runs[0], nil
}

// List returns up to limit runs, newest first.
func (t *Tracker) List(ctx context.Context, limit int) ([]Run, error) {
	return t.list(ctx, "", limit)
}

func (t *Tracker) list(ctx context.Context, status string, limit int) ([]Run, error) {
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	sb := t.conn.Flavor().NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From("runs")
	if status != "" {
		sb.Where(sb.Equal("status", status))
	}
	sb.OrderBy("started_at DESC", "run_id DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []runRow
	if err := t.conn.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		run, err := row.toRun()
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func (r runRow) toRun() (*Run, error) {
	started, err := db.ParseTime(r.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("run %s: bad started_at: %w", r.RunID, err)
	}

	run := &Run{
		RunID:        r.RunID,
		Source:       r.Source.String,
		Status:       r.Status,
		StartedAt:    started,
		Companies:    r.Companies,
		Facilities:   r.Facilities,
		Links:        r.Links,
		DroppedLinks: r.DroppedLinks,
		Error:        r.Error.String,
	}
	if r.FinishedAt.Valid {
		finished, err := db.ParseTime(r.FinishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("run %s: bad finished_at: %w", r.RunID, err)
		}
		run.FinishedAt = &finished
	}
	if r.Issues.Valid && r.Issues.String != "" {
		if err := json.Unmarshal([]byte(r.Issues.String), &run.Issues); err != nil {
			return nil, fmt.Errorf("run %s: bad issues: %w", r.RunID, err)
		}
	}
	return run, nil
}
