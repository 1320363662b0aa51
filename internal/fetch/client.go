// Package fetch downloads facility records from the registry API.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/oar-pipeline/internal/model"
	"github.com/oar-pipeline/internal/normalize"
)

// Options configures a Client.
type Options struct {
	BaseURL      string
	BulkURL      string
	Countries    []string
	MinCompanies int
	Timeout      time.Duration
	Retries      int
	Backoff      time.Duration
	RateLimit    time.Duration
	MaxPages     int
	UserAgent    string
}

// DefaultOptions returns the options used by the pipeline when none are
// configured.
func DefaultOptions() Options {
	return Options{
		BaseURL:      "https://openapparel.org/api",
		Countries:    normalize.KnownCountries(),
		MinCompanies: 10000,
		Timeout:      60 * time.Second,
		Retries:      3,
		Backoff:      time.Second,
		RateLimit:    500 * time.Millisecond,
		MaxPages:     1000,
		UserAgent:    "oarpipe/1.0",
	}
}

// Stats describes one fetch.
type Stats struct {
	Pages            int `json:"pages"`
	Features         int `json:"features"`
	Kept             int `json:"kept"`
	OutsideCountries int `json:"outside_countries"`
	Companies        int `json:"companies"`
}

// statusError is a non-2xx response.
type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.code, e.status)
}

func (e *statusError) retryable() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

// Client fetches facility features and converts them into raw records.
type Client struct {
	opts       Options
	httpClient *http.Client
	limiter    *rate.Limiter
	countries  map[string]bool
	log        *zap.Logger
}

// NewClient creates a registry client.
func NewClient(log *zap.Logger, opts Options) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Every(opts.RateLimit)
	}
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}

	countries := make(map[string]bool, len(opts.Countries))
	for _, c := range opts.Countries {
		countries[normalize.Country(c)] = true
	}

	return &Client{
		opts: opts,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter:   rate.NewLimiter(limit, 1),
		countries: countries,
		log:       log,
	}
}

// FetchFacilities downloads every page of the facilities endpoint and
// returns the records located in the configured countries. Fewer distinct
// companies than the configured minimum is logged, not fatal.
func (c *Client) FetchFacilities(ctx context.Context) ([]model.RawRecord, Stats, error) {
	var (
		records   []model.RawRecord
		stats     Stats
		companies = make(map[string]bool)
	)

	next, err := c.firstPageURL()
	if err != nil {
		return nil, stats, err
	}

	for next != "" {
		if stats.Pages >= c.opts.MaxPages {
			c.log.Warn("Stopping at page limit", zap.Int("max_pages", c.opts.MaxPages))
			break
		}

		page, err := c.getPage(ctx, next)
		if err != nil {
			return nil, stats, fmt.Errorf("failed to fetch page %d: %w", stats.Pages+1, err)
		}
		stats.Pages++
		stats.Features += len(page.Features)

		for _, f := range page.Features {
			rec := toRecord(f)
			if len(c.countries) > 0 && !c.countries[normalize.Country(model.Deref(rec.Country))] {
				stats.OutsideCountries++
				continue
			}
			if rec.CompanyID != nil {
				companies[*rec.CompanyID] = true
			}
			records = append(records, rec)
		}

		next = ""
		if page.Next != nil {
			next = *page.Next
		}
		c.log.Debug("Fetched page",
			zap.Int("page", stats.Pages),
			zap.Int("features", len(page.Features)),
			zap.Int("kept", len(records)))
	}

	stats.Kept = len(records)
	stats.Companies = len(companies)

	if stats.Companies < c.opts.MinCompanies {
		c.log.Warn("Fewer companies than expected",
			zap.Int("companies", stats.Companies),
			zap.Int("min_companies", c.opts.MinCompanies))
	}
	c.log.Info("Fetched facilities",
		zap.Int("pages", stats.Pages),
		zap.Int("features", stats.Features),
		zap.Int("kept", stats.Kept),
		zap.Int("companies", stats.Companies))

	return records, stats, nil
}

func (c *Client) firstPageURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(c.opts.BaseURL, "/") + "/facilities/")
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.opts.BaseURL, err)
	}
	q := u.Query()
	q.Set("format", "json")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// getPage fetches and decodes one page.
func (c *Client) getPage(ctx context.Context, pageURL string) (*featureCollection, error) {
	var page featureCollection
	err := c.get(ctx, pageURL, "application/json", func(body io.Reader) error {
		page = featureCollection{}
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// get requests target and hands the body of a 200 response to read,
// retrying transport errors, read errors, 429 and 5xx responses with
// exponential backoff.
func (c *Client) get(ctx context.Context, target, accept string, read func(io.Reader) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if attempt > 0 {
			delay := c.opts.Backoff << (attempt - 1)
			c.log.Warn("Retrying request",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := c.doGet(ctx, target, accept, read)
		if err == nil {
			return nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return err
		}
		var pe *permanentError
		if errors.As(err, &pe) {
			return pe.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", c.opts.Retries+1, lastErr)
}

func (c *Client) doGet(ctx context.Context, target, accept string, read func(io.Reader) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &statusError{code: resp.StatusCode, status: resp.Status}
	}
	return read(resp.Body)
}

// toRecord maps a GeoJSON feature onto a raw record. GeoJSON orders
// coordinates [lon, lat].
func toRecord(f feature) model.RawRecord {
	p := f.Properties

	id := p.OSID
	if id == "" {
		id = f.ID
	}
	country := p.Country
	if country == "" {
		country = p.CountryName
	}

	rec := model.RawRecord{
		ID:                 model.StringPtr(string(id)),
		Name:               model.StringPtr(string(p.Name)),
		Address:            model.StringPtr(string(p.Address)),
		Country:            model.StringPtr(string(country)),
		IsClosed:           bool(p.IsClosed),
		CreatedAt:          parseTime(string(p.CreatedAt)),
		UpdatedAt:          parseTime(string(p.UpdatedAt)),
		Contributor:        model.StringPtr(string(p.Contributor)),
		Sector:             model.StringPtr(string(p.Sector)),
		ProcessingActivity: model.StringPtr(string(p.ProcessingActivity)),
	}

	if f.Geometry != nil && len(f.Geometry.Coordinates) >= 2 {
		lon, lat := f.Geometry.Coordinates[0], f.Geometry.Coordinates[1]
		rec.Lat, rec.Lon = &lat, &lon
	}

	if len(p.Contributors) > 0 {
		rec.CompanyID = model.StringPtr(string(p.Contributors[0].ID))
		rec.CompanyName = model.StringPtr(string(p.Contributors[0].Name))
	}
	return rec
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
