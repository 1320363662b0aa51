// Package config resolves pipeline settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// Config holds every setting of the pipeline. It is built once by the CLI
// and passed to the components that need it.
type Config struct {
	DataDir       string
	RawDir        string
	CleanedDir    string
	RelationalDir string
	OutputsDir    string
	FinalDir      string

	APIURL         string
	BulkURL        string
	Countries      []string
	MinCompanies   int
	FetchTimeout   time.Duration
	FetchRetries   int
	FetchBackoff   time.Duration
	FetchRateLimit time.Duration
	FetchMaxPages  int

	DBDriver string
	DBDSN    string

	HTTPHost    string
	HTTPPort    int
	APIKey      string
	CORSOrigins []string

	Workers      int
	KeywordsFile string
	Workbook     bool

	LogLevel  string
	LogFormat string
	LogDir    string
}

// DefaultCountries are the registry countries processed by default.
var DefaultCountries = []string{"Morocco", "Spain", "Portugal", "Italy", "France", "Greece", "Malta"}

// Load builds a Config from the current environment. Call LoadEnv first
// to pick up a .env file.
func Load() (*Config, error) {
	dataDir := GetEnv("OAR_DATA_DIR", "data")

	cfg := &Config{
		DataDir:       dataDir,
		RawDir:        GetEnv("OAR_RAW_DIR", filepath.Join(dataDir, "raw")),
		CleanedDir:    GetEnv("OAR_CLEANED_DIR", filepath.Join(dataDir, "cleaned")),
		RelationalDir: GetEnv("OAR_RELATIONAL_DIR", filepath.Join(dataDir, "relational")),
		OutputsDir:    GetEnv("OAR_OUTPUTS_DIR", filepath.Join(dataDir, "outputs")),
		FinalDir:      GetEnv("OAR_FINAL_DIR", filepath.Join(dataDir, "final")),

		APIURL:         GetEnv("OAR_API_URL", "https://openapparel.org/api"),
		BulkURL:        GetEnv("OAR_BULK_URL", ""),
		Countries:      GetEnvList("OAR_COUNTRIES", DefaultCountries),
		MinCompanies:   GetEnvInt("OAR_MIN_COMPANIES", 10000),
		FetchTimeout:   GetEnvDuration("OAR_FETCH_TIMEOUT", 60*time.Second),
		FetchRetries:   GetEnvInt("OAR_FETCH_RETRIES", 3),
		FetchBackoff:   GetEnvDuration("OAR_FETCH_BACKOFF", time.Second),
		FetchRateLimit: GetEnvDuration("OAR_FETCH_RATE_LIMIT", 500*time.Millisecond),
		FetchMaxPages:  GetEnvInt("OAR_FETCH_MAX_PAGES", 1000),

		DBDriver: GetEnv("OAR_DB_DRIVER", ""),
		DBDSN:    GetEnv("OAR_DB_DSN", ""),

		HTTPHost:    GetEnv("OAR_HTTP_HOST", "localhost"),
		HTTPPort:    GetEnvInt("OAR_HTTP_PORT", 8080),
		APIKey:      GetEnv("OAR_API_KEY", ""),
		CORSOrigins: GetEnvList("OAR_CORS_ORIGINS", []string{"*"}),

		Workers:      GetEnvInt("OAR_WORKERS", runtime.NumCPU()),
		KeywordsFile: GetEnv("OAR_KEYWORDS_FILE", ""),
		Workbook:     GetEnvBool("OAR_WORKBOOK", true),

		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),
		LogDir:    GetEnv("OAR_LOG_DIR", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("OAR_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.MinCompanies < 0 {
		return fmt.Errorf("OAR_MIN_COMPANIES must not be negative, got %d", c.MinCompanies)
	}
	if c.FetchRetries < 0 {
		return fmt.Errorf("OAR_FETCH_RETRIES must not be negative, got %d", c.FetchRetries)
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("OAR_HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if len(c.Countries) == 0 {
		return fmt.Errorf("OAR_COUNTRIES must list at least one country")
	}
	switch c.DBDriver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("OAR_DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.DBDriver != "" && c.DBDSN == "" {
		return fmt.Errorf("OAR_DB_DSN is required when OAR_DB_DRIVER is set")
	}
	return nil
}

// StoreEnabled reports whether a database is configured.
func (c *Config) StoreEnabled() bool {
	return c.DBDriver != ""
}

// HTTPAddr returns the listen address of the web API.
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(c.HTTPHost, strconv.Itoa(c.HTTPPort))
}
