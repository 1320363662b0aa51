package web

import (
	"net"
	"strconv"
	"time"

	"github.com/oar-pipeline/internal/config"
)

// Config represents the web server configuration
type Config struct {
	Host            string
	Port            int
	APIKey          string
	CORSOrigins     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            8080,
		CORSOrigins:     []string{"*"},
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// ConfigFrom derives the server settings from the pipeline configuration.
func ConfigFrom(c *config.Config) Config {
	cfg := DefaultConfig()
	cfg.Host = c.HTTPHost
	cfg.Port = c.HTTPPort
	cfg.APIKey = c.APIKey
	if len(c.CORSOrigins) > 0 {
		cfg.CORSOrigins = c.CORSOrigins
	}
	return cfg
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
