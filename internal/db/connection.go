// Package db opens the optional SQL database a run can be persisted to.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrUnknownDriver is returned for a driver other than postgres or sqlite.
var ErrUnknownDriver = errors.New("unknown database driver")

// Connection holds the database connection
type Connection struct {
	DB     *sqlx.DB
	Driver string
}

// Open opens and pings a database. driver is "postgres" (lib/pq) or
// "sqlite" (modernc.org/sqlite).
func Open(ctx context.Context, driver, dsn string) (*Connection, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	if driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY and keeps :memory: databases shared.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
	}

	return &Connection{DB: db, Driver: driver}, nil
}

// Flavor returns the SQL builder flavor matching the driver.
func (c *Connection) Flavor() sqlbuilder.Flavor {
	if c.Driver == DriverSQLite {
		return sqlbuilder.SQLite
	}
	return sqlbuilder.PostgreSQL
}

// Ping checks the database is reachable.
func (c *Connection) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the database connection
func (c *Connection) Close() error {
	return c.DB.Close()
}
