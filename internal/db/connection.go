package db

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"subject-choices/internal/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

//go:embed schema/*.sql
var schemaFS embed.FS

func NewConnection(cfg *config.Config) (*sqlx.DB, error) {
	db, err := Open(cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	if cfg.Database.Driver != DriverSQLite {
		db.SetMaxOpenConns(cfg.Database.MaxConnections)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConnections)
		db.SetConnMaxLifetime(cfg.Database.ConnectionLifetime)
	}

	return db, nil
}

// Open connects and pings. SQLite is pinned to a single connection so that
// in-memory databases are shared and writers never contend.
func Open(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}

	return db, nil
}

// Migrate applies the embedded schema for the connection's driver. Statements are idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	content, err := schemaFS.ReadFile(fmt.Sprintf("schema/%s.sql", db.DriverName()))
	if err != nil {
		return fmt.Errorf("no schema for driver %s: %w", db.DriverName(), err)
	}

	for _, stmt := range strings.Split(string(content), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	return nil
}
