// Package mysql stores scans in MySQL 8.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/bryanwahyu/sbom-tm/internal/infra/db/sqlrepo"
)

//go:embed schema.sql
var schema string

// Connect opens a MySQL pool. parseTime and UTC are forced on whatever the
// DSN says, the repositories scan DATETIME columns into time.Time.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	dsn, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	return sqlrepo.OpenPool(ctx, "mysql", dsn, sqlrepo.ServerPool)
}

// NormalizeDSN parses dsn and turns on parseTime with UTC locations.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}
	return cfg.FormatDSN(), nil
}

// Migrate creates the tables when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	return sqlrepo.Migrate(ctx, db, schema)
}
