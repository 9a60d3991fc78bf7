// Package postgres stores scans in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/bryanwahyu/sbom-tm/internal/infra/db/sqlrepo"
)

//go:embed schema.sql
var schema string

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	dsn, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	return sqlrepo.OpenPool(ctx, "postgres", dsn, sqlrepo.ServerPool)
}

// NormalizeDSN converts postgres:// URLs into the key=value form; other
// DSNs are returned unchanged.
func NormalizeDSN(dsn string) (string, error) {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return dsn, nil
	}
	kv, err := pq.ParseURL(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid postgres url: %w", err)
	}
	return kv, nil
}

// Migrate creates the tables and indexes when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	return sqlrepo.Migrate(ctx, db, schema)
}
