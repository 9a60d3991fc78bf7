// Package db picks the SQL backend from configuration.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryanwahyu/sbom-tm/internal/config"
	"github.com/bryanwahyu/sbom-tm/internal/infra/db/mysql"
	"github.com/bryanwahyu/sbom-tm/internal/infra/db/postgres"
	"github.com/bryanwahyu/sbom-tm/internal/infra/db/sqlite"
	"github.com/bryanwahyu/sbom-tm/internal/infra/db/sqlrepo"
)

// Repos bundles the repositories sharing one pool.
type Repos struct {
	DB         *sql.DB
	Dialect    sqlrepo.Dialect
	Threats    *sqlrepo.Store
	ScanErrors *sqlrepo.ScanErrorRepository
	Analyses   *sqlrepo.AnalystRepository
}

// Open connects to the configured database and migrates it.
func Open(ctx context.Context, cfg *config.Config) (*Repos, error) {
	var (
		conn    *sql.DB
		dialect sqlrepo.Dialect
		migrate func(context.Context, *sql.DB) error
		err     error
	)
	switch cfg.Database.Driver {
	case "mysql":
		conn, err = mysql.Connect(ctx, cfg.DSN())
		dialect, migrate = sqlrepo.MySQL, mysql.Migrate
	case "postgres":
		conn, err = postgres.Connect(ctx, cfg.DSN())
		dialect, migrate = sqlrepo.Postgres, postgres.Migrate
	default:
		conn, err = sqlite.Connect(ctx, cfg.DSN())
		dialect, migrate = sqlrepo.SQLite, sqlite.Migrate
	}
	if err != nil {
		return nil, fmt.Errorf("connecting %s: %w", cfg.Database.Driver, err)
	}
	if err := migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return Wrap(conn, dialect), nil
}

// Wrap builds the repositories over an open pool.
func Wrap(conn *sql.DB, d sqlrepo.Dialect) *Repos {
	return &Repos{
		DB:         conn,
		Dialect:    d,
		Threats:    sqlrepo.New(conn, d),
		ScanErrors: sqlrepo.NewScanErrorRepository(conn, d),
		Analyses:   sqlrepo.NewAnalystRepository(conn, d),
	}
}

func (r *Repos) Close() error {
	return r.DB.Close()
}
