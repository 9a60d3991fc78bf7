package sqlrepo

import (
	"context"
	"database/sql"
	"time"
)

// Pool sizes a server-backed connection pool.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// ServerPool is used for MySQL and Postgres.
var ServerPool = Pool{MaxOpen: 25, MaxIdle: 10, MaxLifetime: 30 * time.Minute}

const pingTimeout = 5 * time.Second

// OpenPool opens driver with dsn, applies p and pings the server.
func OpenPool(ctx context.Context, driver, dsn string, p Pool) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(p.MaxOpen)
	db.SetMaxIdleConns(p.MaxIdle)
	db.SetConnMaxLifetime(p.MaxLifetime)

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
