// Package metrics appends gameplay samples posted by game clients to a
// per-game PostgreSQL table. The bridge never reads them back.
package metrics

import (
	"context"
	"time"

	"PPBridge/global/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// NewPool opens a pgx pool and pings it once.
func NewPool(ctx context.Context, dc config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dc.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "parsing database config")
	}
	if dc.MaxConns > 0 {
		poolCfg.MaxConns = dc.MaxConns
	}
	poolCfg.MinConns = dc.MinConns
	if dc.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = dc.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating connection pool")
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "pinging database")
	}
	return pool, nil
}
