// Package redis mirrors session records into Redis so that they survive a
// restart and can be read by other bridge instances.
package redis

import (
	"context"
	"time"

	"PPBridge/global/config"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// NewClient opens a client and pings the server once.
func NewClient(ctx context.Context, rc config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
		PoolSize: rc.PoolSize,
	})

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "redis ping %s", rc.Addr)
	}
	return rdb, nil
}
