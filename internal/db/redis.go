package db

import (
	"context"

	"EasyAPI/internal/logger"

	"github.com/redis/go-redis/v9"
)

// InitRedis takes the address explicitly; an empty address means no cache.
func InitRedis(addr string) *redis.Client {
	if addr == "" {
		logger.Warn("redis_disabled", nil)
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr: addr,
	})
}

func PingRedis(ctx context.Context, rdb *redis.Client) error {
	return rdb.Ping(ctx).Err()
}
