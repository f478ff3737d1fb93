package database

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"

	"github.com/engagemarket/backend/internal/logging"
)

// InitRedis initializes the Redis client from viper settings. It returns nil
// when Redis is unreachable so callers can fall back to log-only delivery.
func InitRedis(ctx context.Context) *redis.Client {
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	log := logging.For("redis")
	addr := viper.GetString("redis.host") + ":" + viper.GetString("redis.port")
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).WithField("addr", addr).Warn("[REDIS] connection failed, continuing without Redis")
		rdb.Close()
		return nil
	}

	log.WithField("addr", addr).Info("[REDIS] connection established")
	return rdb
}
