package cache

import (
	"context"
	"log"
	"log/slog"

	"challenge_gateway/internal/platform/config"

	"github.com/redis/go-redis/v9"
)

// RDB backs verification grants and the local draft cache.
var RDB *redis.Client

func ConnectRedis() {
	RDB = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
	})

	ctx := context.Background()
	_, err := RDB.Ping(ctx).Result()
	if err != nil {
		log.Fatalf("Could not connect to Redis: %v", err)
	}
	slog.Info("connected to Redis", "addr", config.AppConfig.RedisAddr)
}

func CloseRedis() {
	if RDB != nil {
		RDB.Close()
		slog.Info("redis connection closed")
	}
}
