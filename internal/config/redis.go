// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"context"
	"fmt"

	"github.com/northbound/fold/internal/logging"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient dials Redis using cfg's resolved RedisAddr/RedisDB/
// RedisPassword (already populated from FOLD_-prefixed viper config, a
// config.yaml, and the plain REDIS_* environment overrides in Load) and
// pings it once to fail fast rather than lazily on first use.
func NewRedisClient(ctx context.Context, cfg *Config) (*redis.Client, error) {
	logging.Printf("config: dialing redis addr=%s db=%d passwordSet=%v", cfg.RedisAddr, cfg.RedisDB, cfg.RedisPassword != "")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("config: ping redis at %s: %w", cfg.RedisAddr, err)
	}
	logging.Printf("config: connected to redis at %s", cfg.RedisAddr)
	return client, nil
}
