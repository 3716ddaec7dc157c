package infra

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/fystack/spendkit/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// RedisClient abstracts the Redis client methods the engine uses.
type RedisClient interface {
	GetClient() *redis.Client
	Set(key string, value any, expiration time.Duration) error
	Get(key string) (string, error)
	Del(keys ...string) error
	Close() error
}

type RedisWrapper struct {
	client *redis.Client
}

func NewRedisClient(addr string, password string) (RedisClient, error) {
	cpus := runtime.GOMAXPROCS(0)
	poolSize := cpus * 10 // ~10 connections per CPU
	minIdle := cpus * 2   // keep a few always idle

	opts := &redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              0,
		PoolSize:        poolSize,
		MinIdleConns:    minIdle,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	}

	client := redis.NewClient(opts)

	// verify connectivity right away
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Connected to Redis", "pong", pong)

	return &RedisWrapper{client: client}, nil
}

func (rw *RedisWrapper) GetClient() *redis.Client {
	return rw.client
}

func (rw *RedisWrapper) Set(key string, value any, expiration time.Duration) error {
	return rw.client.Set(context.Background(), key, value, expiration).Err()
}

func (rw *RedisWrapper) Get(key string) (string, error) {
	val, err := rw.client.Get(context.Background(), key).Result()
	return val, err
}

func (rw *RedisWrapper) Del(keys ...string) error {
	return rw.client.Del(context.Background(), keys...).Err()
}

func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}
