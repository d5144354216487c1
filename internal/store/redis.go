package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every key this package writes to Redis.
const KeyPrefix = "leadsim:"

// Redis is a key-value store backed by a Redis server.
type Redis struct {
	rdb   *redis.Client
	quota int
}

// NewRedis connects to the server at url (redis://[user:pass@]host:port/db)
// and checks it with a PING.
func NewRedis(ctx context.Context, url string, quota int) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb, quota: quota}, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

// Save stores value under key without expiry.
func (r *Redis) Save(ctx context.Context, key string, value []byte) error {
	if err := checkQuota(r.quota, key, value); err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, KeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Load returns the value stored under key.
func (r *Redis) Load(ctx context.Context, key string) ([]byte, error) {
	value, err := r.rdb.Get(ctx, KeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return value, nil
}

// Clear removes key.
func (r *Redis) Clear(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, KeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("clear %s: %w", key, err)
	}
	return nil
}
