package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions selects the Redis server backing the session store
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisClient is the connection shared by RedisStore
type RedisClient struct {
	client *redis.Client
	addr   string
}

// NewRedisClient dials opts.Addr and fails unless the server answers a ping
func NewRedisClient(ctx context.Context, opts RedisOptions) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,

		// session records are small and written rarely
		PoolSize:     4,
		MinIdleConns: 1,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	return &RedisClient{client: client, addr: opts.Addr}, nil
}

// Addr returns the server address
func (r *RedisClient) Addr() string {
	return r.addr
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
