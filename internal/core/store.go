package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dhruvsoni1802/browser-hub/internal/config"
	"github.com/dhruvsoni1802/browser-hub/internal/storage"
)

// OpenStore builds the session store selected by SESSION_BACKEND.
// The returned closer releases backend connections.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, func() error, error) {
	switch cfg.SessionBackend {
	case config.BackendRedis:
		client, err := storage.NewRedisClient(ctx, storage.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("session store ready", "backend", cfg.SessionBackend, "addr", client.Addr(), "ttl", cfg.SessionTTL)
		return storage.NewRedisStore(client, cfg.SessionTTL), client.Close, nil

	case config.BackendFile, "":
		store, err := storage.NewFileStore(cfg.SessionsDir)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("session store ready", "backend", config.BackendFile, "dir", store.Dir())
		return store, func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}
