package graphstore

import (
	"context"
	"fmt"

	"memcore/internal/config"
)

// NewBackend constructs a Backend from configuration.
func NewBackend(ctx context.Context, cfg config.GraphStoreConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryBackend(), nil
	case "postgres", "pg":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("graphstore: postgres backend requires postgres_dsn")
		}
		pool, err := NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("graphstore: connect postgres: %w", err)
		}
		return NewPostgresBackend(ctx, pool)
	default:
		return nil, fmt.Errorf("graphstore: unsupported backend %q", cfg.Backend)
	}
}
