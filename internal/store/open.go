package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"field-sync-service/internal/config"
	"field-sync-service/internal/logger"
)

// Open returns the KV backend selected by cfg.Type.
func Open(ctx context.Context, cfg config.StorageConfig) (KV, error) {
	logger.Log.Info("Opening local storage",
		zap.String("type", cfg.Type),
		zap.String("path", cfg.Path),
		zap.Bool("in_memory", cfg.InMemory),
	)

	switch cfg.Type {
	case config.StorageBadger:
		if !cfg.InMemory {
			if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create storage dir: %w", err)
			}
		}
		return NewBadgerStore(cfg.Path, cfg.InMemory)
	case config.StorageSQLite:
		path := cfg.Path
		if cfg.InMemory {
			path = ":memory:"
		} else if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create storage dir: %w", err)
		}
		return NewSQLiteStore(ctx, path)
	case config.StorageMySQL:
		return NewMySQLStore(ctx, cfg.MySQL)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
