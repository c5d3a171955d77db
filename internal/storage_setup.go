package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/tramites/internal/collection"
	"github.com/starford/tramites/internal/storage"
	"github.com/starford/tramites/internal/tramite"
)

// OpenStorage opens the adapter selected by cfg. The returned close func is
// never nil.
func OpenStorage(ctx context.Context, cfg StorageConfig) (storage.Adapter, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case DriverMemory, "":
		return storage.NewMemory(), noop, nil
	case DriverFS:
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, noop, fmt.Errorf("create data dir: %w", err)
		}
		fs, err := storage.NewFS(cfg.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("init fs storage: %w", err)
		}
		return fs, noop, nil
	case DriverSQLite:
		db, err := storage.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("init sqlite storage: %w", err)
		}
		return db, db.Close, nil
	case DriverRedis:
		r, err := storage.DialRedis(ctx, cfg.Redis.URL, cfg.Redis.Prefix)
		if err != nil {
			return nil, noop, fmt.Errorf("init redis storage: %w", err)
		}
		return r, r.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// OpenService opens the storage described by cfg and loads every collection.
func OpenService(ctx context.Context, cfg *Config, logger *slog.Logger, opts ...collection.Option) (*tramite.Service, func() error, error) {
	adapter, closeFn, err := OpenStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, closeFn, err
	}
	opts = append([]collection.Option{collection.WithLogger(logger)}, opts...)
	svc, err := tramite.Open(ctx, adapter, opts...)
	if err != nil {
		_ = closeFn()
		return nil, func() error { return nil }, fmt.Errorf("load collections: %w", err)
	}
	return svc, closeFn, nil
}
