package core

import (
	"context"
	"fmt"

	"countries/internal/config"
	"countries/internal/infra/persistence/postgres"
	"countries/internal/infra/persistence/sqlite"
	"countries/internal/infra/persistence/sqlstore"
)

// StorageDriver identifies a concrete database backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory sqlite (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenStore opens and migrates the database selected by cfg. Defaults to
// sqlite when the driver is unset.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (*sqlstore.Store, error) {
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return sqlite.Open(ctx, sqlite.MemoryPath)
	case StorageSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case StoragePostgres:
		return postgres.Open(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// Open opens the configured store and builds a manager over it.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Manager, error) {
	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	m, err := NewManager(store, cfg, opts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return m, nil
}
