package core

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/infra/persistence/memory"
	"lotledger/internal/infra/persistence/postgres"
	"lotledger/internal/infra/persistence/sqlite"
	"lotledger/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and configures a backend.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	LockTimeout time.Duration
	// SkipMigrations leaves the Postgres schema untouched on open.
	SkipMigrations bool
}

// OpenPersistentStore opens the configured backend. An empty driver selects
// sqlite.
func OpenPersistentStore(ctx context.Context, opts StorageOptions, engine *domain.RulesEngine) (domain.PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	driver := opts.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine, memory.WithLockTimeout(opts.LockTimeout)), nil
	case StorageSQLite:
		return sqlite.NewStore(opts.SQLitePath, engine, opts.LockTimeout)
	case StoragePostgres:
		pgOpts := []postgres.Option{postgres.WithLockTimeout(opts.LockTimeout)}
		if opts.SkipMigrations {
			pgOpts = append(pgOpts, postgres.WithoutMigrations())
		}
		return postgres.NewStore(ctx, opts.PostgresDSN, engine, pgOpts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
