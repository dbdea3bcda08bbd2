package database

import (
	"context"
	"errors"
	"fmt"

	"airfarm/internal/config"
	"airfarm/internal/logger"
	"airfarm/internal/storage"
	"airfarm/internal/storage/noop"
	"airfarm/internal/storage/postgres"
	"airfarm/internal/storage/sqlite"
	"airfarm/internal/types"
)

var (
	// ErrUnsupportedDBType indicates that the provided database type is not supported.
	ErrUnsupportedDBType = errors.New("unsupported database type specified")
	// ErrDBConnectionFailed indicates that the attempt to connect to the database failed.
	ErrDBConnectionFailed = errors.New("database connection failed")
	// ErrMissingConnectionString indicates that the database connection string was not provided.
	ErrMissingConnectionString = errors.New("database connection string is missing")
)

// NewStore creates a state store based on the configured database type.
func NewStore(ctx context.Context, log logger.Logger, cfg config.Database) (storage.Store, error) {
	switch cfg.Type {
	case types.SQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("for SQLite: %w", ErrMissingConnectionString)
		}
		store, err := sqlite.NewStore(ctx, log, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w: %w", ErrDBConnectionFailed, err)
		}
		return store, nil
	case types.Postgres:
		if cfg.URL == "" {
			return nil, fmt.Errorf("for PostgreSQL: %w", ErrMissingConnectionString)
		}
		store, err := postgres.NewStore(ctx, log, cfg.URL, cfg.PoolMaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w: %w", ErrDBConnectionFailed, err)
		}
		return store, nil
	case types.None, "":
		log.Warn("State persistence is disabled; activity history will be lost.")
		return noop.NewStore(), nil
	default:
		return nil, fmt.Errorf("%w: %s (expected '%s', '%s' or '%s')",
			ErrUnsupportedDBType, cfg.Type, types.SQLite, types.Postgres, types.None)
	}
}
