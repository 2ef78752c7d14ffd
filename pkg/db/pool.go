// Package db stores API keys in Postgres via pgx.
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// DefaultMaxConns bounds the key store pool. Key lookups are single-row
// reads, so a small pool serves many dispatchers.
const DefaultMaxConns = 8

// ErrSchemaMissing is returned by CheckKeyStore when api_keys does not exist.
var ErrSchemaMissing = errors.New("api_keys table not found; run `dispatcher migrate up` or set RUN_MIGRATIONS=true")

// NewPoolParams holds parameters for NewPool.
type NewPoolParams struct {
	URL string
	// AppName is reported to Postgres as application_name.
	AppName  string
	MaxConns int32
}

// poolConfig parses the URL and applies key store settings.
func poolConfig(params NewPoolParams) (*pgxpool.Config, error) {
	if params.URL == "" {
		return nil, fmt.Errorf("%s - database URL is empty", logPrefix)
	}
	config, err := pgxpool.ParseConfig(params.URL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}
	config.MaxConns = params.MaxConns
	if config.MaxConns <= 0 {
		config.MaxConns = DefaultMaxConns
	}
	config.MinConns = 1
	if params.AppName != "" {
		config.ConnConfig.RuntimeParams["application_name"] = params.AppName
	}
	return config, nil
}

// NewPool connects to the key store database and pings it.
func NewPool(ctx context.Context, params NewPoolParams) (*pgxpool.Pool, error) {
	config, err := poolConfig(params)
	if err != nil {
		return nil, err
	}
	slog.Info(fmt.Sprintf("%s - Connecting to %s/%s as %q (max %d conns)", logPrefix,
		config.ConnConfig.Host, config.ConnConfig.Database, params.AppName, config.MaxConns))

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}
	return pool, nil
}

// CheckKeyStore reports ErrSchemaMissing when the api_keys table has not
// been migrated.
func CheckKeyStore(ctx context.Context, pool *pgxpool.Pool) error {
	var found bool
	if err := pool.QueryRow(ctx, `SELECT to_regclass('api_keys') IS NOT NULL`).Scan(&found); err != nil {
		return fmt.Errorf("%s - failed to inspect schema: %w", logPrefix, err)
	}
	if !found {
		return fmt.Errorf("%s - %w", logPrefix, ErrSchemaMissing)
	}
	return nil
}
