package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearKeys removes every stored API key. The schema is kept.
func ClearKeys(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing api_keys", clearLogPrefix))

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE api_keys`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - api_keys cleared", clearLogPrefix))
	return nil
}
