package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const migrationsLogPrefix = "db:migrations"

const downSuffix = ".down.sql"

// LoadMigrationFiles reads migrations from dir sorted by name. NNN_x.sql is
// the forward step; NNN_x.down.sql, when present, is its rollback.
func LoadMigrationFiles(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	var names []string
	downs := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		if strings.HasSuffix(name, downSuffix) {
			downs[strings.TrimSuffix(name, downSuffix)] = name
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		up, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, name, err)
		}
		m := Migration{Name: strings.TrimSuffix(name, ".sql"), Up: string(up)}
		if downName, ok := downs[m.Name]; ok {
			down, err := os.ReadFile(filepath.Join(dir, downName))
			if err != nil {
				return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, downName, err)
			}
			m.Down = string(down)
		}
		out = append(out, m)
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d migration files from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name    TEXT PRIMARY KEY,
	applied TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// RunMigrations applies migrations not yet recorded in schema_migrations,
// each in its own transaction.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("%s - failed to create schema_migrations: %w", migrationsLogPrefix, err)
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	count := 0
	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%s - migration %s failed: %w", migrationsLogPrefix, m.Name, err)
		}
		slog.Info(fmt.Sprintf("%s - Applied %s", migrationsLogPrefix, m.Name))
		count++
	}
	slog.Info(fmt.Sprintf("%s - Migrations complete, %d applied", migrationsLogPrefix, count))
	return nil
}

func appliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read schema_migrations: %w", migrationsLogPrefix, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s - failed to scan schema_migrations: %w", migrationsLogPrefix, err)
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

// MigrationState is one migration and whether it has been applied.
type MigrationState struct {
	Name    string
	Applied bool
}

// MigrationStatus reports which migrations are applied.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) ([]MigrationState, error) {
	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("%s - failed to create schema_migrations: %w", migrationsLogPrefix, err)
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return nil, err
	}
	return migrationStates(migrations, applied), nil
}

func migrationStates(migrations []Migration, applied map[string]bool) []MigrationState {
	out := make([]MigrationState, len(migrations))
	for i, m := range migrations {
		out[i] = MigrationState{Name: m.Name, Applied: applied[m.Name]}
	}
	return out
}

// lastApplied returns the newest applied migration, or false.
func lastApplied(migrations []Migration, applied map[string]bool) (Migration, bool) {
	for i := len(migrations) - 1; i >= 0; i-- {
		if applied[migrations[i].Name] {
			return migrations[i], true
		}
	}
	return Migration{}, false
}

// MigrationDown rolls back the newest applied migration. It returns the
// rolled back name, or "" when nothing is applied.
func MigrationDown(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) (string, error) {
	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return "", fmt.Errorf("%s - failed to create schema_migrations: %w", migrationsLogPrefix, err)
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return "", err
	}
	m, ok := lastApplied(migrations, applied)
	if !ok {
		return "", nil
	}
	if m.Down == "" {
		return "", fmt.Errorf("%s - %s has no %s file", migrationsLogPrefix, m.Name, downSuffix)
	}
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, m.Down); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE name = $1`, m.Name)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%s - rollback of %s failed: %w", migrationsLogPrefix, m.Name, err)
	}
	slog.Info(fmt.Sprintf("%s - Rolled back %s", migrationsLogPrefix, m.Name))
	return m.Name, nil
}
