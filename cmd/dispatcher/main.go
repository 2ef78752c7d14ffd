// Package main is the entrypoint for the action-dispatcher server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/morezero/action-dispatcher/internal/config"
	"github.com/morezero/action-dispatcher/internal/server"
	"github.com/morezero/action-dispatcher/pkg/db"
)

const usage = `Usage: dispatcher [command]
       dispatcher serve              Start the dispatcher (NATS queue source, HTTP source).
       dispatcher migrate up         Run database migrations.
       dispatcher migrate down       Roll back the last applied migration.
       dispatcher migrate status     Show migration status.
       dispatcher ensure-db [name]   Create database if missing (default name: dispatcher_test). Uses DATABASE_URL host/user.
       dispatcher clear              Delete all stored API keys; schema is preserved.
       dispatcher seed [file]        Store the apiKeys of a declarations file (default DECLARATIONS_FILE).

Commands:
  serve           (default) Start the action dispatcher.
  migrate up      Run database migrations only.
  migrate down    Roll back the last applied migration.
  migrate status  Show current migration status.
  ensure-db [name] Create database (e.g. dispatcher_test) on same host as DATABASE_URL.
  clear           Remove API keys.
  seed [file]     Seed API keys from declarations.

A .env file in the working directory is loaded first when present.
Environment: NATS_URL, DATABASE_URL (migrate, clear, seed), MIGRATION_PATH, DECLARATIONS_FILE, HTTP_PORT. See README.
`

func main() {
	if err := loadDotEnv(".env"); err != nil {
		log.Fatalf("dispatcher: %v", err)
	}

	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("dispatcher migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("dispatcher migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("dispatcher migrate status: %v", err)
			}
		case "down":
			if err := runMigrateDown(); err != nil {
				log.Fatalf("dispatcher migrate down: %v", err)
			}
		default:
			log.Fatalf("dispatcher migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("dispatcher clear: %v", err)
		}
		return
	case "seed":
		file := ""
		if len(args) > 1 {
			file = args[1]
		}
		if err := runSeed(file); err != nil {
			log.Fatalf("dispatcher seed: %v", err)
		}
		return
	case "ensure-db":
		dbName := "dispatcher_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("dispatcher ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("dispatcher: %v", err)
	}
}

// loadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// openDB loads config, validates it for DB commands and opens a pool.
func openDB(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, db.NewPoolParams{URL: cfg.DatabaseURL, AppName: cfg.COMMSName + "-admin", MaxConns: 2})
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, pool, nil
}

func runMigrateUp() error {
	ctx := context.Background()
	cfg, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	ctx := context.Background()
	cfg, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	states, err := db.MigrationStatus(ctx, pool, migrations)
	if err != nil {
		return err
	}
	fmt.Print(formatStatus(states))
	return nil
}

func formatStatus(states []db.MigrationState) string {
	if len(states) == 0 {
		return "No migrations found.\n"
	}
	out := ""
	for _, s := range states {
		mark := "pending"
		if s.Applied {
			mark = "applied"
		}
		out += fmt.Sprintf("  %-8s %s\n", mark, s.Name)
	}
	return out
}

func runMigrateDown() error {
	ctx := context.Background()
	cfg, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	name, err := db.MigrationDown(ctx, pool, migrations)
	if err != nil {
		return err
	}
	if name == "" {
		fmt.Println("Nothing to roll back.")
		return nil
	}
	fmt.Printf("Rolled back %s.\n", name)
	return nil
}

func runClear() error {
	ctx := context.Background()
	_, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.ClearKeys(ctx, pool); err != nil {
		return fmt.Errorf("clear keys: %w", err)
	}
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	targetURL, err := withDatabase(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	created, err := db.EnsureDatabase(context.Background(), targetURL)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Database %q created.\n", dbName)
		return nil
	}
	fmt.Printf("Database %q already exists.\n", dbName)
	return nil
}

// withDatabase replaces the database name in a postgres URL, keeping the
// query (e.g. sslmode).
func withDatabase(databaseURL, dbName string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}

func runSeed(file string) error {
	ctx := context.Background()
	cfg, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if file == "" {
		file = cfg.DeclarationsFile
	}
	n, err := db.SeedDeclarations(ctx, db.NewRepository(pool), file)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %d api keys.\n", n)
	return nil
}
