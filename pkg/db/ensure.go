package db

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

const ensureLogPrefix = "db:ensure"

// maxDBNameLen is Postgres' identifier limit (NAMEDATALEN - 1).
const maxDBNameLen = 63

var dbNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// adminTarget splits a key store URL into the database to create and a URL
// for the server's maintenance database.
func adminTarget(databaseURL string) (name, adminURL string, err error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", fmt.Errorf("%s - invalid database URL: %w", ensureLogPrefix, err)
	}
	name = strings.TrimSpace(strings.TrimPrefix(u.Path, "/"))
	switch {
	case name == "":
		return "", "", fmt.Errorf("%s - database name empty in URL", ensureLogPrefix)
	case len(name) > maxDBNameLen:
		return "", "", fmt.Errorf("%s - database name longer than %d bytes", ensureLogPrefix, maxDBNameLen)
	case !dbNamePattern.MatchString(name):
		return "", "", fmt.Errorf("%s - database name %q contains invalid characters", ensureLogPrefix, name)
	}
	admin := *u
	admin.Path = "/postgres"
	return name, admin.String(), nil
}

// EnsureDatabase creates the key store database named in databaseURL when it
// is missing and reports whether it did. Call before NewPool.
func EnsureDatabase(ctx context.Context, databaseURL string) (bool, error) {
	name, adminURL, err := adminTarget(databaseURL)
	if err != nil {
		return false, err
	}
	config, err := pgx.ParseConfig(adminURL)
	if err != nil {
		return false, fmt.Errorf("%s - failed to parse admin URL: %w", ensureLogPrefix, err)
	}
	config.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return false, fmt.Errorf("%s - failed to connect to postgres: %w", ensureLogPrefix, err)
	}
	defer conn.Close(ctx)

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s - failed to check database: %w", ensureLogPrefix, err)
	}
	if exists {
		slog.Debug(fmt.Sprintf("%s - Database %q already exists", ensureLogPrefix, name))
		return false, nil
	}

	slog.Info(fmt.Sprintf("%s - Creating key store database %q", ensureLogPrefix, name))
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return false, fmt.Errorf("%s - CREATE DATABASE failed: %w", ensureLogPrefix, err)
	}
	return true, nil
}
