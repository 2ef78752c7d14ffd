package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// HashKey returns the stored form of an API key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Repository reads and writes API keys. It satisfies auth.KeyStore.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

// RolesForKey returns the roles granted to key, or nil for an unknown key.
func (r *Repository) RolesForKey(ctx context.Context, key string) ([]string, error) {
	var roles []string
	err := r.pool.QueryRow(ctx, `SELECT roles FROM api_keys WHERE key_hash = $1`, HashKey(key)).Scan(&roles)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - RolesForKey failed: %w", repoLogPrefix, err)
	}
	return roles, nil
}

// UpsertKeyParams holds parameters for UpsertKey.
type UpsertKeyParams struct {
	Key         string
	Roles       []string
	Description string
}

// normalizeRoles trims, drops empties, dedupes and sorts.
func normalizeRoles(roles []string) []string {
	seen := make(map[string]bool, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// UpsertKey creates or replaces the roles of a key.
func (r *Repository) UpsertKey(ctx context.Context, params UpsertKeyParams) (*APIKey, error) {
	if params.Key == "" {
		return nil, fmt.Errorf("%s - key is required", repoLogPrefix)
	}
	roles := normalizeRoles(params.Roles)
	now := r.now().UTC()
	hash := HashKey(params.Key)
	slog.Info(fmt.Sprintf("%s - UpsertKey hash=%s roles=%v", repoLogPrefix, hash[:12], roles))

	k := &APIKey{KeyHash: hash, Key: params.Key}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO api_keys (key_hash, roles, description, created, modified)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (key_hash) DO UPDATE
		   SET roles = EXCLUDED.roles, description = EXCLUDED.description, modified = EXCLUDED.modified
		 RETURNING roles, description, created, modified`,
		hash, roles, params.Description, now,
	).Scan(&k.Roles, &k.Description, &k.Created, &k.Modified)
	if err != nil {
		return nil, fmt.Errorf("%s - UpsertKey failed: %w", repoLogPrefix, err)
	}
	return k, nil
}

// DeleteKey removes a key. It reports whether a row was removed.
func (r *Repository) DeleteKey(ctx context.Context, key string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM api_keys WHERE key_hash = $1`, HashKey(key))
	if err != nil {
		return false, fmt.Errorf("%s - DeleteKey failed: %w", repoLogPrefix, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListKeys returns all stored keys ordered by creation time.
func (r *Repository) ListKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT key_hash, roles, description, created, modified
		 FROM api_keys
		 ORDER BY created, key_hash`)
	if err != nil {
		return nil, fmt.Errorf("%s - ListKeys failed: %w", repoLogPrefix, err)
	}
	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (APIKey, error) {
		var k APIKey
		err := row.Scan(&k.KeyHash, &k.Roles, &k.Description, &k.Created, &k.Modified)
		return k, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s - ListKeys scan failed: %w", repoLogPrefix, err)
	}
	return keys, nil
}
