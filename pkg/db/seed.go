package db

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/morezero/action-dispatcher/pkg/bootstrap"
)

const seedLogPrefix = "db:seed"

// KeyWriter is the write side of Repository used by seeding.
type KeyWriter interface {
	UpsertKey(ctx context.Context, params UpsertKeyParams) (*APIKey, error)
}

// SeedKeys upserts every key in keys, in key order. It returns the number
// of keys written.
func SeedKeys(ctx context.Context, w KeyWriter, keys map[string][]string, description string) (int, error) {
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		if _, err := w.UpsertKey(ctx, UpsertKeyParams{Key: k, Roles: keys[k], Description: description}); err != nil {
			return 0, fmt.Errorf("%s - seeding key failed: %w", seedLogPrefix, err)
		}
	}
	slog.Info(fmt.Sprintf("%s - Seeded %d api keys", seedLogPrefix, len(names)))
	return len(names), nil
}

// SeedDeclarations loads declarations from paths (or the default) and
// upserts their apiKeys.
func SeedDeclarations(ctx context.Context, w KeyWriter, paths ...string) (int, error) {
	d, err := bootstrap.LoadDeclarations(paths...)
	if err != nil {
		return 0, fmt.Errorf("%s - load declarations: %w", seedLogPrefix, err)
	}
	resolved, err := bootstrap.CreateResolved(d)
	if err != nil {
		return 0, fmt.Errorf("%s - resolve declarations: %w", seedLogPrefix, err)
	}
	return SeedKeys(ctx, w, resolved.APIKeys(), "seeded from "+resolved.Name())
}
