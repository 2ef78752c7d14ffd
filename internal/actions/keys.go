package actions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/auth"
	"github.com/morezero/action-dispatcher/pkg/db"
	"github.com/morezero/action-dispatcher/pkg/registry"
	"github.com/morezero/action-dispatcher/pkg/result"
)

const keysLogPrefix = "actions:keys"

// KeyAdmin manages stored API keys. db.Repository implements it.
type KeyAdmin interface {
	UpsertKey(ctx context.Context, params db.UpsertKeyParams) (*db.APIKey, error)
	DeleteKey(ctx context.Context, key string) (bool, error)
	ListKeys(ctx context.Context) ([]db.APIKey, error)
}

// MemoryKeys is a KeyAdmin over an auth.MemoryKeyStore, used when no
// database is configured.
type MemoryKeys struct {
	store *auth.MemoryKeyStore
	mu    sync.Mutex
	rows  map[string]db.APIKey
	now   func() time.Time
}

// NewMemoryKeys wraps store and records seed as existing keys.
func NewMemoryKeys(store *auth.MemoryKeyStore, seed map[string][]string) *MemoryKeys {
	m := &MemoryKeys{store: store, rows: make(map[string]db.APIKey), now: time.Now}
	for k, roles := range seed {
		_, _ = m.UpsertKey(context.Background(), db.UpsertKeyParams{Key: k, Roles: roles, Description: "declared"})
	}
	return m
}

// UpsertKey implements KeyAdmin.
func (m *MemoryKeys) UpsertKey(_ context.Context, params db.UpsertKeyParams) (*db.APIKey, error) {
	if params.Key == "" {
		return nil, fmt.Errorf("%s - key is required", keysLogPrefix)
	}
	now := m.now().UTC()
	hash := db.HashKey(params.Key)
	roles := append([]string{}, params.Roles...)
	sort.Strings(roles)

	m.mu.Lock()
	row, ok := m.rows[hash]
	if !ok {
		row = db.APIKey{KeyHash: hash, Created: now}
	}
	row.Roles = roles
	row.Description = params.Description
	row.Modified = now
	m.rows[hash] = row
	m.mu.Unlock()

	m.store.Put(params.Key, roles)
	row.Key = params.Key
	return &row, nil
}

// DeleteKey implements KeyAdmin.
func (m *MemoryKeys) DeleteKey(_ context.Context, key string) (bool, error) {
	hash := db.HashKey(key)
	m.mu.Lock()
	_, ok := m.rows[hash]
	delete(m.rows, hash)
	m.mu.Unlock()
	m.store.Delete(key)
	return ok, nil
}

// ListKeys implements KeyAdmin.
func (m *MemoryKeys) ListKeys(_ context.Context) ([]db.APIKey, error) {
	m.mu.Lock()
	out := make([]db.APIKey, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].KeyHash < out[j].KeyHash
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}

// Invalidator drops cached roles for a key; auth.CachedKeyStore implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// InvalidatingKeys invalidates a cache after every write to Next.
type InvalidatingKeys struct {
	Next  KeyAdmin
	Cache Invalidator
}

// UpsertKey implements KeyAdmin.
func (k InvalidatingKeys) UpsertKey(ctx context.Context, params db.UpsertKeyParams) (*db.APIKey, error) {
	row, err := k.Next.UpsertKey(ctx, params)
	if err == nil {
		k.invalidate(ctx, params.Key)
	}
	return row, err
}

// DeleteKey implements KeyAdmin.
func (k InvalidatingKeys) DeleteKey(ctx context.Context, key string) (bool, error) {
	ok, err := k.Next.DeleteKey(ctx, key)
	if err == nil {
		k.invalidate(ctx, key)
	}
	return ok, err
}

// ListKeys implements KeyAdmin.
func (k InvalidatingKeys) ListKeys(ctx context.Context) ([]db.APIKey, error) {
	return k.Next.ListKeys(ctx)
}

func (k InvalidatingKeys) invalidate(ctx context.Context, key string) {
	if err := k.Cache.Invalidate(ctx, key); err != nil {
		slog.Warn(fmt.Sprintf("%s - cache invalidation failed: %v", keysLogPrefix, err))
	}
}

// generateKey returns a random URL-safe key.
func generateKey() (string, error) {
	var b [24]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

func registerKeys(reg *registry.Registry, keys KeyAdmin) error {
	defs := []struct {
		meta   action.Metadata
		handle action.Handle
	}{
		{
			action.Metadata{
				Area: "app", Name: "keys", Action: "create", Roles: action.ParentRoles, Protocol: action.ParentProtocol, Verb: "POST",
				Description: "Store an API key; a key is generated when none is given",
				Params: []action.ParamSpec{
					action.Required("roles", action.ListOf(action.String)),
					action.Optional("key", action.String),
					action.Optional("description", action.String),
				},
			},
			action.Func3(func(ctx context.Context, roles []string, key, description string) (action.Reply, error) {
				if len(roles) == 0 {
					return action.Reply{}, result.BadRequest("at least one role is required")
				}
				if key == "" {
					var err error
					if key, err = generateKey(); err != nil {
						return action.Reply{}, err
					}
				}
				row, err := keys.UpsertKey(ctx, db.UpsertKeyParams{Key: key, Roles: roles, Description: description})
				if err != nil {
					return action.Reply{}, err
				}
				return action.OkMessage(map[string]any{"key": key, "keyHash": row.KeyHash, "roles": row.Roles}, "stored"), nil
			}),
		},
		{
			action.Metadata{
				Area: "app", Name: "keys", Action: "delete", Roles: action.ParentRoles, Protocol: action.ParentProtocol, Verb: "DELETE",
				Description: "Remove an API key",
				Params:      []action.ParamSpec{action.Required("key", action.String)},
			},
			action.Func1(func(ctx context.Context, key string) (action.Reply, error) {
				removed, err := keys.DeleteKey(ctx, key)
				if err != nil {
					return action.Reply{}, err
				}
				if !removed {
					return action.Reply{}, result.NotFound("key not found")
				}
				return action.OkMessage(true, "deleted"), nil
			}),
		},
		{
			action.Metadata{
				Area: "app", Name: "keys", Action: "list", Roles: action.ParentRoles, Protocol: action.ParentProtocol, Verb: "GET",
				Description: "List stored keys by hash",
			},
			action.Func0(func(ctx context.Context) (action.Reply, error) {
				rows, err := keys.ListKeys(ctx)
				if err != nil {
					return action.Reply{}, err
				}
				return action.Ok(rows), nil
			}),
		},
	}
	for _, def := range defs {
		if err := reg.Register(def.meta, def.handle); err != nil {
			return err
		}
	}
	return nil
}
