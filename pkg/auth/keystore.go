package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const keystoreLogPrefix = "auth:keystore"

// MemoryKeyStore is an in-process key table.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string][]string
}

// NewMemoryKeyStore creates a store seeded with keys.
func NewMemoryKeyStore(keys map[string][]string) *MemoryKeyStore {
	s := &MemoryKeyStore{keys: make(map[string][]string, len(keys))}
	for k, roles := range keys {
		s.keys[k] = append([]string(nil), roles...)
	}
	return s
}

// RolesForKey implements KeyStore.
func (s *MemoryKeyStore) RolesForKey(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.keys[key]...), nil
}

// Put sets the roles of key.
func (s *MemoryKeyStore) Put(key string, roles []string) {
	s.mu.Lock()
	s.keys[key] = append([]string(nil), roles...)
	s.mu.Unlock()
}

// Delete removes key.
func (s *MemoryKeyStore) Delete(key string) {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
}

// DefaultKeyCacheTTL is used when CachedKeyStore is built without a TTL.
const DefaultKeyCacheTTL = 5 * time.Minute

// CachedKeyStore is a Redis read-through cache in front of another
// KeyStore. Unknown keys are cached as empty role lists. Redis failures
// fall back to the backing store.
type CachedKeyStore struct {
	next   KeyStore
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCachedKeyStoreParams holds parameters for NewCachedKeyStore.
type NewCachedKeyStoreParams struct {
	Next   KeyStore
	Client *redis.Client
	TTL    time.Duration
	// Prefix namespaces cache entries; defaults to "dispatch:key:".
	Prefix string
}

// NewCachedKeyStore creates the cache.
func NewCachedKeyStore(params NewCachedKeyStoreParams) *CachedKeyStore {
	ttl := params.TTL
	if ttl <= 0 {
		ttl = DefaultKeyCacheTTL
	}
	prefix := params.Prefix
	if prefix == "" {
		prefix = "dispatch:key:"
	}
	return &CachedKeyStore{next: params.Next, client: params.Client, ttl: ttl, prefix: prefix}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid redis url: %w", keystoreLogPrefix, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s - connect redis: %w", keystoreLogPrefix, err)
	}
	return client, nil
}

// cacheKey never stores the API key itself.
func (c *CachedKeyStore) cacheKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return c.prefix + hex.EncodeToString(sum[:])
}

// RolesForKey implements KeyStore.
func (c *CachedKeyStore) RolesForKey(ctx context.Context, key string) ([]string, error) {
	if c.client == nil {
		return c.next.RolesForKey(ctx, key)
	}
	ck := c.cacheKey(key)
	raw, err := c.client.Get(ctx, ck).Bytes()
	switch {
	case err == nil:
		var roles []string
		if jerr := json.Unmarshal(raw, &roles); jerr == nil {
			return roles, nil
		}
		slog.Warn(fmt.Sprintf("%s - dropping unreadable cache entry", keystoreLogPrefix))
	case !errors.Is(err, redis.Nil):
		slog.Warn(fmt.Sprintf("%s - cache read failed: %v", keystoreLogPrefix, err))
	}

	roles, err := c.next.RolesForKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []string{}
	}
	data, _ := json.Marshal(roles)
	if err := c.client.Set(ctx, ck, data, c.ttl).Err(); err != nil {
		slog.Warn(fmt.Sprintf("%s - cache write failed: %v", keystoreLogPrefix, err))
	}
	return roles, nil
}

// Invalidate drops the cached roles of key.
func (c *CachedKeyStore) Invalidate(ctx context.Context, key string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.cacheKey(key)).Err()
}
