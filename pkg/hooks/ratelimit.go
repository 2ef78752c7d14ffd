// Package hooks provides before and after hooks for the dispatcher.
package hooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/result"
)

const ratelimitLogPrefix = "hooks:ratelimit"

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(req *request.Request, meta action.Metadata) string

// KeyByCaller buckets by API key, then token, then source. Credentials are
// hashed so they never sit in memory as map keys.
func KeyByCaller(req *request.Request, _ action.Metadata) string {
	if k := req.APIKey(); k != "" {
		return "key:" + digest(k)
	}
	if tok := req.Token(); tok != "" {
		return "token:" + digest(tok)
	}
	return "source:" + req.Source().String()
}

// KeyByCallerAndPath buckets each caller separately per action.
func KeyByCallerAndPath(req *request.Request, meta action.Metadata) string {
	return KeyByCaller(req, meta) + "|" + meta.Path()
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit is a before hook that rejects callers above a token bucket rate.
type RateLimit struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	key     KeyFunc
	now     func() time.Time
}

// NewRateLimitParams holds parameters for NewRateLimit.
type NewRateLimitParams struct {
	PerSecond float64
	Burst     int
	// Key defaults to KeyByCaller.
	Key KeyFunc
}

// NewRateLimit creates the hook. A burst below 1 is raised to 1.
func NewRateLimit(params NewRateLimitParams) *RateLimit {
	burst := params.Burst
	if burst < 1 {
		burst = 1
	}
	key := params.Key
	if key == nil {
		key = KeyByCaller
	}
	return &RateLimit{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(params.PerSecond),
		burst:   burst,
		key:     key,
		now:     time.Now,
	}
}

// Before implements dispatcher.BeforeHook.
func (rl *RateLimit) Before(_ context.Context, req *request.Request, meta action.Metadata) error {
	k := rl.key(req, meta)
	now := rl.now()

	rl.mu.Lock()
	b, ok := rl.buckets[k]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[k] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)
	rl.mu.Unlock()

	if !allowed {
		slog.Info(fmt.Sprintf("%s - rate limit exceeded for %s on %s", ratelimitLogPrefix, k, meta.Path()))
		return result.Filtered(result.MsgRateLimitExceeded)
	}
	return nil
}

// Sweep drops buckets idle for longer than idle and returns how many were
// dropped.
func (rl *RateLimit) Sweep(idle time.Duration) int {
	cutoff := rl.now().Add(-idle)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for k, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, k)
			n++
		}
	}
	return n
}

// StartSweeper sweeps every interval until ctx is done.
func (rl *RateLimit) StartSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := rl.Sweep(idle); n > 0 {
					slog.Debug(fmt.Sprintf("%s - swept %d idle buckets", ratelimitLogPrefix, n))
				}
			}
		}
	}()
}
