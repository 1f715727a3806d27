package auth

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"eventgate/pkg/cache"
)

const (
	// DefaultRateLimit is the per-tenant request ceiling per window.
	DefaultRateLimit = 60
	// rateWindow is the throttling window length.
	rateWindow = time.Minute
	// DefaultLockoutThreshold is the consecutive-failure count that trips a
	// lockout.
	DefaultLockoutThreshold = 5
	// DefaultLockoutWindow is how long a tripped lockout holds.
	DefaultLockoutWindow = 15 * time.Minute
)

// counter is the cache value for both rate and failure counters. The window
// end travels with the value so re-puts preserve the original window instead
// of sliding it.
type counter struct {
	N   int   `json:"n"`
	Exp int64 `json:"exp"` // window end, unix seconds
}

// RateLimiter tracks per-tenant request counts and per-tenant+client failed
// authentication lockouts in the shared cache. Counters are defense-in-depth
// throttles: an occasional off-by-one under extreme concurrency is
// acceptable and no cross-request locking is used here.
type RateLimiter struct {
	cache            cache.Cache
	log              *zap.SugaredLogger
	limit            int
	lockoutThreshold int
	lockoutWindow    time.Duration
	now              func() time.Time
}

func NewRateLimiter(c cache.Cache, log *zap.SugaredLogger, limit, lockoutThreshold int, lockoutWindow time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if lockoutThreshold <= 0 {
		lockoutThreshold = DefaultLockoutThreshold
	}
	if lockoutWindow <= 0 {
		lockoutWindow = DefaultLockoutWindow
	}
	return &RateLimiter{
		cache: c, log: log,
		limit: limit, lockoutThreshold: lockoutThreshold, lockoutWindow: lockoutWindow,
		now: time.Now,
	}
}

// CheckAndIncrement admits one request for the tenant, or rejects with
// KindRateLimited once the window ceiling is reached. A rejected request is
// not counted.
func (l *RateLimiter) CheckAndIncrement(ctx context.Context, tenantID string) error {
	key := "rate:" + tenantID
	c, found := l.read(ctx, key)
	if found && c.N >= l.limit {
		return &Error{Kind: KindRateLimited, Detail: "request ceiling reached", RetryAfter: l.until(c.Exp)}
	}
	if !found {
		c = counter{Exp: l.now().Add(rateWindow).Unix()}
	}
	c.N++
	l.write(ctx, key, c)
	return nil
}

// LockedOut reports whether the tenant+client pair is currently locked out
// and, if so, for how much longer.
func (l *RateLimiter) LockedOut(ctx context.Context, tenantID, clientID string) (time.Duration, bool) {
	c, found := l.read(ctx, failKey(tenantID, clientID))
	if !found || c.N < l.lockoutThreshold {
		return 0, false
	}
	return l.until(c.Exp), true
}

// RecordFailure counts one failed authentication for the tenant+client pair.
// Crossing the threshold returns KindLockedOut with the remaining lockout
// duration; the caller surfaces that instead of the credential error.
func (l *RateLimiter) RecordFailure(ctx context.Context, tenantID, clientID string) error {
	key := failKey(tenantID, clientID)
	c, found := l.read(ctx, key)
	if !found {
		c = counter{Exp: l.now().Add(l.lockoutWindow).Unix()}
	}
	c.N++
	l.write(ctx, key, c)
	if c.N >= l.lockoutThreshold {
		return &Error{Kind: KindLockedOut, Detail: "too many failed attempts", RetryAfter: l.until(c.Exp)}
	}
	return nil
}

// ClearFailures resets the failure counter after a successful
// authentication, so the lockout threshold counts consecutive failures.
func (l *RateLimiter) ClearFailures(ctx context.Context, tenantID, clientID string) {
	if err := l.cache.Remove(ctx, failKey(tenantID, clientID)); err != nil {
		l.log.Warnw("clear failure counter", "tenant", tenantID, "err", err)
	}
}

func failKey(tenantID, clientID string) string {
	return "authfail:" + tenantID + ":" + clientID
}

func (l *RateLimiter) read(ctx context.Context, key string) (counter, bool) {
	v, found, err := l.cache.Get(ctx, key)
	if err != nil {
		// Treat an unreadable counter as absent; the limiter is a throttle,
		// not a correctness gate, and must not take the service down with it.
		l.log.Warnw("rate counter read", "key", key, "err", err)
		return counter{}, false
	}
	if !found {
		return counter{}, false
	}
	var c counter
	if err := json.Unmarshal([]byte(v), &c); err != nil {
		l.log.Warnw("rate counter decode", "key", key, "err", err)
		return counter{}, false
	}
	return c, true
}

func (l *RateLimiter) write(ctx context.Context, key string, c counter) {
	ttl := l.until(c.Exp)
	if ttl <= 0 {
		return
	}
	b, _ := json.Marshal(c)
	if err := l.cache.Put(ctx, key, string(b), ttl); err != nil {
		l.log.Warnw("rate counter write", "key", key, "err", err)
	}
}

func (l *RateLimiter) until(expUnix int64) time.Duration {
	return time.Unix(expUnix, 0).Sub(l.now())
}
