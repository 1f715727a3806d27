package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"eventgate/pkg/cache"
)

// DefaultCSRFTTL bounds how long an unconsumed token stays valid.
const DefaultCSRFTTL = time.Hour

// DefaultLockTimeout bounds how long a validation waits for the per-token
// lock before failing closed.
const DefaultLockTimeout = 5 * time.Second

// CSRFService issues one-time anti-forgery tokens and atomically
// validates-and-consumes them. A token has exactly one bit of state in the
// shared cache: present (unconsumed) or absent. Consumption is deletion, so
// there is nothing to leak about already-used tokens.
type CSRFService struct {
	cache       cache.Cache
	locks       cache.Locker
	log         *zap.SugaredLogger
	ttl         time.Duration
	lockTimeout time.Duration
}

func NewCSRFService(c cache.Cache, l cache.Locker, log *zap.SugaredLogger, ttl, lockTimeout time.Duration) *CSRFService {
	if ttl <= 0 {
		ttl = DefaultCSRFTTL
	}
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &CSRFService{cache: c, locks: l, log: log, ttl: ttl, lockTimeout: lockTimeout}
}

// Issue generates an unguessable token and stores its presence marker.
func (s *CSRFService) Issue(ctx context.Context) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("csrf token entropy: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	if err := s.cache.Put(ctx, csrfKey(token), "1", s.ttl); err != nil {
		return "", fmt.Errorf("csrf token store: %w", err)
	}
	return token, nil
}

// ValidateAndConsume accepts a token at most once. The check-then-delete
// runs under a lock scoped to the token, so two concurrent presentations of
// the same value cannot both observe it as present; unrelated tokens never
// contend. A lock acquisition timeout fails closed: the token is reported
// invalid, never retried.
func (s *CSRFService) ValidateAndConsume(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	key := csrfKey(token)
	lockKey := "lock:" + key

	ok, err := s.locks.TryAcquire(ctx, lockKey, s.lockTimeout)
	if err != nil || !ok {
		s.log.Warnw("csrf lock unavailable, failing closed", "err", err)
		return false
	}
	defer func() {
		if err := s.locks.Release(ctx, lockKey); err != nil {
			s.log.Warnw("csrf lock release", "err", err)
		}
	}()

	_, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warnw("csrf cache read, failing closed", "err", err)
		return false
	}
	if !found {
		return false
	}
	if err := s.cache.Remove(ctx, key); err != nil {
		// If the delete did not land the token may still be live; better to
		// reject this use than to risk accepting it twice.
		s.log.Warnw("csrf consume delete, failing closed", "err", err)
		return false
	}
	return true
}

// csrfKey derives the cache key from a digest so the raw token value is
// never stored.
func csrfKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "csrf:" + hex.EncodeToString(sum[:])
}
