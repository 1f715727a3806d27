package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"eventgate/pkg/cache"
)

func newTestCSRF(t *testing.T) (*CSRFService, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := cache.NewMemoryWithClock(clock.Now)
	return NewCSRFService(store, cache.NewMemoryLocker(), zap.NewNop().Sugar(), 0, 0), clock
}

func TestCSRF_SingleUse(t *testing.T) {
	svc, _ := newTestCSRF(t)
	ctx := context.Background()

	token, err := svc.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("issued token should be non-empty")
	}
	if !svc.ValidateAndConsume(ctx, token) {
		t.Error("first validation should succeed")
	}
	if svc.ValidateAndConsume(ctx, token) {
		t.Error("second validation of the same token should fail")
	}
}

func TestCSRF_UnknownToken(t *testing.T) {
	svc, _ := newTestCSRF(t)
	if svc.ValidateAndConsume(context.Background(), "never-issued") {
		t.Error("unknown token should be rejected")
	}
	if svc.ValidateAndConsume(context.Background(), "") {
		t.Error("empty token should be rejected")
	}
}

func TestCSRF_AtMostOnceUnderConcurrency(t *testing.T) {
	svc, _ := newTestCSRF(t)
	ctx := context.Background()

	// Two concurrent presentations of the same fresh token: exactly one may
	// win. Repeat to give the race a chance to show itself.
	for i := 0; i < 50; i++ {
		token, err := svc.Issue(ctx)
		if err != nil {
			t.Fatal(err)
		}
		var wg sync.WaitGroup
		results := make([]bool, 2)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				results[j] = svc.ValidateAndConsume(ctx, token)
			}(j)
		}
		wg.Wait()
		if results[0] == results[1] {
			t.Fatalf("iteration %d: want exactly one success, got %v and %v", i, results[0], results[1])
		}
		if svc.ValidateAndConsume(ctx, token) {
			t.Fatalf("iteration %d: third validation should always fail", i)
		}
	}
}

func TestCSRF_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	store := cache.NewMemoryWithClock(clock.Now)
	svc := NewCSRFService(store, cache.NewMemoryLocker(), zap.NewNop().Sugar(), time.Minute, 0)
	ctx := context.Background()

	token, err := svc.Issue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(61 * time.Second)
	if svc.ValidateAndConsume(ctx, token) {
		t.Error("expired token should be rejected as if it never existed")
	}
}

func TestCSRF_LockTimeoutFailsClosed(t *testing.T) {
	clock := newFakeClock()
	store := cache.NewMemoryWithClock(clock.Now)
	locks := cache.NewMemoryLocker()
	svc := NewCSRFService(store, locks, zap.NewNop().Sugar(), 0, 50*time.Millisecond)
	ctx := context.Background()

	token, err := svc.Issue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// Hold the token's lock scope so validation cannot acquire it.
	lockKey := "lock:" + csrfKey(token)
	if ok, _ := locks.TryAcquire(ctx, lockKey, time.Second); !ok {
		t.Fatal("test could not pre-acquire lock")
	}
	defer locks.Release(ctx, lockKey)

	if svc.ValidateAndConsume(ctx, token) {
		t.Error("lock timeout must fail closed, not succeed")
	}
	// The token was not consumed by the failed attempt; after the lock frees
	// it is still single-use.
	_ = locks.Release(ctx, lockKey)
	if !svc.ValidateAndConsume(ctx, token) {
		t.Error("token should remain valid after a lock-timeout rejection")
	}
}
