// pkg/cache/memory.go
package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   string
	expires time.Time
}

// Memory is an in-process Cache for dev and tests. Expiry is evaluated
// lazily on Get against the injected clock.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock lets tests drive TTL expiry deterministically.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{entries: map[string]entry{}, now: now}
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: value, expires: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// MemoryLocker is an in-process Locker for dev and tests.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{} // closed on release
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]chan struct{}{}}
}

func (l *MemoryLocker) TryAcquire(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		l.mu.Lock()
		wait, taken := l.held[key]
		if !taken {
			l.held[key] = make(chan struct{})
			l.mu.Unlock()
			return true, nil
		}
		l.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		select {
		case <-wait:
		case <-time.After(remaining):
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func (l *MemoryLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if wait, ok := l.held[key]; ok {
		close(wait)
		delete(l.held, key)
	}
	return nil
}
