package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker is the single-process Locker used when no Redis is configured.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]time.Time{}, now: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return func() {}, false, nil
	}
	exp := now.Add(ttl)
	l.held[key] = exp
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key] == exp {
			delete(l.held, key)
		}
	}, true, nil
}
