// Package lock serializes lifecycle transitions per document.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qmdoc/doccontrol/internal/document"
)

// Locker hands out exclusive per-key leases. Acquire fails with
// document.ErrLocked while another holder owns the key; the returned release
// function is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// MemoryLocker is the in-process Locker used when Redis is not configured.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]lease
	now  func() time.Time
	seq  uint64
}

type lease struct {
	id      uint64
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]lease{}, now: time.Now}
}

func (m *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if l, ok := m.held[key]; ok && now.Before(l.expires) {
		return nil, fmt.Errorf("%w: %s is being changed by another request", document.ErrLocked, key)
	}
	m.seq++
	id := m.seq
	m.held[key] = lease{id: id, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if l, ok := m.held[key]; ok && l.id == id {
				delete(m.held, key)
			}
		})
	}, nil
}
