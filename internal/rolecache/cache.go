// Package rolecache holds short-lived admin role lookups keyed by user id.
package rolecache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Cache interface {
	Get(ctx context.Context, userID uuid.UUID) (isAdmin bool, found bool, err error)
	Set(ctx context.Context, userID uuid.UUID, isAdmin bool) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

type entry struct {
	isAdmin   bool
	expiresAt time.Time
}

// Memory is an in-process Cache. Expired entries are dropped on read and by
// a background sweep until Close is called.
type Memory struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[uuid.UUID]entry
	done    chan struct{}
	once    sync.Once
}

func NewMemory(ttl time.Duration) *Memory {
	m := &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[uuid.UUID]entry),
		done:    make(chan struct{}),
	}
	go m.cleanup()
	return m
}

func (m *Memory) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := m.now()
			m.mu.Lock()
			for id, e := range m.entries {
				if now.After(e.expiresAt) {
					delete(m.entries, id)
				}
			}
			m.mu.Unlock()
		case <-m.done:
			return
		}
	}
}

func (m *Memory) Get(_ context.Context, userID uuid.UUID) (bool, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[userID]
	m.mu.RUnlock()
	if !ok || m.now().After(e.expiresAt) {
		return false, false, nil
	}
	return e.isAdmin, true, nil
}

func (m *Memory) Set(_ context.Context, userID uuid.UUID, isAdmin bool) error {
	m.mu.Lock()
	m.entries[userID] = entry{isAdmin: isAdmin, expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Invalidate(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	delete(m.entries, userID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() {
	m.once.Do(func() { close(m.done) })
}
