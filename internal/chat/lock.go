package chat

import (
	"context"
	"sync"
)

// SessionLocker serializes mutations per session id. Two concurrent sends
// against the same session would otherwise both read ACTIVE and lose one
// conversation append.
type SessionLocker interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// MemoryLocker is an in-process locker for tests and single-node deployments.
// Multi-node deployments use the redis-backed locker instead.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sessionID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
