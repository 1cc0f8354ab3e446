// Package lock provides the per-document exclusive lock that serializes
// structural edits. Different documents never contend.
package lock

import (
	"context"
	"sync"
)

// Unlock releases a lock obtained from a Locker. Calling it more than once
// is a no-op.
type Unlock func() error

// Locker hands out exclusive per-document locks.
type Locker interface {
	// Lock blocks until the lock for docID is held or ctx is done.
	Lock(ctx context.Context, docID int) (Unlock, error)
}

// MemoryLocker is a Locker scoped to the current process.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[int]chan struct{}
}

var _ Locker = (*MemoryLocker)(nil)

// NewMemoryLocker returns an in-process Locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[int]chan struct{})}
}

func (m *MemoryLocker) slot(docID int) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.slots[docID]
	if !ok {
		ch = make(chan struct{}, 1)
		m.slots[docID] = ch
	}
	return ch
}

// Lock implements Locker.
func (m *MemoryLocker) Lock(ctx context.Context, docID int) (Unlock, error) {
	ch := m.slot(docID)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}
