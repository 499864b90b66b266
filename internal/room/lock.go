// internal/room/lock.go
package room

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Locker provides the exclusive per-room mutation lock. Lock blocks until the
// room's lock is held or ctx is done. The returned lease context is derived
// from ctx and is done once the lock may no longer be held (a lease that can
// expire ends before it does); work guarded by the lock must run under it.
// unlock releases the lock and cancels the lease.
type Locker interface {
	Lock(ctx context.Context, roomID uuid.UUID) (lease context.Context, unlock func(), err error)
}

// KeyedMutex is an in-process Locker. It is correct when a single process owns
// all mutation traffic for the rooms it serves. Entries are reference counted
// and dropped once no goroutine holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedEntry
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[uuid.UUID]*keyedEntry)}
}

// Lock never expires; its lease ends only with ctx or unlock.
func (k *KeyedMutex) Lock(ctx context.Context, roomID uuid.UUID) (context.Context, func(), error) {
	k.mu.Lock()
	e, ok := k.locks[roomID]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		k.locks[roomID] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(roomID, e)
		return nil, nil, ctx.Err()
	}

	lease, cancel := context.WithCancel(ctx)
	var once sync.Once
	return lease, func() {
		once.Do(func() {
			cancel()
			<-e.sem
			k.release(roomID, e)
		})
	}, nil
}

func (k *KeyedMutex) release(roomID uuid.UUID, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, roomID)
	}
}

// Len reports how many rooms currently have a holder or waiter.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
