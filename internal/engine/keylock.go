package engine

import (
	"context"
	"sync"
)

// keySlot is a one-token semaphore shared by every caller waiting on the
// same key. refs counts holders plus waiters so idle slots can be freed.
type keySlot struct {
	token chan struct{}
	refs  int
}

// KeyLocker provides exclusive sections keyed by an arbitrary string.
// Callers on different keys never block each other, and a waiting caller
// gives up as soon as its context is done.
type KeyLocker struct {
	mu    sync.Mutex
	slots map[string]*keySlot
}

// NewKeyLocker creates an empty KeyLocker.
func NewKeyLocker() *KeyLocker {
	return &KeyLocker{
		slots: make(map[string]*keySlot),
	}
}

// Lock blocks until the section for key is free or ctx is done. On
// success the returned function releases the section; it must be called
// exactly once.
func (l *KeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &keySlot{token: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.token <- struct{}{}:
	case <-ctx.Done():
		l.release(key, slot)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.token
			l.release(key, slot)
		})
	}, nil
}

func (l *KeyLocker) release(key string, slot *keySlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

// Len returns the number of keys currently held or waited on.
func (l *KeyLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// pairKey is the lock key for a (wallet, cohort) pair. IDs cannot
// contain '|', so distinct pairs never collide.
func pairKey(walletID, cohortID string) string {
	return walletID + "|" + cohortID
}
