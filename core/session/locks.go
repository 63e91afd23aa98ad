package session

import (
	"context"
	"sync"
)

// Locks serializes turns per conversation key. Entries are reference
// counted and dropped once no goroutine holds or waits for them.
type Locks struct {
	mu    sync.Mutex
	items map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{items: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx is done. The returned func releases
// the lock and must be called exactly once.
func (l *Locks) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.items[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.items[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *Locks) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.items, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
