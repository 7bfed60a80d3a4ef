// Package lock provides a per-key advisory lock with bounded hold time.
package lock

import (
	"context"
	"sync"
	"time"
)

// DefaultHoldTimeout bounds how long a holder may keep a key.
const DefaultHoldTimeout = 5 * time.Second

// Keyed serializes callers per key. Distinct keys never block each other.
type Keyed struct {
	hold time.Duration

	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

// NewKeyed creates a keyed lock. hold <= 0 selects DefaultHoldTimeout.
func NewKeyed(hold time.Duration) *Keyed {
	if hold <= 0 {
		hold = DefaultHoldTimeout
	}
	return &Keyed{
		hold:  hold,
		locks: make(map[string]*entry),
	}
}

// Acquire blocks until key is free or ctx is done.
//
// The returned context expires after the hold timeout; when it does, or when
// ctx is cancelled, the key is released automatically. Work done under the
// lock must use the returned context so an expired holder stops writing.
// release is idempotent.
func (k *Keyed) Acquire(ctx context.Context, key string) (held context.Context, release func(), err error) {
	e := k.ref(key)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, e)
		return nil, nil, ctx.Err()
	}

	held, cancel := context.WithTimeout(ctx, k.hold)
	var once sync.Once
	release = func() {
		once.Do(func() {
			<-e.sem
			k.unref(key, e)
			cancel()
		})
	}
	context.AfterFunc(held, release)
	return held, release, nil
}

// Len returns the number of keys currently held or waited on.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func (k *Keyed) ref(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.locks[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) unref(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}
