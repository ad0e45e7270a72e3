package usecase

import "sync"

// keyMutex serializes read-modify-write sequences on a single store key.
// Every operation re-reads from the store, so two concurrent increments for
// the same key would otherwise both read the same base state and lose one
// update. Locks are reference counted and removed once the last holder
// releases, so the table does not grow with the key space.
type keyMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyMutex() *keyMutex {
	return &keyMutex{locks: make(map[string]*keyLock)}
}

// Lock acquires the mutex for key and returns the matching unlock function.
func (k *keyMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
