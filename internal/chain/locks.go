package chain

import "sync"

// ownerLocks serializes chain mutations per owner. Entries are reference
// counted and dropped once no goroutine holds or waits for them.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[int64]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{locks: make(map[int64]*ownerLock)}
}

// lock acquires the lock for owner and returns its release function.
func (l *ownerLocks) lock(owner int64) func() {
	l.mu.Lock()
	ol, ok := l.locks[owner]
	if !ok {
		ol = &ownerLock{}
		l.locks[owner] = ol
	}
	ol.refs++
	l.mu.Unlock()

	ol.mu.Lock()
	return func() {
		ol.mu.Unlock()

		l.mu.Lock()
		ol.refs--
		if ol.refs == 0 {
			delete(l.locks, owner)
		}
		l.mu.Unlock()
	}
}

func (l *ownerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
