package cache

import "sync"

// keyLocks hands out one mutex per key hash and forgets it once unused.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (l *keyLocks) lock(hash string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*refMutex)
	}
	m, ok := l.locks[hash]
	if !ok {
		m = &refMutex{}
		l.locks[hash] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, hash)
		}
		l.mu.Unlock()
	}
}
