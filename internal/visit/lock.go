package visit

import (
	"sync"

	"github.com/google/uuid"
)

// Locks serializes concurrent requests for the same visit id while leaving
// unrelated visits fully parallel. Entries are refcounted and removed once
// the last holder releases, so the map does not grow with visit count.
type Locks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewLocks() *Locks {
	return &Locks{entries: make(map[uuid.UUID]*lockEntry)}
}

// Lock acquires the per-visit mutex and returns the release function.
func (l *Locks) Lock(id uuid.UUID) func() {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
