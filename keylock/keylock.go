/*
Package keylock provides mutual exclusion scoped to a key.

PURPOSE:
  Month schedules and counters are shared mutable records. Two admins editing
  the same villa's month, or a publish fanning out deductions onto the same
  user's counter, must not interleave. A Map hands out one mutex per key and
  forgets it once nobody holds or waits for it, so memory stays bounded by
  the number of keys in flight.

USAGE:
  locks := keylock.New[MonthKey]()
  unlock := locks.Lock(MonthKey{VillaID: "v1", Year: 2026, Month: 1})
  defer unlock()

  // Several keys at once (always taken in a deterministic order):
  unlock := locks.LockAll(keys, func(a, b MonthKey) int { ... })

SEE ALSO:
  - planning/service.go: per-(villa, year, month) scope
  - counter/ledger.go: per-(user, kind, period) scope
*/
package keylock

import (
	"slices"
	"sync"
)

// Map is a set of mutexes addressed by key. The zero value is not usable;
// call New.
type Map[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*entry
}

type entry struct {
	mu      sync.Mutex
	holders int
}

// New creates an empty lock map.
func New[K comparable]() *Map[K] {
	return &Map[K]{locks: make(map[K]*entry)}
}

// Lock blocks until the mutex for key is held and returns its release func.
func (m *Map[K]) Lock(key K) (unlock func()) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.holders++
	m.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			m.mu.Lock()
			e.holders--
			if e.holders == 0 {
				delete(m.locks, key)
			}
			m.mu.Unlock()
		})
	}
}

// LockAll locks every distinct key in keys, ordered by cmp, and returns a
// func releasing them in reverse order. A consistent order across callers
// rules out lock-order deadlocks.
func (m *Map[K]) LockAll(keys []K, cmp func(a, b K) int) (unlock func()) {
	sorted := slices.Clone(keys)
	slices.SortFunc(sorted, cmp)
	sorted = slices.CompactFunc(sorted, func(a, b K) bool { return a == b })

	unlocks := make([]func(), 0, len(sorted))
	for _, k := range sorted {
		unlocks = append(unlocks, m.Lock(k))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// Len reports how many keys currently have holders or waiters.
func (m *Map[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
