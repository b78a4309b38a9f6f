// Package locks provides per-path mutual exclusion for file operations.
//
// Every request that touches a file holds that path's lock for the whole
// exchange, so two uploads to the same path serialize instead of interleaving
// chunks, and a download never observes a half-written file. Locks on
// distinct paths are independent.
package locks

import (
	"errors"
	"sync"
)

// ErrTableFull is returned by Acquire when locking one more path would
// exceed the table capacity.
var ErrTableFull = errors.New("lock table full")

// DefaultMaxPaths is the lock table capacity used when none is configured.
const DefaultMaxPaths = 100

// Table is a bounded set of per-path mutexes.
//
// Entries are created on first acquire and reclaimed as soon as the last
// holder or waiter releases, so the table only ever holds paths that are
// actively contended. The bound counts distinct locked paths, not lock
// holders: a second acquire on an already-locked path always succeeds (and
// blocks until the first holder releases), while an acquire that would
// introduce a new path into a full table fails immediately with
// ErrTableFull rather than queueing.
//
// Example usage:
//
//	tbl := locks.NewTable(100)
//	if err := tbl.Acquire(path); err != nil {
//		// table full: reject the request
//	}
//	defer tbl.Release(path)
type Table struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*entry
}

// entry is one path's lock plus the count of holders and waiters keeping
// it alive.
type entry struct {
	mu   sync.Mutex
	refs int
}

// NewTable creates an empty lock table holding at most capacity distinct
// paths. A capacity below 1 selects DefaultMaxPaths.
func NewTable(capacity int) *Table {
	if capacity < 1 {
		capacity = DefaultMaxPaths
	}
	return &Table{
		capacity: capacity,
		entries:  make(map[string]*entry),
	}
}

// Acquire locks the given path, blocking while another holder has it.
//
// Returns ErrTableFull without blocking if the path is not already present
// and the table is at capacity. On success the caller owns the path until
// it calls Release; pair the calls with defer.
func (t *Table) Acquire(path string) error {
	t.mu.Lock()
	e, exists := t.entries[path]
	if !exists {
		if len(t.entries) >= t.capacity {
			t.mu.Unlock()
			return ErrTableFull
		}
		e = &entry{}
		t.entries[path] = e
	}
	e.refs++
	t.mu.Unlock()

	// Block outside the table mutex so contention on one path never
	// stalls acquires and releases on other paths.
	e.mu.Lock()
	return nil
}

// Release unlocks the given path and reclaims its entry once no holder or
// waiter remains. Releasing a path that was never acquired is a no-op.
func (t *Table) Release(path string) {
	t.mu.Lock()
	e, exists := t.entries[path]
	if !exists {
		t.mu.Unlock()
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(t.entries, path)
	}
	t.mu.Unlock()

	e.mu.Unlock()
}

// Stats returns the number of currently tracked paths and the table
// capacity.
func (t *Table) Stats() (held int, capacity int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries), t.capacity
}
