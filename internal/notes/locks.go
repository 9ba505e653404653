package notes

import "sync"

// lockRegistry hands out one mutex per room so reconciliation runs are
// serialized within a room and independent across rooms. Entries are created
// lazily under the registry lock, which makes concurrent first-requests for a
// brand-new room agree on a single mutex, and are kept for process lifetime.
// Room count is bounded by active lectures, so there is no eviction.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*sync.Mutex)}
}

// forRoom returns the mutex for roomID, creating it on first use.
func (r *lockRegistry) forRoom(roomID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[roomID] = lock
	}
	return lock
}
