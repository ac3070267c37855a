package packs

import (
	"sync"

	"github.com/google/uuid"
)

// packLocks is an arena of per-pack guards. Every read-then-write of
// pack-scoped invariants (capacity check + counter, leave + succession)
// runs under the pack's own lock, so contention stays scoped to one pack
// and unrelated packs never block each other. Entries are reference-counted
// and removed once the last holder releases, keeping the map bounded by the
// number of packs with in-flight mutations.
type packLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*packLock
}

type packLock struct {
	mu   sync.Mutex
	refs int
}

func newPackLocks() *packLocks {
	return &packLocks{locks: make(map[uuid.UUID]*packLock)}
}

// Lock blocks until the pack's guard is held and returns the release func.
func (pl *packLocks) Lock(packID uuid.UUID) func() {
	pl.mu.Lock()
	entry, ok := pl.locks[packID]
	if !ok {
		entry = &packLock{}
		pl.locks[packID] = entry
	}
	entry.refs++
	pl.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		pl.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(pl.locks, packID)
		}
		pl.mu.Unlock()
	}
}
