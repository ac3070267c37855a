package packs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"packride/pkg/geo"
)

const (
	// DefaultShareTTL is how long a location share stays visible after its
	// last write.
	DefaultShareTTL = time.Hour

	// DefaultStaleAfter is the presence window: a member counts as online
	// when their share was refreshed within it.
	DefaultStaleAfter = 5 * time.Minute
)

type shareKey struct {
	userID uuid.UUID
	packID uuid.UUID // uuid.Nil marks the global discovery scope
}

// ShareStore holds ephemeral per-rider location shares in process memory,
// keyed by (user, pack). Shares are volatile and worthless once stale, so
// they never touch the relational store. Expiry is enforced on every read;
// Sweep only reclaims memory and is not needed for correctness. Writes to
// different keys proceed in parallel; a same-key write is last-writer-wins.
type ShareStore struct {
	ttl     time.Duration
	emitter eventEmitter
	now     func() time.Time

	mu     sync.RWMutex
	shares map[shareKey]LocationShare
}

// NewShareStore creates a store with the given TTL (DefaultShareTTL when
// non-positive).
func NewShareStore(ttl time.Duration, pub EventPublisher, log zerolog.Logger) *ShareStore {
	if ttl <= 0 {
		ttl = DefaultShareTTL
	}
	return &ShareStore{
		ttl:     ttl,
		emitter: eventEmitter{pub: pub, log: log},
		now:     time.Now,
		shares:  make(map[shareKey]LocationShare),
	}
}

// Upsert records a rider's position, overwriting any existing share for the
// same (user, pack) scope and restarting the TTL.
func (s *ShareStore) Upsert(ctx context.Context, userID uuid.UUID, packID uuid.UUID, lat, lng float64, heading, speed *float64) (LocationShare, error) {
	if userID == uuid.Nil {
		return LocationShare{}, fmt.Errorf("user id is required: %w", ErrInvalidArgument)
	}
	if !(geo.Point{Lat: lat, Lng: lng}).Valid() {
		return LocationShare{}, fmt.Errorf("coordinates (%v, %v) out of range: %w", lat, lng, ErrInvalidArgument)
	}

	now := s.now().UTC()
	share := LocationShare{
		UserID:    userID,
		Latitude:  lat,
		Longitude: lng,
		Heading:   heading,
		Speed:     speed,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if packID != uuid.Nil {
		scoped := packID
		share.PackID = &scoped
	}

	s.mu.Lock()
	s.shares[shareKey{userID: userID, packID: packID}] = share
	liveShares.Set(float64(len(s.shares)))
	s.mu.Unlock()

	locationUpsertsTotal.Inc()

	payload := map[string]any{
		"user_id":    userID,
		"latitude":   lat,
		"longitude":  lng,
		"updated_at": now,
	}
	if packID != uuid.Nil {
		payload["pack_id"] = packID
	}
	s.emitter.emit(ctx, subjectLocationUpdated, payload)

	return share, nil
}

// Get returns the live share for the scope. An expired share reads as
// absent even while the entry is still physically present.
func (s *ShareStore) Get(userID uuid.UUID, packID uuid.UUID) (LocationShare, bool) {
	s.mu.RLock()
	share, ok := s.shares[shareKey{userID: userID, packID: packID}]
	s.mu.RUnlock()

	if !ok || !share.ExpiresAt.After(s.now().UTC()) {
		return LocationShare{}, false
	}
	return share, true
}

// Remove is the explicit opt-out. Removing an absent share is a no-op.
func (s *ShareStore) Remove(userID uuid.UUID, packID uuid.UUID) {
	s.mu.Lock()
	delete(s.shares, shareKey{userID: userID, packID: packID})
	liveShares.Set(float64(len(s.shares)))
	s.mu.Unlock()
}

// ListLive returns the non-expired shares scoped to one pack.
func (s *ShareStore) ListLive(packID uuid.UUID) []LocationShare {
	return s.list(packID)
}

// ListLiveGlobal returns the non-expired global-discovery shares. Callers
// exclude the requesting rider themselves.
func (s *ShareStore) ListLiveGlobal() []LocationShare {
	return s.list(uuid.Nil)
}

func (s *ShareStore) list(packID uuid.UUID) []LocationShare {
	now := s.now().UTC()

	s.mu.RLock()
	out := make([]LocationShare, 0, len(s.shares))
	for key, share := range s.shares {
		if key.packID != packID {
			continue
		}
		if !share.ExpiresAt.After(now) {
			continue
		}
		out = append(out, share)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out
}

// LiveCount reports the non-expired entries across every scope, pack-bound
// and global alike.
func (s *ShareStore) LiveCount() int {
	now := s.now().UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, share := range s.shares {
		if share.ExpiresAt.After(now) {
			n++
		}
	}
	return n
}

// Sweep discards expired entries and reports how many it removed.
func (s *ShareStore) Sweep() int {
	now := s.now().UTC()

	s.mu.Lock()
	removed := 0
	for key, share := range s.shares {
		if !share.ExpiresAt.After(now) {
			delete(s.shares, key)
			removed++
		}
	}
	liveShares.Set(float64(len(s.shares)))
	s.mu.Unlock()

	if removed > 0 {
		locationSweptTotal.Add(float64(removed))
	}
	return removed
}

// Run sweeps on the given interval until ctx is cancelled.
func (s *ShareStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultStaleAfter
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
