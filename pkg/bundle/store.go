package bundle

import (
	"sync/atomic"
	"time"
)

// DefaultValidity applies when neither the bundle nor the client sets one.
const DefaultValidity = 24 * time.Hour

// Snapshot is a bundle together with when it was last confirmed current.
type Snapshot struct {
	Bundle    *Bundle   `json:"bundle"`
	FetchedAt time.Time `json:"fetchedAt"`
	ETag      string    `json:"etag,omitempty"`
}

// Stale reports whether the snapshot is past its validity window at now.
// maxStaleness overrides the bundle TTL when positive.
func (s *Snapshot) Stale(now time.Time, maxStaleness time.Duration) bool {
	if s == nil || s.Bundle == nil {
		return true
	}
	validity := maxStaleness
	if validity <= 0 {
		validity = s.Bundle.TTL()
	}
	if validity <= 0 {
		validity = DefaultValidity
	}
	return now.After(s.FetchedAt.Add(validity))
}

// Store holds the current snapshot. Readers never block.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Load returns the current snapshot, or nil before the first bundle arrives.
func (s *Store) Load() *Snapshot {
	return s.current.Load()
}

// Replace installs a new snapshot wholesale.
func (s *Store) Replace(snap *Snapshot) {
	s.current.Store(snap)
}

// Touch marks the current bundle as confirmed at t (e.g. after a 304)
// without changing its contents.
func (s *Store) Touch(t time.Time) {
	for {
		cur := s.current.Load()
		if cur == nil {
			return
		}
		next := &Snapshot{Bundle: cur.Bundle, FetchedAt: t, ETag: cur.ETag}
		if s.current.CompareAndSwap(cur, next) {
			return
		}
	}
}
