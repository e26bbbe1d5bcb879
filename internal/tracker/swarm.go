package tracker

import (
	"strconv"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/p2pswarm/p2pswarm/internal/meta"
	"github.com/p2pswarm/p2pswarm/internal/wire"
)

// Swarm holds the directory entry for one infohash: its advertised Meta,
// its owners (deduplicated by value equality), and their liveness
// timestamps. Every owner has a LastSeen entry; an owner missing from
// LastSeen within TTL is removed by the reaper.
type Swarm struct {
	mu       sync.RWMutex
	meta     meta.Meta
	owners   mapset.Set[wire.Owner]
	lastSeen map[string]time.Time
}

func newSwarm(m meta.Meta) *Swarm {
	return &Swarm{
		meta:     m,
		owners:   mapset.NewSet[wire.Owner](),
		lastSeen: make(map[string]time.Time),
	}
}

// addOwner adds (or refreshes) an owner and its LastSeen timestamp.
// Re-adding an owner that already matches by value leaves the owner set
// unchanged — the mapset dedups by value equality already.
func (s *Swarm) addOwner(o wire.Owner, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners.Add(o)
	s.lastSeen[strconv.Itoa(o.NodeID)] = now
}

// touch refreshes LastSeen for nodeID unconditionally — REGISTER updates
// liveness whenever the swarm itself exists, with no prior-ownership check.
// A node that isn't (yet) in the owner set gets a LastSeen entry anyway;
// since the reaper only walks the owner set, this entry is inert until the
// node later OWNs into the swarm.
func (s *Swarm) touch(nodeID int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen[strconv.Itoa(nodeID)] = now
}

// removeOwner removes every owner record whose NodeID matches and clears
// its LastSeen entry. Returns true if the swarm is now empty.
func (s *Swarm) removeOwner(nodeID int) (empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.owners.ToSlice() {
		if o.NodeID == nodeID {
			s.owners.Remove(o)
		}
	}
	delete(s.lastSeen, strconv.Itoa(nodeID))
	return s.owners.Cardinality() == 0
}

// reapExpired removes every owner whose LastSeen age exceeds ttl. Returns
// true if the swarm is now empty.
func (s *Swarm) reapExpired(now time.Time, ttl time.Duration) (removed []wire.Owner, empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.owners.ToSlice() {
		key := strconv.Itoa(o.NodeID)
		seen, ok := s.lastSeen[key]
		if !ok || now.Sub(seen) > ttl {
			s.owners.Remove(o)
			delete(s.lastSeen, key)
			removed = append(removed, o)
		}
	}
	return removed, s.owners.Cardinality() == 0
}

func (s *Swarm) setMeta(m meta.Meta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = m
}

// snapshot returns a consistent, lock-free copy of the swarm's current state.
func (s *Swarm) snapshot() (meta.Meta, []wire.Owner) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta, s.owners.ToSlice()
}
