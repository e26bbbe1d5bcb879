// Package tracker implements the swarm directory: the in-memory registry of
// which nodes own which infohashes, reachable over the six tracker
// request modes, with TTL-based liveness reaping and JSON snapshot
// persistence.
package tracker

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"

	"github.com/p2pswarm/p2pswarm/internal/meta"
	"github.com/p2pswarm/p2pswarm/internal/wire"
)

// Tracker is the swarm directory. A two-level lock mirrors the shape of the
// data: dirMu guards the swarms map itself (adding/removing entries), while
// each Swarm guards its own owner set so a slow owner-set operation never
// blocks lookups against unrelated swarms.
type Tracker struct {
	dirMu  sync.RWMutex
	swarms map[string]*Swarm // key: infohash

	byName map[string][]string // lowercased filename -> infohashes, for FIND_BY_NAME

	ttl   time.Duration
	clock clock.Clock

	snapshotPath string
	store        SnapshotStore // optional mirror, nil if unconfigured
}

// SnapshotStore persists a point-in-time directory snapshot somewhere other
// than the local JSON file, e.g. Postgres. It is called once per reaper
// pass; individual requests do not trigger it. Implementations must not
// block the caller for long.
type SnapshotStore interface {
	SaveSnapshot(Snapshot) error
}

// New builds a Tracker. ttl is the owner liveness window; clk lets tests
// control time deterministically. snapshotPath, if non-empty, is where the
// directory is periodically persisted as JSON.
func New(ttl time.Duration, clk clock.Clock, snapshotPath string, store SnapshotStore) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{
		swarms:       make(map[string]*Swarm),
		byName:       make(map[string][]string),
		ttl:          ttl,
		clock:        clk,
		snapshotPath: snapshotPath,
		store:        store,
	}
}

func (t *Tracker) swarmFor(ih string) (*Swarm, bool) {
	t.dirMu.RLock()
	defer t.dirMu.RUnlock()
	s, ok := t.swarms[ih]
	return s, ok
}

func (t *Tracker) getOrCreateSwarm(ih string, m meta.Meta) *Swarm {
	t.dirMu.Lock()
	defer t.dirMu.Unlock()
	s, ok := t.swarms[ih]
	if !ok {
		s = newSwarm(m)
		t.swarms[ih] = s
		if m.Filename != "" {
			key := normalizeName(m.Filename)
			t.byName[key] = appendUnique(t.byName[key], ih)
		}
		return s
	}
	if m.Filename != "" {
		s.setMeta(m)
	}
	return s
}

// Dispatch handles one decoded request and returns the reply to send, or
// nil for modes the spec defines as fire-and-forget (OWN, REGISTER, EXIT).
func (t *Tracker) Dispatch(req wire.TrackerRequest) (*wire.TrackerResponse, error) {
	now := t.clock.Now()
	owner := wire.Owner{NodeID: req.NodeID, Host: req.Host, Port: req.Port}

	switch req.Mode {
	case wire.ModeOwn:
		if req.Infohash == "" || req.Meta == nil {
			return nil, fmt.Errorf("tracker: OWN requires infohash and meta")
		}
		s := t.getOrCreateSwarm(req.Infohash, *req.Meta)
		s.addOwner(owner, now)
		log.Printf("[tracker] OWN node=%d ih=%s file=%q", req.NodeID, short(req.Infohash), req.Meta.Filename)
		return nil, nil

	case wire.ModeRegister:
		if req.Infohash == "" {
			return nil, fmt.Errorf("tracker: REGISTER requires infohash")
		}
		s, ok := t.swarmFor(req.Infohash)
		if !ok {
			return nil, nil
		}
		s.touch(req.NodeID, now)
		return nil, nil

	case wire.ModeNeed:
		if req.Infohash == "" {
			return nil, fmt.Errorf("tracker: NEED requires infohash")
		}
		s, ok := t.swarmFor(req.Infohash)
		if !ok {
			return &wire.TrackerResponse{OK: false, Error: wire.ErrNotFound}, nil
		}
		m, owners := s.snapshot()
		return &wire.TrackerResponse{OK: true, Infohash: req.Infohash, Meta: &m, Peers: owners}, nil

	case wire.ModeList:
		return &wire.TrackerResponse{OK: true, Items: t.listAll()}, nil

	case wire.ModeFindByName:
		return t.findByName(req.Filename), nil

	case wire.ModeExit:
		if req.Infohash == "" {
			return nil, fmt.Errorf("tracker: EXIT requires infohash")
		}
		t.handleExit(req.NodeID, req.Infohash)
		log.Printf("[tracker] EXIT node=%d ih=%s", req.NodeID, short(req.Infohash))
		return nil, nil

	default:
		return nil, fmt.Errorf("tracker: unhandled mode %q", req.Mode)
	}
}

func (t *Tracker) listAll() []wire.ListItem {
	t.dirMu.RLock()
	snap := make(map[string]*Swarm, len(t.swarms))
	for ih, s := range t.swarms {
		snap[ih] = s
	}
	t.dirMu.RUnlock()

	items := make([]wire.ListItem, 0, len(snap))
	for ih, s := range snap {
		m, owners := s.snapshot()
		items = append(items, wire.ListItem{
			Infohash: ih,
			Filename: m.Filename,
			Size:     m.Size,
			Pieces:   m.TotalPieces(),
			Peers:    len(owners),
		})
	}
	return items
}

func (t *Tracker) findByName(filename string) *wire.TrackerResponse {
	key := normalizeName(filename)

	t.dirMu.RLock()
	ihs := append([]string(nil), t.byName[key]...)
	t.dirMu.RUnlock()

	if len(ihs) == 0 {
		return &wire.TrackerResponse{OK: false, Error: wire.ErrNotFound}
	}

	matches := make([]wire.FindMatch, 0, len(ihs))
	for _, ih := range ihs {
		s, ok := t.swarmFor(ih)
		if !ok {
			continue
		}
		m, owners := s.snapshot()
		if len(owners) == 0 {
			continue
		}
		matches = append(matches, wire.FindMatch{Infohash: ih, Filename: m.Filename, Size: m.Size, Peers: len(owners)})
	}

	switch len(matches) {
	case 0:
		return &wire.TrackerResponse{OK: false, Error: wire.ErrNotFound}
	case 1:
		return &wire.TrackerResponse{OK: true, Match: &matches[0]}
	default:
		return &wire.TrackerResponse{OK: false, Error: wire.ErrAmbiguous, Matches: matches}
	}
}

// handleExit removes a node from the single swarm named by ih, leaving every
// other swarm it owns untouched. A swarm left empty by the removal is
// pruned immediately (along with its name index entry) rather than waiting
// for the reaper, since EXIT is an explicit, trusted signal. A request
// naming an infohash we don't track is a no-op.
func (t *Tracker) handleExit(nodeID int, ih string) {
	t.dirMu.Lock()
	defer t.dirMu.Unlock()

	s, ok := t.swarms[ih]
	if !ok {
		return
	}
	if empty := s.removeOwner(nodeID); empty {
		delete(t.swarms, ih)
		t.pruneNameIndexLocked(ih)
	}
}

func (t *Tracker) pruneNameIndexLocked(ih string) {
	for name, ihs := range t.byName {
		filtered := ihs[:0]
		for _, x := range ihs {
			if x != ih {
				filtered = append(filtered, x)
			}
		}
		if len(filtered) == 0 {
			delete(t.byName, name)
		} else {
			t.byName[name] = filtered
		}
	}
}

func normalizeName(filename string) string {
	lower := make([]byte, len(filename))
	for i := 0; i < len(filename); i++ {
		c := filename[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		lower[i] = c
	}
	return string(lower)
}

func appendUnique(ihs []string, ih string) []string {
	for _, x := range ihs {
		if x == ih {
			return ihs
		}
	}
	return append(ihs, ih)
}

func short(ih string) string {
	if len(ih) <= 12 {
		return ih
	}
	return ih[:12]
}
