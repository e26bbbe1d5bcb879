package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/p2pswarm/p2pswarm/internal/meta"
	"github.com/p2pswarm/p2pswarm/internal/wire"
)

// SwarmEntry is one swarm's persisted state.
type SwarmEntry struct {
	Infohash string      `json:"infohash"`
	Meta     meta.Meta   `json:"meta"`
	Owners   []wire.Owner `json:"owners"`
}

// Snapshot is the full persisted directory state.
type Snapshot struct {
	Swarms []SwarmEntry `json:"swarms"`
}

// Snapshot returns a consistent, lock-free copy of the entire directory.
func (t *Tracker) Snapshot() Snapshot {
	t.dirMu.RLock()
	swarms := make(map[string]*Swarm, len(t.swarms))
	for ih, s := range t.swarms {
		swarms[ih] = s
	}
	t.dirMu.RUnlock()

	out := Snapshot{Swarms: make([]SwarmEntry, 0, len(swarms))}
	for ih, s := range swarms {
		m, owners := s.snapshot()
		out.Swarms = append(out.Swarms, SwarmEntry{Infohash: ih, Meta: m, Owners: owners})
	}
	return out
}

// WriteSnapshot persists the current directory to t.snapshotPath, writing to
// a sibling temp file and renaming over the destination so readers never see
// a partially written file.
func (t *Tracker) WriteSnapshot() error {
	if t.snapshotPath == "" {
		return fmt.Errorf("tracker: no snapshot path configured")
	}

	raw, err := json.MarshalIndent(t.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("tracker: marshal snapshot: %w", err)
	}

	dir := filepath.Dir(t.snapshotPath)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", filepath.Base(t.snapshotPath), uuid.NewString()))

	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("tracker: write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, t.snapshotPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("tracker: rename snapshot into place: %w", err)
	}
	return nil
}

// LoadSnapshot restores swarm state from t.snapshotPath, if it exists.
// Owners are restored with a fresh LastSeen of now so a tracker restart
// doesn't instantly evict everyone before their next REGISTER arrives.
func (t *Tracker) LoadSnapshot() error {
	if t.snapshotPath == "" {
		return nil
	}

	raw, err := os.ReadFile(t.snapshotPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("tracker: read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("tracker: unmarshal snapshot: %w", err)
	}

	now := t.clock.Now()

	t.dirMu.Lock()
	defer t.dirMu.Unlock()

	for _, entry := range snap.Swarms {
		s := newSwarm(entry.Meta)
		for _, o := range entry.Owners {
			s.addOwner(o, now)
		}
		t.swarms[entry.Infohash] = s
		if entry.Meta.Filename != "" {
			key := normalizeName(entry.Meta.Filename)
			t.byName[key] = appendUnique(t.byName[key], entry.Infohash)
		}
	}
	return nil
}
