package tracker

import (
	"log"
	"time"
)

// ReapInterval is how often the reaper sweeps every swarm for expired
// owners. The spec calls for a short tick relative to TTL so evictions
// happen promptly without busy-looping.
const ReapInterval = 10 * time.Second

// RunReaper blocks, sweeping expired owners every ReapInterval, until stop
// is closed. Call it in its own goroutine.
func (t *Tracker) RunReaper(stop <-chan struct{}) {
	ticker := t.clock.Ticker(ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.reapOnce()
		}
	}
}

func (t *Tracker) reapOnce() {
	now := t.clock.Now()

	t.dirMu.Lock()
	ihs := make([]string, 0, len(t.swarms))
	for ih := range t.swarms {
		ihs = append(ihs, ih)
	}
	t.dirMu.Unlock()

	for _, ih := range ihs {
		s, ok := t.swarmFor(ih)
		if !ok {
			continue
		}
		removed, empty := s.reapExpired(now, t.ttl)
		for _, o := range removed {
			log.Printf("[tracker] reap: node=%d left swarm ih=%s (ttl exceeded)", o.NodeID, short(ih))
		}
		if empty {
			t.dirMu.Lock()
			if cur, ok := t.swarms[ih]; ok && cur == s {
				delete(t.swarms, ih)
				t.pruneNameIndexLocked(ih)
			}
			t.dirMu.Unlock()
		}
	}

	if t.snapshotPath != "" {
		if err := t.WriteSnapshot(); err != nil {
			log.Printf("[tracker] snapshot write failed: %v", err)
		}
	}
	if t.store != nil {
		if err := t.store.SaveSnapshot(t.Snapshot()); err != nil {
			log.Printf("[tracker] snapshot mirror failed: %v", err)
		}
	}
}
