package peer

import (
	"log"
	"time"

	"github.com/p2pswarm/p2pswarm/internal/wire"
)

// ownRetryInterval bounds how often a heartbeat tick re-sends OWN (rather
// than REGISTER) for an already-announced seeded file. OWN carries meta and
// re-establishes ownership from scratch; REGISTER just refreshes liveness,
// so most ticks only need the cheaper of the two.
const ownRetryInterval = time.Minute

// RunHeartbeat periodically REGISTERs liveness for every infohash the node
// is seeding or downloading, occasionally re-sending the heavier OWN for a
// seeded file instead, until stop is closed.
func (n *Node) RunHeartbeat(stop <-chan struct{}) {
	ticker := time.NewTicker(n.cfg.HeartbeatInterval)
	defer ticker.Stop()

	n.beat()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n.beat()
		}
	}
}

func (n *Node) beat() {
	seeded := make(map[string]bool)
	for _, entry := range n.index.Entries() {
		seeded[entry.Infohash] = true
		if n.dueForOwn(entry.Infohash) {
			n.AnnounceOwn(entry)
			continue
		}
		n.register(entry.Infohash)
	}

	for _, ih := range n.activeDownloadHashes() {
		if seeded[ih] {
			continue
		}
		n.register(ih)
	}
}

func (n *Node) register(ih string) {
	req := wire.TrackerRequest{Mode: wire.ModeRegister, NodeID: n.cfg.NodeID, Infohash: ih}
	if err := notify(n.cfg.TrackerAddr, req); err != nil {
		log.Printf("[peer] heartbeat REGISTER %s failed: %v", ih, err)
	}
}
