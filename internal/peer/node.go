// Package peer implements the peer-side protocol: serving pieces from a
// local seed directory, and downloading a file's pieces in parallel from
// whichever owners the tracker returns.
package peer

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/p2pswarm/p2pswarm/internal/seedindex"
	"github.com/p2pswarm/p2pswarm/internal/wire"
)

// Config holds everything a Node needs to identify itself and reach the
// tracker.
type Config struct {
	NodeID            int
	Port              int
	AdvertiseHost     string
	TrackerAddr       string
	BlockSize         int64
	HeartbeatInterval time.Duration
}

// Node is one running peer process: it serves GET_PIECE requests against
// its seed index and coordinates any downloads currently in progress.
type Node struct {
	cfg   Config
	conn  *net.UDPConn
	index *seedindex.Index

	mu        sync.Mutex
	downloads map[string]*Download

	ownMu   sync.Mutex
	lastOwn map[string]time.Time
}

// NewNode binds the peer's UDP socket and wires it to idx.
func NewNode(cfg Config, idx *seedindex.Index) (*Node, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("peer: resolve bind addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("peer: listen: %w", err)
	}
	return &Node{
		cfg:       cfg,
		conn:      conn,
		index:     idx,
		downloads: make(map[string]*Download),
		lastOwn:   make(map[string]time.Time),
	}, nil
}

// Addr returns the socket's bound local address.
func (n *Node) Addr() net.Addr {
	return n.conn.LocalAddr()
}

// Close releases the node's socket.
func (n *Node) Close() error {
	return n.conn.Close()
}

// Serve blocks, reading and dispatching peer datagrams until the socket is
// closed.
func (n *Node) Serve() error {
	buf := make([]byte, 64*1024)
	for {
		sz, raddr, err := n.conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		payload := make([]byte, sz)
		copy(payload, buf[:sz])
		go n.handle(payload, raddr)
	}
}

func (n *Node) handle(payload []byte, raddr *net.UDPAddr) {
	msg, err := wire.DecodePeerMessage(payload)
	if err != nil {
		return
	}
	switch {
	case msg.GetPiece != nil:
		n.serveGetPiece(*msg.GetPiece, raddr)
	case msg.PieceBlock != nil:
		n.routeBlock(*msg.PieceBlock)
	}
}

// serveGetPiece reads the requested piece from the local seed index and
// streams it back as a sequence of PIECE_BLOCK datagrams. A miss (unknown
// infohash, out-of-range piece) is silently dropped — requests for content
// we no longer seed are expected background noise, not errors.
func (n *Node) serveGetPiece(req wire.GetPieceMsg, raddr *net.UDPAddr) {
	entry, ok := n.index.LookupEntry(req.IH)
	if !ok {
		return
	}
	pieceLen, err := entry.Meta.PieceLength(req.Piece)
	if err != nil {
		return
	}

	f, err := os.Open(entry.Path)
	if err != nil {
		log.Printf("[peer] open %s for piece %d: %v", entry.Path, req.Piece, err)
		return
	}
	defer f.Close()

	buf := make([]byte, pieceLen)
	offset := int64(req.Piece) * entry.Meta.PieceSize
	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		log.Printf("[peer] read %s piece %d: %v", entry.Path, req.Piece, err)
		return
	}

	total := blockCount(pieceLen, n.cfg.BlockSize)
	for b := 0; b < total; b++ {
		bo, bl := blockBounds(pieceLen, n.cfg.BlockSize, b)
		out := wire.NewPieceBlockMsg(req.IH, req.Piece, b, total, buf[bo:bo+bl])
		raw, err := wire.Encode(out)
		if err != nil {
			continue
		}
		if _, err := n.conn.WriteToUDP(raw, raddr); err != nil {
			log.Printf("[peer] write block %d/%d of piece %d to %s: %v", b, total, req.Piece, raddr, err)
			return
		}
	}
}

func (n *Node) routeBlock(blk wire.PieceBlockMsg) {
	n.mu.Lock()
	d, ok := n.downloads[blk.IH]
	n.mu.Unlock()
	if !ok {
		return
	}
	d.deliverBlock(blk)
}

func (n *Node) registerDownload(d *Download) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.downloads[d.ih] = d
}

func (n *Node) unregisterDownload(ih string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.downloads, ih)
}

// activeDownloadHashes returns the infohashes of downloads currently in
// progress, for heartbeat REGISTER announcements.
func (n *Node) activeDownloadHashes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.downloads))
	for ih := range n.downloads {
		out = append(out, ih)
	}
	return out
}

// AnnounceOwn sends an immediate OWN for entry and records the time so the
// next heartbeat tick doesn't also re-send one. Callers use this to push a
// newly (re)indexed file to the tracker right away instead of waiting for
// the next heartbeat.
func (n *Node) AnnounceOwn(entry seedindex.Entry) {
	m := entry.Meta
	req := wire.TrackerRequest{
		Mode:     wire.ModeOwn,
		NodeID:   n.cfg.NodeID,
		Host:     n.cfg.AdvertiseHost,
		Port:     n.cfg.Port,
		Infohash: entry.Infohash,
		Meta:     &m,
	}
	if err := notify(n.cfg.TrackerAddr, req); err != nil {
		log.Printf("[peer] OWN %s failed: %v", entry.Infohash, err)
		return
	}
	n.markOwnSent(entry.Infohash)
}

func (n *Node) markOwnSent(ih string) {
	n.ownMu.Lock()
	defer n.ownMu.Unlock()
	n.lastOwn[ih] = time.Now()
}

// dueForOwn reports whether ih hasn't had an OWN sent within ownRetryInterval.
func (n *Node) dueForOwn(ih string) bool {
	n.ownMu.Lock()
	defer n.ownMu.Unlock()
	last, ok := n.lastOwn[ih]
	return !ok || time.Since(last) >= ownRetryInterval
}
