package peer

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/willf/bitset"

	"github.com/p2pswarm/p2pswarm/internal/meta"
	"github.com/p2pswarm/p2pswarm/internal/wire"
)

// Download coordinates fetching every piece of one infohash into destPath,
// across however many owners the tracker currently lists for it.
type Download struct {
	ih       string
	m        meta.Meta
	destPath string
	node     *Node

	completed *bitset.BitSet
	fileMu    sync.Mutex
	file      *os.File

	waitersMu sync.Mutex
	waiters   map[int]chan wire.PieceBlockMsg
}

// ErrNothingFound is returned when NEED reports the infohash isn't tracked.
var ErrNothingFound = fmt.Errorf("peer: infohash not found on tracker")

// FetchByName resolves filename to an infohash via FIND_BY_NAME, then
// fetches it. Returns wire.ErrAmbiguous as part of the error if more than
// one swarm currently advertises that filename.
func (n *Node) FetchByName(ctx context.Context, filename, destPath string) error {
	resp, err := call(n.cfg.TrackerAddr, wire.TrackerRequest{Mode: wire.ModeFindByName, NodeID: n.cfg.NodeID, Filename: filename})
	if err != nil {
		return fmt.Errorf("peer: FIND_BY_NAME %s: %w", filename, err)
	}
	if !resp.OK {
		if resp.Error == wire.ErrAmbiguous {
			return fmt.Errorf("peer: %s: %q matches %d swarms, specify an infohash instead", wire.ErrAmbiguous, filename, len(resp.Matches))
		}
		return ErrNothingFound
	}
	return n.Fetch(ctx, resp.Match.Infohash, destPath)
}

// Fetch resolves ih against the tracker, resumes any partial download found
// at destPath, and blocks until every piece has been fetched and verified,
// after which destPath holds the complete, finalized file.
func (n *Node) Fetch(ctx context.Context, ih, destPath string) error {
	resp, err := call(n.cfg.TrackerAddr, wire.TrackerRequest{Mode: wire.ModeNeed, NodeID: n.cfg.NodeID, Infohash: ih})
	if err != nil {
		return fmt.Errorf("peer: NEED %s: %w", ih, err)
	}
	if !resp.OK || resp.Meta == nil {
		return ErrNothingFound
	}
	if len(resp.Peers) == 0 {
		return fmt.Errorf("peer: no owners currently advertise %s", ih)
	}

	d, err := newDownload(ih, *resp.Meta, destPath)
	if err != nil {
		return err
	}
	defer d.file.Close()

	n.registerDownload(d)
	defer n.unregisterDownload(ih)

	if err := d.run(ctx, n, resp.Peers); err != nil {
		_ = d.saveProgress()
		return err
	}

	return d.finalize()
}

func newDownload(ih string, m meta.Meta, destPath string) (*Download, error) {
	d := &Download{
		ih:       ih,
		m:        m,
		destPath: destPath,
		waiters:  make(map[int]chan wire.PieceBlockMsg),
	}

	if state, ok := loadResume(destPath, ih); ok && state.Meta.PieceSize == m.PieceSize && state.Meta.Size == m.Size {
		d.completed = state.Completed
		log.Printf("[peer] resuming %s: %d/%d pieces already verified", ih, d.completed.Count(), m.TotalPieces())
	} else {
		d.completed = bitset.New(uint(m.TotalPieces()))
	}

	f, err := os.OpenFile(partPath(destPath), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("peer: open part file: %w", err)
	}
	if err := f.Truncate(m.Size); err != nil {
		f.Close()
		return nil, fmt.Errorf("peer: truncate part file: %w", err)
	}
	d.file = f
	return d, nil
}

func (d *Download) missingPieces() []int {
	var out []int
	for i := 0; i < d.m.TotalPieces(); i++ {
		if !d.completed.Test(uint(i)) {
			out = append(out, i)
		}
	}
	return out
}

func (d *Download) deliverBlock(blk wire.PieceBlockMsg) {
	d.waitersMu.Lock()
	ch, ok := d.waiters[blk.Piece]
	d.waitersMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- blk:
	default:
	}
}

func (d *Download) registerWaiter(piece int, buf int) chan wire.PieceBlockMsg {
	ch := make(chan wire.PieceBlockMsg, buf)
	d.waitersMu.Lock()
	d.waiters[piece] = ch
	d.waitersMu.Unlock()
	return ch
}

func (d *Download) unregisterWaiter(piece int) {
	d.waitersMu.Lock()
	delete(d.waiters, piece)
	d.waitersMu.Unlock()
}

func (d *Download) writePiece(idx int, data []byte) error {
	offset := int64(idx) * d.m.PieceSize
	d.fileMu.Lock()
	defer d.fileMu.Unlock()
	_, err := d.file.WriteAt(data, offset)
	return err
}

func (d *Download) markComplete(idx int) {
	d.fileMu.Lock()
	d.completed.Set(uint(idx))
	d.fileMu.Unlock()
}

// saveProgress persists the resume sidecar so an interrupted download can
// pick up where it left off.
func (d *Download) saveProgress() error {
	d.fileMu.Lock()
	snapshot := d.completed.Clone()
	d.fileMu.Unlock()
	return saveResume(d.destPath, resumeState{Infohash: d.ih, Meta: d.m, Completed: snapshot})
}

// finalize truncates the part file to its exact final size and renames it
// into place, dropping the now-unneeded resume sidecar. The file handle is
// left open for the caller to close — POSIX permits renaming a file that is
// still open.
func (d *Download) finalize() error {
	if err := d.file.Truncate(d.m.Size); err != nil {
		return fmt.Errorf("peer: truncate final file: %w", err)
	}
	if err := os.Rename(partPath(d.destPath), d.destPath); err != nil {
		return fmt.Errorf("peer: finalize rename: %w", err)
	}
	removeResumeSidecar(d.destPath)
	log.Printf("[peer] download complete: %s (%s, %d pieces)", d.destPath, d.ih, d.m.TotalPieces())
	return nil
}
