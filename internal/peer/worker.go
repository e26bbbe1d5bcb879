package peer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p2pswarm/p2pswarm/internal/wire"
)

// fetchDeadline bounds how long a single piece fetch waits for every block
// to arrive before the worker gives up and requeues it.
const fetchDeadline = 5 * time.Second

// fetchPoll is how often a stalled fetch re-checks its deadline between
// block arrivals.
const fetchPoll = 50 * time.Millisecond

// run fans missing pieces out across one worker per owner, pulling from a
// shared FIFO queue, until every piece is fetched and verified or ctx is
// canceled.
func (d *Download) run(ctx context.Context, n *Node, owners []wire.Owner) error {
	missing := d.missingPieces()
	total := len(missing)
	if total == 0 {
		return nil
	}

	jobs := make(chan int, d.m.TotalPieces())
	for _, idx := range missing {
		jobs <- idx
	}

	var remaining int64 = int64(total)
	done := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	for _, owner := range owners {
		owner := owner
		g.Go(func() error {
			return d.worker(gctx, n, owner, jobs, done, &remaining)
		})
	}

	progressStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-progressStop:
				return
			case <-ticker.C:
				_ = d.saveProgress()
			}
		}
	}()
	defer close(progressStop)

	err := g.Wait()
	_ = d.saveProgress()
	return err
}

func (d *Download) worker(ctx context.Context, n *Node, owner wire.Owner, jobs chan int, done chan struct{}, remaining *int64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		case idx, ok := <-jobs:
			if !ok {
				return nil
			}
			data, err := d.fetchPiece(ctx, n, owner, idx)
			if err != nil {
				log.Printf("[peer] piece %d from %v failed, requeueing: %v", idx, owner, err)
				jobs <- idx
				continue
			}

			if err := d.writePiece(idx, data); err != nil {
				return fmt.Errorf("peer: write piece %d: %w", idx, err)
			}
			d.markComplete(idx)
			if err := d.saveProgress(); err != nil {
				log.Printf("[peer] save resume state for %s: %v", d.ih, err)
			}

			if atomic.AddInt64(remaining, -1) == 0 {
				close(done)
				return nil
			}
		}
	}
}

// fetchPiece requests one piece from owner and blocks until every block has
// arrived (or fetchDeadline elapses), then verifies the reassembled piece
// against its recorded hash.
func (d *Download) fetchPiece(ctx context.Context, n *Node, owner wire.Owner, idx int) ([]byte, error) {
	pieceLen, err := d.m.PieceLength(idx)
	if err != nil {
		return nil, err
	}
	total := blockCount(pieceLen, n.cfg.BlockSize)

	ch := d.registerWaiter(idx, total)
	defer d.unregisterWaiter(idx)

	raw, err := wire.Encode(wire.NewGetPieceMsg(d.ih, idx))
	if err != nil {
		return nil, fmt.Errorf("peer: encode GET_PIECE: %w", err)
	}
	addr := &net.UDPAddr{IP: net.ParseIP(owner.Host), Port: owner.Port}
	if _, err := n.conn.WriteToUDP(raw, addr); err != nil {
		return nil, fmt.Errorf("peer: send GET_PIECE: %w", err)
	}

	blocks := make([][]byte, total)
	received := 0
	deadline := time.Now().Add(fetchDeadline)

	for received < total {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case blk := <-ch:
			if blk.Block < 0 || blk.Block >= total {
				continue
			}
			data, err := blk.Decode()
			if err != nil {
				continue
			}
			if blocks[blk.Block] == nil {
				blocks[blk.Block] = data
				received++
			}
		case <-time.After(fetchPoll):
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timed out waiting for piece %d (%d/%d blocks)", idx, received, total)
			}
		}
	}

	var buf bytes.Buffer
	for _, b := range blocks {
		buf.Write(b)
	}
	data := buf.Bytes()

	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if got != d.m.PieceHashes[idx] {
		return nil, fmt.Errorf("piece %d hash mismatch: got %s want %s", idx, got, d.m.PieceHashes[idx])
	}
	return data, nil
}
