package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/p2pswarm/p2pswarm/internal/config"
	"github.com/p2pswarm/p2pswarm/internal/peer"
	"github.com/p2pswarm/p2pswarm/internal/seedindex"
)

func main() {
	cfg, err := config.Load(os.Getenv("PEER_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := os.MkdirAll(cfg.SeedDir, 0o755); err != nil {
		log.Fatalf("seed dir: %v", err)
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		log.Fatalf("download dir: %v", err)
	}

	// node doesn't exist until after idx does, so onUpdate forwards through
	// this pointer; it's set before idx's watch loop starts below, and the
	// initial synchronous scan inside seedindex.New runs before that, so
	// there's no concurrent access to node while it's still nil.
	var node *peer.Node
	onUpdate := func(e seedindex.Entry) {
		if node != nil {
			node.AnnounceOwn(e)
		}
	}
	idx, err := seedindex.New(cfg.SeedDir, cfg.PieceSize, onUpdate)
	if err != nil {
		log.Fatalf("seedindex: %v", err)
	}
	defer idx.Close()

	nodeCfg := peer.Config{
		NodeID:            cfg.NodeID,
		Port:              cfg.NodePort,
		AdvertiseHost:     cfg.AdvertiseHost,
		TrackerAddr:       cfg.TrackerAddr(),
		BlockSize:         cfg.BlockSize,
		HeartbeatInterval: time.Duration(cfg.HeartbeatSec) * time.Second,
	}
	node, err = peer.NewNode(nodeCfg, idx)
	if err != nil {
		log.Fatalf("peer: %v", err)
	}
	defer node.Close()
	log.Printf("peer node %d listening on %s, seeding %s", cfg.NodeID, node.Addr(), cfg.SeedDir)

	stop := make(chan struct{})
	go idx.Run(stop)
	go node.RunHeartbeat(stop)
	go func() {
		if err := node.Serve(); err != nil {
			log.Printf("peer: serve stopped: %v", err)
		}
	}()

	if len(os.Args) > 2 && os.Args[1] == "get" {
		target := os.Args[2]
		dest := filepath.Join(cfg.DownloadDir, target)
		if len(os.Args) > 3 {
			dest = os.Args[3]
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if err := node.FetchByName(ctx, target, dest); err != nil {
			log.Fatalf("get %s: %v", target, err)
		}
		log.Printf("fetched %s -> %s", target, dest)
		close(stop)
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutting down peer...")
	close(stop)
}
