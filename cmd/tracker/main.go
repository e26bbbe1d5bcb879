package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andres-erbsen/clock"

	"github.com/p2pswarm/p2pswarm/internal/config"
	"github.com/p2pswarm/p2pswarm/internal/pgstore"
	"github.com/p2pswarm/p2pswarm/internal/statsapi"
	"github.com/p2pswarm/p2pswarm/internal/tracker"
)

func main() {
	log.Printf("Starting tracker...")

	cfg, err := config.Load(os.Getenv("TRACKER_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var store tracker.SnapshotStore
	if cfg.TrackerDBDSN != "" {
		pg, err := pgstore.Connect(cfg.TrackerDBDSN)
		if err != nil {
			log.Fatalf("pgstore: %v", err)
		}
		defer pg.Close()
		store = pg
	}

	t := tracker.New(time.Duration(cfg.TrackerTTLSec)*time.Second, clock.New(), cfg.TrackerSnapshot, store)
	if err := t.LoadSnapshot(); err != nil {
		log.Fatalf("tracker: load snapshot: %v", err)
	}

	srv, err := tracker.Listen(cfg.TrackerAddr(), t)
	if err != nil {
		log.Fatalf("tracker: listen: %v", err)
	}
	defer srv.Close()
	log.Printf("tracker listening on %s", srv.Addr())

	stop := make(chan struct{})
	go t.RunReaper(stop)

	go func() {
		if err := srv.Serve(); err != nil {
			log.Printf("tracker: serve stopped: %v", err)
		}
	}()

	if cfg.StatsAPIPort != 0 {
		hub := statsapi.NewHub()
		go hub.Run(stop)
		statsSrv := statsapi.NewServer(t, hub)
		addr := fmt.Sprintf(":%d", cfg.StatsAPIPort)
		go func() {
			log.Printf("stats API listening on %s", addr)
			if err := http.ListenAndServe(addr, statsSrv.Router()); err != nil {
				log.Printf("stats API stopped: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("shutting down tracker...")
	close(stop)
	if err := t.WriteSnapshot(); err != nil {
		log.Printf("tracker: final snapshot write failed: %v", err)
	}
}
