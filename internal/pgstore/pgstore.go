// Package pgstore optionally mirrors tracker snapshots into Postgres, purely
// for external querying/reporting — the tracker's own JSON snapshot file
// remains the source of truth it restarts from.
package pgstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"github.com/p2pswarm/p2pswarm/internal/tracker"
)

// Store wraps a Postgres connection used to mirror directory snapshots.
type Store struct {
	db *sql.DB
}

// Connect opens a Postgres connection using connStr and ensures the mirror
// table exists.
func Connect(connStr string) (*Store, error) {
	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)

	s := &Store{db: sqlDB}
	if err := s.ensureSchema(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	log.Println("[pgstore] connected, mirroring tracker snapshots")
	return s, nil
}

func (s *Store) ensureSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tracker_snapshots (
	id SERIAL PRIMARY KEY,
	captured_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	swarm_count INTEGER NOT NULL,
	payload JSONB NOT NULL
)`
	_, err := s.db.Exec(ddl)
	if err != nil {
		return fmt.Errorf("pgstore: ensure schema: %w", err)
	}
	return nil
}

// SaveSnapshot inserts one row recording the directory's current state.
// Implements tracker.SnapshotStore.
func (s *Store) SaveSnapshot(snap tracker.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("pgstore: marshal snapshot: %w", err)
	}

	const q = `INSERT INTO tracker_snapshots (swarm_count, payload) VALUES ($1, $2)`
	if _, err := s.db.Exec(q, len(snap.Swarms), raw); err != nil {
		return fmt.Errorf("pgstore: insert snapshot: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
