// Package config loads runtime configuration for the tracker and peer
// binaries: defaults, optionally overlaid by a key=value config file, then
// overridden by environment variables.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds every tunable the tracker and peer processes read. Not every
// field applies to both binaries; cmd/tracker and cmd/peer each read the
// subset they need.
type Config struct {
	// Tracker
	TrackerHost     string
	TrackerPort     int
	TrackerTTLSec   int
	TrackerSnapshot string // path the tracker persists its directory to
	TrackerDBDSN    string // optional Postgres mirror; empty disables it
	StatsAPIPort    int    // 0 disables the read-only HTTP/WS surface

	// Peer
	NodeID        int
	NodePort      int
	AdvertiseHost string
	SeedDir       string
	DownloadDir   string
	PieceSize     int64
	BlockSize     int64
	HeartbeatSec  int
}

// Load seeds defaults, overlays configPath if it exists, then overrides with
// environment variables — env always wins.
func Load(configPath string) (*Config, error) {
	cfg := &Config{
		TrackerHost:     "0.0.0.0",
		TrackerPort:     10001,
		TrackerTTLSec:   60,
		TrackerSnapshot: "tracker_snapshot.json",
		StatsAPIPort:    0,

		NodeID:        os.Getpid(),
		NodePort:      0,
		AdvertiseHost: "127.0.0.1",
		SeedDir:       "./seed",
		DownloadDir:   "./downloads",
		PieceSize:     256 * 1024,
		BlockSize:     8 * 1024,
		HeartbeatSec:  10,
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		}
	}

	cfg.loadFromEnv()
	return cfg, nil
}

func (cfg *Config) loadFromFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		cfg.apply(key, value)
	}
	return scanner.Err()
}

func (cfg *Config) loadFromEnv() {
	for _, key := range []string{
		"TRACKER_HOST", "TRACKER_PORT", "TRACKER_TTL_SEC", "TRACKER_SNAPSHOT", "TRACKER_DB_DSN", "STATS_API_PORT",
		"NODE_ID", "NODE_PORT", "ADVERTISE_HOST", "SEED_DIR", "DOWNLOAD_DIR", "PIECE_SIZE", "BLOCK_SIZE", "HEARTBEAT_SEC",
	} {
		if v := os.Getenv(key); v != "" {
			cfg.apply(key, v)
		}
	}
}

// apply sets the field matching either a config-file key or an environment
// variable name (case-insensitively). Unrecognized keys are ignored.
func (cfg *Config) apply(key, value string) {
	switch strings.ToUpper(key) {
	case "TRACKER_HOST":
		cfg.TrackerHost = value
	case "TRACKER_PORT":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.TrackerPort = n
		}
	case "TRACKER_TTL_SEC":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.TrackerTTLSec = n
		}
	case "TRACKER_SNAPSHOT":
		cfg.TrackerSnapshot = value
	case "TRACKER_DB_DSN":
		cfg.TrackerDBDSN = value
	case "STATS_API_PORT":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.StatsAPIPort = n
		}
	case "NODE_ID":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.NodeID = n
		}
	case "NODE_PORT":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.NodePort = n
		}
	case "ADVERTISE_HOST":
		cfg.AdvertiseHost = value
	case "SEED_DIR":
		cfg.SeedDir = value
	case "DOWNLOAD_DIR":
		cfg.DownloadDir = value
	case "PIECE_SIZE":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			cfg.PieceSize = n
		}
	case "BLOCK_SIZE":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			cfg.BlockSize = n
		}
	case "HEARTBEAT_SEC":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.HeartbeatSec = n
		}
	}
}

// TrackerAddr returns the host:port the tracker binds to.
func (cfg *Config) TrackerAddr() string {
	return fmt.Sprintf("%s:%d", cfg.TrackerHost, cfg.TrackerPort)
}
