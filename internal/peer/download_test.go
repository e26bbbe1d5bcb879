package peer

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2pswarm/p2pswarm/internal/meta"
	"github.com/p2pswarm/p2pswarm/internal/seedindex"
	"github.com/p2pswarm/p2pswarm/internal/wire"
)

func startNode(t *testing.T, seedDir string, pieceSize int64) *Node {
	t.Helper()
	idx, err := seedindex.New(seedDir, pieceSize, nil)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	n, err := NewNode(Config{BlockSize: 16, HeartbeatInterval: time.Hour}, idx)
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })

	go n.Serve()
	return n
}

func TestFetch_RoundTripBetweenTwoNodes(t *testing.T) {
	content := make([]byte, 130)
	for i := range content {
		content[i] = byte(i)
	}

	seedDir := t.TempDir()
	srcPath := filepath.Join(seedDir, "file.bin")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	seeder := startNode(t, seedDir, 50)
	downloaderDir := t.TempDir()
	downloader := startNode(t, t.TempDir(), 50)

	ih, m, err := meta.BuildMeta(srcPath, 50)
	require.NoError(t, err)

	owners := []wire.Owner{{NodeID: 1, Host: "127.0.0.1", Port: seeder.Addr().(*net.UDPAddr).Port}}

	d, err := newDownload(ih, m, filepath.Join(downloaderDir, "file.bin"))
	require.NoError(t, err)
	defer d.file.Close()

	downloader.registerDownload(d)
	defer downloader.unregisterDownload(ih)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, d.run(ctx, downloader, owners))
	require.NoError(t, d.finalize())

	got, err := os.ReadFile(filepath.Join(downloaderDir, "file.bin"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}
