package seedindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndexesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte("hello world"), 0o644))

	idx, err := New(dir, 1024, nil)
	require.NoError(t, err)
	defer idx.Close()

	entries := idx.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "a.bin", filepath.Base(entries[0].Path))

	path, ok := idx.Lookup(entries[0].Infohash)
	require.True(t, ok)
	assert.Equal(t, entries[0].Path, path)
}

func TestIndex_PicksUpNewFile(t *testing.T) {
	dir := t.TempDir()
	idx, err := New(dir, 1024, nil)
	require.NoError(t, err)
	defer idx.Close()

	stop := make(chan struct{})
	defer close(stop)
	go idx.Run(stop)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.bin"), []byte("new content"), 0o644))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(idx.Entries()) == 1 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	entries := idx.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "b.bin", filepath.Base(entries[0].Path))
}
