package peer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/willf/bitset"

	"github.com/p2pswarm/p2pswarm/internal/meta"
)

func TestSaveLoadResume_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.bin")

	m := meta.Meta{Filename: "out.bin", Size: 100, PieceSize: 50, PieceHashes: []string{"a", "b"}}
	completed := bitset.New(2)
	completed.Set(0)

	require.NoError(t, saveResume(dest, resumeState{Infohash: "ih1", Meta: m, Completed: completed}))

	got, ok := loadResume(dest, "ih1")
	require.True(t, ok)
	assert.Equal(t, m, got.Meta)
	assert.True(t, got.Completed.Test(0))
	assert.False(t, got.Completed.Test(1))
}

func TestLoadResume_WrongInfohashIgnored(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.bin")

	m := meta.Meta{Size: 10, PieceSize: 5, PieceHashes: []string{"a", "b"}}
	require.NoError(t, saveResume(dest, resumeState{Infohash: "ih1", Meta: m, Completed: bitset.New(2)}))

	_, ok := loadResume(dest, "other")
	assert.False(t, ok)
}

func TestLoadResume_MissingSidecar(t *testing.T) {
	dir := t.TempDir()
	_, ok := loadResume(filepath.Join(dir, "missing.bin"), "ih1")
	assert.False(t, ok)
}
