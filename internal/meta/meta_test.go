package meta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, size int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.bin")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestBuildMeta_Deterministic(t *testing.T) {
	path := writeTempFile(t, 300000)

	ih1, m1, err := BuildMeta(path, 262144)
	require.NoError(t, err)
	ih2, m2, err := BuildMeta(path, 262144)
	require.NoError(t, err)

	assert.Equal(t, ih1, ih2)
	assert.Equal(t, m1, m2)
	assert.Len(t, m1.PieceHashes, 2)
	assert.EqualValues(t, 300000, m1.Size)
}

func TestBuildMeta_ExactMultipleOfPieceSize(t *testing.T) {
	path := writeTempFile(t, 2*262144)

	_, m, err := BuildMeta(path, 262144)
	require.NoError(t, err)
	assert.Len(t, m.PieceHashes, 2)

	last, err := m.PieceLength(1)
	require.NoError(t, err)
	assert.EqualValues(t, 262144, last)
}

func TestBuildMeta_EmptyFile(t *testing.T) {
	path := writeTempFile(t, 0)

	_, m, err := BuildMeta(path, 262144)
	require.NoError(t, err)
	assert.Empty(t, m.PieceHashes)
	assert.Equal(t, 0, m.TotalPieces())
}

func TestInfohash_ChangesOnAnyFieldChange(t *testing.T) {
	base := Meta{Filename: "a.bin", Size: 10, PieceSize: 262144, PieceHashes: []string{"abc"}}
	ih0, err := Infohash(base)
	require.NoError(t, err)

	variants := []Meta{
		{Filename: "b.bin", Size: 10, PieceSize: 262144, PieceHashes: []string{"abc"}},
		{Filename: "a.bin", Size: 11, PieceSize: 262144, PieceHashes: []string{"abc"}},
		{Filename: "a.bin", Size: 10, PieceSize: 131072, PieceHashes: []string{"abc"}},
		{Filename: "a.bin", Size: 10, PieceSize: 262144, PieceHashes: []string{"abd"}},
	}
	for _, v := range variants {
		ih, err := Infohash(v)
		require.NoError(t, err)
		assert.NotEqual(t, ih0, ih)
	}
}

func TestCanonicalJSON_KeysSorted(t *testing.T) {
	m := Meta{Filename: "z.bin", Size: 1, PieceSize: 2, PieceHashes: []string{"h"}}
	raw, err := CanonicalJSON(m)
	require.NoError(t, err)

	expected := `{"filename":"z.bin","piece_hashes":["h"],"piece_size":2,"size":1}`
	assert.JSONEq(t, expected, string(raw))
	assert.Equal(t, expected, string(raw))
}

func TestPieceLength_OutOfRange(t *testing.T) {
	m := Meta{Size: 10, PieceSize: 5, PieceHashes: []string{"a", "b"}}
	_, err := m.PieceLength(2)
	assert.Error(t, err)
}
