package peer

import "testing"

func TestBlockCount(t *testing.T) {
	cases := []struct {
		pieceLen, blockSize int64
		want                int
	}{
		{100, 16, 7},
		{16, 16, 1},
		{0, 16, 0},
		{17, 16, 2},
	}
	for _, c := range cases {
		if got := blockCount(c.pieceLen, c.blockSize); got != c.want {
			t.Errorf("blockCount(%d,%d) = %d, want %d", c.pieceLen, c.blockSize, got, c.want)
		}
	}
}

func TestBlockBounds(t *testing.T) {
	offset, length := blockBounds(100, 16, 6)
	if offset != 96 || length != 4 {
		t.Errorf("blockBounds last block = (%d,%d), want (96,4)", offset, length)
	}

	offset, length = blockBounds(100, 16, 0)
	if offset != 0 || length != 16 {
		t.Errorf("blockBounds first block = (%d,%d), want (0,16)", offset, length)
	}
}
