package tracker

import (
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2pswarm/p2pswarm/internal/meta"
	"github.com/p2pswarm/p2pswarm/internal/wire"
)

func testMeta(filename string) meta.Meta {
	return meta.Meta{Filename: filename, Size: 100, PieceSize: 50, PieceHashes: []string{"a", "b"}}
}

func TestDispatch_OwnThenNeed(t *testing.T) {
	tr := New(60*time.Second, clock.NewMock(), "", nil)
	m := testMeta("movie.mp4")

	_, err := tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeOwn, NodeID: 1, Host: "10.0.0.1", Port: 9000, Infohash: "ih1", Meta: &m})
	require.NoError(t, err)

	resp, err := tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeNeed, NodeID: 2, Infohash: "ih1"})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.OK)
	require.Len(t, resp.Peers, 1)
	assert.Equal(t, 1, resp.Peers[0].NodeID)
}

func TestDispatch_NeedUnknownInfohash(t *testing.T) {
	tr := New(60*time.Second, clock.NewMock(), "", nil)
	resp, err := tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeNeed, NodeID: 1, Infohash: "nope"})
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, wire.ErrNotFound, resp.Error)
}

func TestDispatch_FindByNameAmbiguous(t *testing.T) {
	tr := New(60*time.Second, clock.NewMock(), "", nil)
	m1 := testMeta("song.mp3")
	m2 := testMeta("song.mp3")

	_, _ = tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeOwn, NodeID: 1, Infohash: "ihA", Meta: &m1})
	_, _ = tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeOwn, NodeID: 2, Infohash: "ihB", Meta: &m2})

	resp, err := tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeFindByName, NodeID: 3, Filename: "SONG.mp3"})
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, wire.ErrAmbiguous, resp.Error)
	assert.Len(t, resp.Matches, 2)
}

func TestDispatch_FindByNameSingleMatch(t *testing.T) {
	tr := New(60*time.Second, clock.NewMock(), "", nil)
	m := testMeta("unique.iso")
	_, _ = tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeOwn, NodeID: 1, Infohash: "ihC", Meta: &m})

	resp, err := tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeFindByName, NodeID: 2, Filename: "unique.iso"})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	require.NotNil(t, resp.Match)
	assert.Equal(t, "ihC", resp.Match.Infohash)
}

func TestDispatch_ExitRemovesOwnerAndPrunesEmptySwarm(t *testing.T) {
	tr := New(60*time.Second, clock.NewMock(), "", nil)
	m := testMeta("a.bin")
	_, _ = tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeOwn, NodeID: 1, Infohash: "ihD", Meta: &m})

	// Same node also owns an unrelated swarm; EXIT for ihD must not touch it.
	other := testMeta("b.bin")
	_, _ = tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeOwn, NodeID: 1, Infohash: "ihOther", Meta: &other})

	_, err := tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeExit, NodeID: 1, Infohash: "ihD"})
	require.NoError(t, err)

	resp, err := tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeNeed, NodeID: 2, Infohash: "ihD"})
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, wire.ErrNotFound, resp.Error)

	resp, err = tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeNeed, NodeID: 2, Infohash: "ihOther"})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	require.Len(t, resp.Peers, 1)
	assert.Equal(t, 1, resp.Peers[0].NodeID)
}

func TestReaper_EvictsExpiredOwners(t *testing.T) {
	mock := clock.NewMock()
	tr := New(30*time.Second, mock, "", nil)
	m := testMeta("a.bin")
	_, _ = tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeOwn, NodeID: 1, Infohash: "ihE", Meta: &m})

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		tr.RunReaper(stop)
		close(done)
	}()

	mock.Add(ReapInterval)
	mock.Add(40 * time.Second)
	mock.Add(ReapInterval)

	close(stop)
	<-done

	resp, err := tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeNeed, NodeID: 2, Infohash: "ihE"})
	require.NoError(t, err)
	assert.False(t, resp.OK)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/snapshot.json"

	tr := New(60*time.Second, clock.NewMock(), path, nil)
	m := testMeta("persisted.bin")
	_, _ = tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeOwn, NodeID: 1, Host: "h", Port: 1, Infohash: "ihF", Meta: &m})

	require.NoError(t, tr.WriteSnapshot())

	tr2 := New(60*time.Second, clock.NewMock(), path, nil)
	require.NoError(t, tr2.LoadSnapshot())

	resp, err := tr2.Dispatch(wire.TrackerRequest{Mode: wire.ModeNeed, NodeID: 2, Infohash: "ihF"})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	require.Len(t, resp.Peers, 1)
	assert.Equal(t, 1, resp.Peers[0].NodeID)
}
