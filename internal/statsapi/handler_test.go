package statsapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2pswarm/p2pswarm/internal/meta"
	"github.com/p2pswarm/p2pswarm/internal/tracker"
	"github.com/p2pswarm/p2pswarm/internal/wire"
)

func TestHandleSwarms_ReturnsCurrentSnapshot(t *testing.T) {
	tr := tracker.New(60*time.Second, clock.NewMock(), "", nil)
	m := meta.Meta{Filename: "a.bin", Size: 10, PieceSize: 5, PieceHashes: []string{"a", "b"}}
	_, err := tr.Dispatch(wire.TrackerRequest{Mode: wire.ModeOwn, NodeID: 1, Infohash: "ih1", Meta: &m})
	require.NoError(t, err)

	srv := NewServer(tr, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/swarms")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleActivityWS_DisabledWithoutHub(t *testing.T) {
	tr := tracker.New(60*time.Second, clock.NewMock(), "", nil)
	srv := NewServer(tr, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ws/activity")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
