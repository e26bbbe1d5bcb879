package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTrackerRequest_RejectsUnknownMode(t *testing.T) {
	_, err := DecodeTrackerRequest([]byte(`{"mode":"BOGUS","node_id":1}`))
	assert.Error(t, err)
}

func TestDecodeTrackerRequest_RoundTrip(t *testing.T) {
	req := TrackerRequest{Mode: ModeNeed, NodeID: 7, Infohash: "abc"}
	raw, err := EncodeTrackerRequest(req)
	require.NoError(t, err)

	got, err := DecodeTrackerRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestPeerMessage_GetPieceRoundTrip(t *testing.T) {
	msg := NewGetPieceMsg("deadbeef", 3)
	raw, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := DecodePeerMessage(raw)
	require.NoError(t, err)
	require.NotNil(t, decoded.GetPiece)
	assert.Nil(t, decoded.PieceBlock)
	assert.Equal(t, msg, *decoded.GetPiece)
}

func TestPeerMessage_PieceBlockRoundTrip(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	msg := NewPieceBlockMsg("deadbeef", 3, 0, 2, data)
	raw, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := DecodePeerMessage(raw)
	require.NoError(t, err)
	require.NotNil(t, decoded.PieceBlock)

	got, err := decoded.PieceBlock.Decode()
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDecodePeerMessage_RejectsUnknownType(t *testing.T) {
	_, err := DecodePeerMessage([]byte(`{"type":"WAT"}`))
	assert.Error(t, err)
}

func TestDecodePeerMessage_RejectsMalformed(t *testing.T) {
	_, err := DecodePeerMessage([]byte(`not json`))
	assert.Error(t, err)
}
