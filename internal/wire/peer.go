package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// PeerMessageType enumerates the closed set of peer-to-peer message kinds.
type PeerMessageType string

const (
	TypeGetPiece   PeerMessageType = "GET_PIECE"
	TypePieceBlock PeerMessageType = "PIECE_BLOCK"
)

// peerEnvelope is used only to sniff the "type" tag before decoding the full
// typed payload.
type peerEnvelope struct {
	Type PeerMessageType `json:"type"`
}

// GetPieceMsg requests one piece of one swarm's content from a peer.
type GetPieceMsg struct {
	Type  PeerMessageType `json:"type"`
	IH    string          `json:"ih"`
	Piece int             `json:"piece"`
}

// PieceBlockMsg carries one self-describing block of a piece. Blocks may
// arrive out of order; Block/TotalBlocks let the receiver reassemble them.
type PieceBlockMsg struct {
	Type        PeerMessageType `json:"type"`
	IH          string          `json:"ih"`
	Piece       int             `json:"piece"`
	Block       int             `json:"block"`
	TotalBlocks int             `json:"total_blocks"`
	Data        string          `json:"data"`
}

// NewGetPieceMsg builds a GET_PIECE request.
func NewGetPieceMsg(ih string, piece int) GetPieceMsg {
	return GetPieceMsg{Type: TypeGetPiece, IH: ih, Piece: piece}
}

// NewPieceBlockMsg builds a PIECE_BLOCK reply carrying one block, base64-encoding data.
func NewPieceBlockMsg(ih string, piece, block, totalBlocks int, data []byte) PieceBlockMsg {
	return PieceBlockMsg{
		Type:        TypePieceBlock,
		IH:          ih,
		Piece:       piece,
		Block:       block,
		TotalBlocks: totalBlocks,
		Data:        base64.StdEncoding.EncodeToString(data),
	}
}

// Decode returns the block's payload bytes.
func (m PieceBlockMsg) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(m.Data)
}

// PeerMessage is a tagged variant over the two peer-to-peer message kinds.
// Exactly one of GetPiece/PieceBlock is non-nil.
type PeerMessage struct {
	GetPiece   *GetPieceMsg
	PieceBlock *PieceBlockMsg
}

// DecodePeerMessage sniffs the "type" tag and decodes into the matching
// typed payload. Unknown tags and malformed frames are rejected so the
// caller can silently discard them (UDP losses and noise are normal).
func DecodePeerMessage(raw []byte) (PeerMessage, error) {
	var env peerEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PeerMessage{}, fmt.Errorf("wire: decode peer envelope: %w", err)
	}

	switch env.Type {
	case TypeGetPiece:
		var m GetPieceMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return PeerMessage{}, fmt.Errorf("wire: decode GET_PIECE: %w", err)
		}
		return PeerMessage{GetPiece: &m}, nil
	case TypePieceBlock:
		var m PieceBlockMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return PeerMessage{}, fmt.Errorf("wire: decode PIECE_BLOCK: %w", err)
		}
		return PeerMessage{PieceBlock: &m}, nil
	default:
		return PeerMessage{}, fmt.Errorf("wire: unknown peer message type %q", env.Type)
	}
}

// Encode serializes any peer-directed message to its wire form.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
