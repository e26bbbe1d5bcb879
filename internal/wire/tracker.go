// Package wire defines the JSON-over-UDP message envelopes exchanged between
// peers and the tracker, and between peers themselves.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/p2pswarm/p2pswarm/internal/meta"
)

// TrackerMode enumerates the closed set of tracker request kinds.
type TrackerMode string

const (
	ModeOwn        TrackerMode = "OWN"
	ModeRegister   TrackerMode = "REGISTER"
	ModeNeed       TrackerMode = "NEED"
	ModeList       TrackerMode = "LIST"
	ModeFindByName TrackerMode = "FIND_BY_NAME"
	ModeExit       TrackerMode = "EXIT"
)

// Owner identifies a process serving or fetching a swarm's pieces.
type Owner struct {
	NodeID int    `json:"node_id"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

// TrackerRequest is the envelope for every tracker-directed datagram. Not
// every field is meaningful for every Mode — see the mode table in the spec.
type TrackerRequest struct {
	Mode     TrackerMode `json:"mode"`
	NodeID   int         `json:"node_id"`
	Host     string      `json:"host,omitempty"`
	Port     int         `json:"port,omitempty"`
	Infohash string      `json:"infohash,omitempty"`
	Meta     *meta.Meta  `json:"meta,omitempty"`
	Filename string      `json:"filename,omitempty"`
}

// ListItem is one entry of a LIST response.
type ListItem struct {
	Infohash string `json:"infohash"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Pieces   int    `json:"pieces"`
	Peers    int    `json:"peers"`
}

// FindMatch is one candidate of a FIND_BY_NAME response.
type FindMatch struct {
	Infohash string `json:"infohash"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Peers    int    `json:"peers"`
}

// TrackerResponse is the envelope for every tracker reply. Modes that spec
// documents as "no reply" (OWN, REGISTER, EXIT) never produce one.
type TrackerResponse struct {
	OK       bool        `json:"ok"`
	Error    string      `json:"error,omitempty"`
	Infohash string      `json:"infohash,omitempty"`
	Meta     *meta.Meta  `json:"meta,omitempty"`
	Peers    []Owner     `json:"peers,omitempty"`
	Items    []ListItem  `json:"items,omitempty"`
	Match    *FindMatch  `json:"match,omitempty"`
	Matches  []FindMatch `json:"matches,omitempty"`
}

const (
	ErrNotFound  = "NOT_FOUND"
	ErrAmbiguous = "AMBIGUOUS"
)

// DecodeTrackerRequest parses and validates a tracker-directed datagram.
// Unknown or missing mode tags are rejected as malformed, per the spec's
// closed-enumeration dispatch model.
func DecodeTrackerRequest(raw []byte) (TrackerRequest, error) {
	var req TrackerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return TrackerRequest{}, fmt.Errorf("wire: decode tracker request: %w", err)
	}
	switch req.Mode {
	case ModeOwn, ModeRegister, ModeNeed, ModeList, ModeFindByName, ModeExit:
		return req, nil
	default:
		return TrackerRequest{}, fmt.Errorf("wire: unknown tracker mode %q", req.Mode)
	}
}

// EncodeTrackerRequest serializes a tracker request to its wire form.
func EncodeTrackerRequest(req TrackerRequest) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeTrackerResponse parses a tracker reply datagram.
func DecodeTrackerResponse(raw []byte) (TrackerResponse, error) {
	var resp TrackerResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return TrackerResponse{}, fmt.Errorf("wire: decode tracker response: %w", err)
	}
	return resp, nil
}

// EncodeTrackerResponse serializes a tracker reply to its wire form.
func EncodeTrackerResponse(resp TrackerResponse) ([]byte, error) {
	return json.Marshal(resp)
}
