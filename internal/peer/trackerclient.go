package peer

import (
	"fmt"
	"net"
	"time"

	"github.com/p2pswarm/p2pswarm/internal/wire"
)

// callTimeout bounds how long a one-shot tracker request waits for a reply.
const callTimeout = 5 * time.Second

// notify sends a fire-and-forget tracker request (OWN, REGISTER, EXIT) and
// does not wait for a reply.
func notify(trackerAddr string, req wire.TrackerRequest) error {
	raw, err := wire.EncodeTrackerRequest(req)
	if err != nil {
		return fmt.Errorf("peer: encode tracker request: %w", err)
	}

	conn, err := net.Dial("udp", trackerAddr)
	if err != nil {
		return fmt.Errorf("peer: dial tracker: %w", err)
	}
	defer conn.Close()

	_, err = conn.Write(raw)
	return err
}

// call sends a tracker request and waits up to callTimeout for its reply
// (NEED, LIST, FIND_BY_NAME).
func call(trackerAddr string, req wire.TrackerRequest) (*wire.TrackerResponse, error) {
	raw, err := wire.EncodeTrackerRequest(req)
	if err != nil {
		return nil, fmt.Errorf("peer: encode tracker request: %w", err)
	}

	conn, err := net.Dial("udp", trackerAddr)
	if err != nil {
		return nil, fmt.Errorf("peer: dial tracker: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(callTimeout)); err != nil {
		return nil, fmt.Errorf("peer: set deadline: %w", err)
	}
	if _, err := conn.Write(raw); err != nil {
		return nil, fmt.Errorf("peer: write tracker request: %w", err)
	}

	buf := make([]byte, 64*1024)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("peer: read tracker response: %w", err)
	}

	resp, err := wire.DecodeTrackerResponse(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("peer: decode tracker response: %w", err)
	}
	return &resp, nil
}
