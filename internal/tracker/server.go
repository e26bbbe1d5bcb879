package tracker

import (
	"log"
	"net"

	"github.com/p2pswarm/p2pswarm/internal/wire"
)

// MaxDatagramSize bounds a single read from the tracker socket.
const MaxDatagramSize = 64 * 1024

// Server listens for tracker-directed datagrams and dispatches each to the
// directory. One goroutine per request keeps a slow handler from stalling
// unrelated requests; the directory's own locking keeps concurrent handlers
// safe.
type Server struct {
	conn    *net.UDPConn
	tracker *Tracker
}

// Listen opens the tracker's UDP socket on addr (host:port).
func Listen(addr string, t *Tracker) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Server{conn: conn, tracker: t}, nil
}

// Addr returns the socket's bound local address.
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Close releases the underlying socket.
func (s *Server) Close() error {
	return s.conn.Close()
}

// Serve blocks, reading and dispatching datagrams until the socket is
// closed.
func (s *Server) Serve() error {
	buf := make([]byte, MaxDatagramSize)
	for {
		n, raddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		go s.handle(payload, raddr)
	}
}

func (s *Server) handle(payload []byte, raddr *net.UDPAddr) {
	req, err := wire.DecodeTrackerRequest(payload)
	if err != nil {
		log.Printf("[tracker] malformed request from %s: %v", raddr, err)
		return
	}

	resp, err := s.tracker.Dispatch(req)
	if err != nil {
		log.Printf("[tracker] dispatch error from %s (mode=%s): %v", raddr, req.Mode, err)
		switch req.Mode {
		case wire.ModeOwn, wire.ModeRegister, wire.ModeExit:
			return
		}
		resp = &wire.TrackerResponse{OK: false, Error: err.Error()}
	}
	if resp == nil {
		return
	}

	raw, err := wire.EncodeTrackerResponse(*resp)
	if err != nil {
		log.Printf("[tracker] encode response error: %v", err)
		return
	}
	if _, err := s.conn.WriteToUDP(raw, raddr); err != nil {
		log.Printf("[tracker] write response to %s failed: %v", raddr, err)
	}
}
