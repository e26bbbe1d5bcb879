package statsapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/p2pswarm/p2pswarm/internal/tracker"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the read-only HTTP surface over a Tracker's directory.
type Server struct {
	tracker *tracker.Tracker
	hub     *Hub
}

// NewServer builds a Server. hub may be nil if the live activity feed isn't
// wanted.
func NewServer(t *tracker.Tracker, hub *Hub) *Server {
	return &Server{tracker: t, hub: hub}
}

// Router builds the mux.Router serving this Server's endpoints.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/swarms", s.handleSwarms).Methods(http.MethodGet)
	r.HandleFunc("/ws/activity", s.handleActivityWS).Methods(http.MethodGet)
	return r
}

func (s *Server) handleSwarms(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Printf("[statsapi] encode snapshot: %v", err)
	}
}

func (s *Server) handleActivityWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "activity feed disabled", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[statsapi] websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	send := s.hub.register(conn)
	defer s.hub.unregister(conn)

	// Drain and discard inbound frames; this socket is strictly server-push.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for msg := range send {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
