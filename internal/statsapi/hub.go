// Package statsapi exposes a read-only HTTP view over the tracker's swarm
// directory, plus a WebSocket feed that relays whatever Events are passed to
// Hub.Publish: no accounts, no mutating endpoints, purely for dashboards and
// debugging.
package statsapi

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is one line of the live activity feed pushed to connected clients.
type Event struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Hub fans Event broadcasts out to every connected WebSocket client.
type Hub struct {
	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]chan []byte

	broadcast chan []byte
}

// NewHub builds an idle Hub; call Run to start fanning out broadcasts.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]chan []byte),
		broadcast: make(chan []byte, 256),
	}
}

// Publish encodes and queues ev for delivery to every connected client.
// Non-blocking: a full broadcast buffer drops the event rather than stall
// the caller.
func (h *Hub) Publish(ev Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- raw:
	default:
		log.Printf("[statsapi] broadcast buffer full, dropping event %q", ev.Category)
	}
}

// Run blocks, fanning out broadcasts to every registered client until stop
// is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case msg := <-h.broadcast:
			h.clientsMu.RLock()
			for _, send := range h.clients {
				select {
				case send <- msg:
				default:
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

func (h *Hub) register(conn *websocket.Conn) chan []byte {
	send := make(chan []byte, 32)
	h.clientsMu.Lock()
	h.clients[conn] = send
	h.clientsMu.Unlock()
	return send
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if send, ok := h.clients[conn]; ok {
		close(send)
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()
}
