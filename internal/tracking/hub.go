// README: Websocket session registry for live job tracking and driver offer delivery.
package tracking

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"towline/internal/types"
)

var ErrNoSession = errors.New("no websocket session")

// session wraps a conn with a write lock; gorilla conns allow one concurrent
// writer.
type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Hub tracks connected driver sessions so offers can be pushed directly when
// a driver keeps a socket open.
type Hub struct {
	mu       sync.RWMutex
	sessions map[types.ID]*session
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[types.ID]*session)}
}

func (h *Hub) Add(driverID types.ID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.sessions[driverID]; ok {
		old.conn.Close()
	}
	h.sessions[driverID] = &session{conn: conn}
}

func (h *Hub) Remove(driverID types.ID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.sessions[driverID]; ok && cur.conn == conn {
		delete(h.sessions, driverID)
	}
}

// Send pushes v to the driver's session, returning ErrNoSession when the
// driver has no open socket.
func (h *Hub) Send(driverID types.ID, v any) error {
	h.mu.RLock()
	s, ok := h.sessions[driverID]
	h.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.send(v)
}

func (h *Hub) Connected(driverID types.ID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[driverID]
	return ok
}
