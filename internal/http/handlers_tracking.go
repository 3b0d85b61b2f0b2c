// README: Websocket endpoints for live job tracking and driver connections.
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"towline/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleTrackingSocket streams job tracking events to a customer. The read
// pump exists only to detect the peer closing; no inbound messages are
// expected on this socket.
func (s *Server) handleTrackingSocket(c *gin.Context) {
	jobID := pathID(c)
	if _, err := s.jobs.Get(c.Request.Context(), jobID); err != nil {
		writeError(c, err)
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("tracking upgrade failed", "job", jobID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for ev := range s.tracker.Subscribe(ctx, jobID) {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

type driverPing struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// handleDriverSocket keeps a driver connected for offer delivery and accepts
// location pings on the same socket.
func (s *Server) handleDriverSocket(c *gin.Context) {
	driverID := pathID(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("driver upgrade failed", "driver", driverID, "error", err)
		return
	}
	s.hub.Add(driverID, conn)
	defer func() {
		s.hub.Remove(driverID, conn)
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ping driverPing
		if err := json.Unmarshal(msg, &ping); err != nil {
			continue
		}
		if err := s.locator.UpdateLocation(c.Request.Context(), driverID, types.Point{Lat: ping.Lat, Lng: ping.Lng}); err != nil {
			s.logger.Warn("socket location update failed", "driver", driverID, "error", err)
		}
	}
}
