// README: Driver-facing handlers: offer responses, status progression, location, availability.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"towline/internal/modules/towjob"
	"towline/internal/types"
)

type statusReq struct {
	DriverID string `json:"driver_id"`
	Status   string `json:"status"`
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	j, err := s.jobs.UpdateStatus(c.Request.Context(), towjob.UpdateStatusCommand{
		JobID:    pathID(c),
		DriverID: types.ID(req.DriverID),
		To:       towjob.Status(req.Status),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobView(j))
}

type offerRespReq struct {
	DriverID string `json:"driver_id"`
	Reason   string `json:"reason"`
}

func (s *Server) handleAccept(c *gin.Context) {
	var req offerRespReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	j, won, err := s.dispatch.Accept(c.Request.Context(), pathID(c), types.ID(req.DriverID))
	if err != nil {
		writeError(c, err)
		return
	}
	if !won {
		c.JSON(http.StatusConflict, gin.H{"error": "no longer available"})
		return
	}
	c.JSON(http.StatusOK, jobView(j))
}

func (s *Server) handleReject(c *gin.Context) {
	var req offerRespReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := s.dispatch.Reject(c.Request.Context(), pathID(c), types.ID(req.DriverID), req.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rejected": true})
}

func (s *Server) handleDriverActiveJob(c *gin.Context) {
	j, err := s.jobs.ActiveByDriver(c.Request.Context(), pathID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobView(j))
}

type locationReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (s *Server) handleDriverLocation(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := s.locator.UpdateLocation(c.Request.Context(), pathID(c), types.Point{Lat: req.Lat, Lng: req.Lng}); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

type availabilityReq struct {
	Online bool `json:"online"`
}

func (s *Server) handleDriverAvailability(c *gin.Context) {
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := s.locator.SetAvailability(c.Request.Context(), pathID(c), req.Online); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"online": req.Online})
}
