// README: Customer-facing handlers: quote, create, lookup, cancel, rate, history.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"towline/internal/modules/pricing"
	"towline/internal/modules/towjob"
	"towline/internal/types"
)

type quoteReq struct {
	PickupLat     float64 `json:"pickup_lat"`
	PickupLng     float64 `json:"pickup_lng"`
	DropoffLat    float64 `json:"dropoff_lat"`
	DropoffLng    float64 `json:"dropoff_lng"`
	ServiceTypeID string  `json:"service_type_id"`
	VehicleTypeID string  `json:"vehicle_type_id"`
	TowReasonID   string  `json:"tow_reason_id"`
	Surge         bool    `json:"surge"`
}

func (s *Server) handleQuote(c *gin.Context) {
	var req quoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	q, err := s.pricing.Quote(c.Request.Context(), pricing.QuoteCommand{
		Pickup:        types.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		Dropoff:       types.Point{Lat: req.DropoffLat, Lng: req.DropoffLng},
		ServiceTypeID: types.ID(req.ServiceTypeID),
		VehicleTypeID: types.ID(req.VehicleTypeID),
		TowReasonID:   types.ID(req.TowReasonID),
		At:            time.Now().UTC(),
		Surge:         req.Surge,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

type vehicleReq struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  int    `json:"year"`
	Color string `json:"color"`
	Plate string `json:"plate"`
}

type createReq struct {
	CustomerID     string     `json:"customer_id"`
	PickupLat      float64    `json:"pickup_lat"`
	PickupLng      float64    `json:"pickup_lng"`
	DropoffLat     float64    `json:"dropoff_lat"`
	DropoffLng     float64    `json:"dropoff_lng"`
	PickupAddress  string     `json:"pickup_address"`
	DropoffAddress string     `json:"dropoff_address"`
	ServiceTypeID  string     `json:"service_type_id"`
	VehicleTypeID  string     `json:"vehicle_type_id"`
	TowReasonID    string     `json:"tow_reason_id"`
	Vehicle        vehicleReq `json:"vehicle"`
	Surge          bool       `json:"surge"`
}

// handleCreate runs the full intake: quote + hold + persist, then candidate
// search and the first offer batch. A search failure leaves the job in
// searching for operator escalation rather than failing the request.
func (s *Server) handleCreate(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	j, err := s.jobs.Create(c.Request.Context(), towjob.CreateCommand{
		CustomerID:     types.ID(req.CustomerID),
		Pickup:         types.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		Dropoff:        types.Point{Lat: req.DropoffLat, Lng: req.DropoffLng},
		PickupAddress:  req.PickupAddress,
		DropoffAddress: req.DropoffAddress,
		ServiceTypeID:  types.ID(req.ServiceTypeID),
		VehicleTypeID:  types.ID(req.VehicleTypeID),
		TowReasonID:    types.ID(req.TowReasonID),
		Vehicle: towjob.VehicleInfo{
			Make:  req.Vehicle.Make,
			Model: req.Vehicle.Model,
			Year:  req.Vehicle.Year,
			Color: req.Vehicle.Color,
			Plate: req.Vehicle.Plate,
		},
		Surge: req.Surge,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	offersSent := 0
	candidates, err := s.locator.FindCandidates(c.Request.Context(), j.Pickup, j.VehicleTypeID, s.cfg.SearchRadiusMiles, s.cfg.CandidateLimit)
	if err != nil {
		s.logger.Error("candidate search failed", "job", j.ID, "error", err)
	} else if len(candidates) > 0 {
		offersSent, err = s.dispatch.Dispatch(c.Request.Context(), j.ID, candidates)
		if err != nil {
			s.logger.Error("offer dispatch failed", "job", j.ID, "error", err)
		}
	}

	resp := jobView(j)
	resp["offers_sent"] = offersSent
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleGet(c *gin.Context) {
	j, err := s.jobs.Get(c.Request.Context(), pathID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobView(j))
}

type cancelReq struct {
	ActorType string `json:"actor_type"`
	ActorID   string `json:"actor_id"`
	Reason    string `json:"reason"`
}

func (s *Server) handleCancel(c *gin.Context) {
	var req cancelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ActorType == "" {
		req.ActorType = "customer"
	}
	j, err := s.jobs.Cancel(c.Request.Context(), towjob.CancelCommand{
		JobID:     pathID(c),
		ActorType: req.ActorType,
		ActorID:   types.ID(req.ActorID),
		Reason:    req.Reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobView(j))
}

type rateReq struct {
	ActorType string `json:"actor_type"`
	Stars     int    `json:"stars"`
}

func (s *Server) handleRate(c *gin.Context) {
	var req rateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	err := s.jobs.Rate(c.Request.Context(), towjob.RateCommand{
		JobID:     pathID(c),
		ActorType: req.ActorType,
		Stars:     req.Stars,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rated": true})
}

func (s *Server) handleCustomerHistory(c *gin.Context) {
	jobs, err := s.jobs.ListByCustomer(c.Request.Context(), pathID(c), 50)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]gin.H, len(jobs))
	for i, j := range jobs {
		out[i] = jobView(j)
	}
	c.JSON(http.StatusOK, gin.H{"tow_requests": out})
}

// handleETA answers "how far out is the truck". Before pickup the leg runs
// from the driver's last known position to the pickup; once the vehicle is
// loaded it runs to the dropoff. Unassigned jobs get the pickup-to-dropoff
// route estimate instead.
func (s *Server) handleETA(c *gin.Context) {
	j, err := s.jobs.Get(c.Request.Context(), pathID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	origin := j.Pickup
	target := j.Dropoff
	leg := "pickup_to_dropoff"
	if j.DriverID != nil {
		d, derr := s.locator.Get(c.Request.Context(), *j.DriverID)
		if derr == nil && d.Location != nil {
			origin = *d.Location
			switch j.Status {
			case towjob.StatusVehicleLoaded, towjob.StatusEnRouteDropoff, towjob.StatusArrivedDropoff:
				target = j.Dropoff
				leg = "to_dropoff"
			default:
				target = j.Pickup
				leg = "to_pickup"
			}
		}
	}

	est, err := s.routes.Route(c.Request.Context(), origin, target)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":         j.ID,
		"leg":            leg,
		"distance_miles": est.DistanceMiles,
		"eta_minutes":    est.Minutes,
	})
}

func (s *Server) handleOffers(c *gin.Context) {
	offers, err := s.dispatch.Offers(c.Request.Context(), pathID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": offers})
}

func (s *Server) handleTransactions(c *gin.Context) {
	txs, err := s.payments.Transactions(c.Request.Context(), pathID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (s *Server) handleNotifications(c *gin.Context) {
	ns, err := s.notify.List(c.Request.Context(), pathID(c), 50)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": ns})
}

func (s *Server) handleNotificationRead(c *gin.Context) {
	if err := s.notify.MarkRead(c.Request.Context(), pathID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true})
}
