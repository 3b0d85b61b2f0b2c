// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"towline/internal/config"
	"towline/internal/http/middleware"
	"towline/internal/maps"
	"towline/internal/modules/dispatch"
	"towline/internal/modules/driver"
	"towline/internal/modules/payment"
	"towline/internal/modules/pricing"
	"towline/internal/modules/towjob"
	"towline/internal/notify"
	"towline/internal/tracking"
)

type ServerDeps struct {
	Jobs     *towjob.Service
	Pricing  *pricing.Service
	Dispatch *dispatch.Service
	Locator  *driver.Locator
	Payments *payment.Service
	Notify   *notify.Service
	Tracker  *tracking.Publisher
	Hub      *tracking.Hub
	Routes   maps.Estimator
	Config   config.DispatchConfig
	Logger   *slog.Logger
}

type Server struct {
	jobs     *towjob.Service
	pricing  *pricing.Service
	dispatch *dispatch.Service
	locator  *driver.Locator
	payments *payment.Service
	notify   *notify.Service
	tracker  *tracking.Publisher
	hub      *tracking.Hub
	routes   maps.Estimator
	cfg      config.DispatchConfig
	logger   *slog.Logger
}

func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	routes := deps.Routes
	if routes == nil {
		routes = maps.HaversineEstimator{}
	}
	return &Server{
		jobs:     deps.Jobs,
		pricing:  deps.Pricing,
		dispatch: deps.Dispatch,
		locator:  deps.Locator,
		payments: deps.Payments,
		notify:   deps.Notify,
		tracker:  deps.Tracker,
		hub:      deps.Hub,
		routes:   routes,
		cfg:      deps.Config,
		logger:   logger,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.Logging(s.logger))
	r.Use(middleware.Metrics())

	v1 := r.Group("/api/v1")
	{
		v1.POST("/quotes", s.handleQuote)

		v1.POST("/tow-requests", s.handleCreate)
		v1.GET("/tow-requests/:id", s.handleGet)
		v1.GET("/tow-requests/:id/eta", s.handleETA)
		v1.GET("/tow-requests/:id/offers", s.handleOffers)
		v1.GET("/tow-requests/:id/transactions", s.handleTransactions)
		v1.POST("/tow-requests/:id/status", s.handleUpdateStatus)
		v1.POST("/tow-requests/:id/cancel", s.handleCancel)
		v1.POST("/tow-requests/:id/rate", s.handleRate)
		v1.POST("/tow-requests/:id/accept", s.handleAccept)
		v1.POST("/tow-requests/:id/reject", s.handleReject)

		v1.GET("/customers/:id/tow-requests", s.handleCustomerHistory)

		v1.GET("/drivers/:id/active-tow", s.handleDriverActiveJob)
		v1.PUT("/drivers/:id/location", s.handleDriverLocation)
		v1.PUT("/drivers/:id/availability", s.handleDriverAvailability)

		v1.GET("/users/:id/notifications", s.handleNotifications)
		v1.POST("/notifications/:id/read", s.handleNotificationRead)
	}

	r.GET("/ws/tracking/:id", s.handleTrackingSocket)
	r.GET("/ws/drivers/:id", s.handleDriverSocket)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}
