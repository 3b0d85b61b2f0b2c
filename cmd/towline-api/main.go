// README: Entry point; loads config, wires services, starts the HTTP server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"towline/internal/config"
	"towline/internal/gateway"
	httptransport "towline/internal/http"
	"towline/internal/infra"
	"towline/internal/logging"
	"towline/internal/maps"
	"towline/internal/modules/dispatch"
	"towline/internal/modules/driver"
	"towline/internal/modules/payment"
	"towline/internal/modules/pricing"
	"towline/internal/modules/towjob"
	"towline/internal/notify"
	"towline/internal/stream"
	"towline/internal/tracking"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.NewLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stripeGW, err := gateway.NewStripeGateway(cfg.Stripe.APIKey)
	if err != nil {
		log.Fatalf("stripe init: %v (set STRIPE_API_KEY)", err)
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	producer := stream.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	var routes maps.Estimator = maps.HaversineEstimator{}
	if cfg.Maps.APIKey != "" {
		rs, err := maps.NewRouteService(cfg.Maps.APIKey, 0)
		if err != nil {
			logger.Warn("maps client init failed, using haversine estimates", "error", err)
		} else {
			routes = rs
		}
	}

	var pusher notify.Pusher
	if cfg.Push.Endpoint != "" {
		pusher = notify.NewHTTPPusher(cfg.Push.Endpoint, cfg.Push.Key)
	}
	notifySvc := notify.NewService(notify.NewPGStore(dbPool), pusher, logger)

	tracker := tracking.NewPublisher(redisClient)
	hub := tracking.NewHub()

	pricingSvc := pricing.NewService(pricing.NewPGStore(dbPool), cfg.Pricing)

	jobStore := towjob.NewPGStore(dbPool)
	driverStore := driver.NewPGStore(dbPool)
	paymentSvc := payment.NewService(stripeGW, payment.NewPGStore(dbPool), jobStore, driverStore, logger)

	jobSvc := towjob.NewService(jobStore, pricingSvc, paymentSvc, logger)
	dispatchSvc := dispatch.NewService(dispatch.NewPGStore(dbPool), jobSvc, notifySvc, hub, cfg.Dispatch, logger)
	jobSvc.WithCollaborators(dispatchSvc, notifySvc, tracker, producer)

	locator := driver.NewLocator(driverStore, driver.NewRedisGeo(redisClient), producer, logger)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Jobs:     jobSvc,
		Pricing:  pricingSvc,
		Dispatch: dispatchSvc,
		Locator:  locator,
		Payments: paymentSvc,
		Notify:   notifySvc,
		Tracker:  tracker,
		Hub:      hub,
		Routes:   routes,
		Config:   cfg.Dispatch,
		Logger:   logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}()

	logger.Info("towline api listening", "addr", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
