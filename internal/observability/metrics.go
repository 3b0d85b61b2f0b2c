// README: Prometheus metrics for dispatch, acceptance, payments, and HTTP.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OffersSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "towline", Name: "offers_sent_total", Help: "Offers sent to drivers"})
	OfferBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "towline", Name: "offer_batches_total", Help: "Offer batches dispatched"})
	AcceptsWonTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "towline", Name: "accepts_won_total", Help: "Accept attempts that won the job"})
	AcceptsLostTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "towline", Name: "accepts_lost_total", Help: "Accept attempts that lost the race"})
	JobsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "towline", Name: "jobs_completed_total", Help: "Jobs that reached completed"})
	JobsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "towline", Name: "jobs_cancelled_total", Help: "Jobs that were cancelled"})
	CaptureFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "towline", Name: "capture_failures_total", Help: "Payment captures that failed and await retry"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "towline", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "towline",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
