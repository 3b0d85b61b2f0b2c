// README: Offer dispatcher and acceptance resolver: staged batches, timeouts, one winner.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"towline/internal/config"
	"towline/internal/modules/driver"
	"towline/internal/modules/towjob"
	"towline/internal/notify"
	"towline/internal/observability"
	"towline/internal/types"
)

// JobService is the slice of the lifecycle service the dispatcher needs: the
// current status for timeout checks and the CAS accept gate.
type JobService interface {
	Get(ctx context.Context, id types.ID) (*towjob.TowJob, error)
	Accept(ctx context.Context, cmd towjob.AcceptCommand) (*towjob.TowJob, error)
}

type Notifier interface {
	Notify(ctx context.Context, recipientID, jobID types.ID, kind notify.Kind, title, body string, data map[string]any)
}

// OfferSender pushes an offer over an open driver socket. Optional; push
// notifications cover drivers without one.
type OfferSender interface {
	Send(driverID types.ID, v any) error
}

type Service struct {
	offers   OfferStore
	jobs     JobService
	notifier Notifier
	hub      OfferSender
	logger   *slog.Logger

	batchSize int
	timeout   time.Duration

	mu     sync.Mutex
	timers map[types.ID]*time.Timer
}

func NewService(offers OfferStore, jobs JobService, notifier Notifier, hub OfferSender, cfg config.DispatchConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 3
	}
	timeout := time.Duration(cfg.AcceptTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		offers:    offers,
		jobs:      jobs,
		notifier:  notifier,
		hub:       hub,
		logger:    logger,
		batchSize: batch,
		timeout:   timeout,
		timers:    make(map[types.ID]*time.Timer),
	}
}

// Dispatch starts the staged offer fan-out for a searching job. Candidates
// arrive pre-ranked from the locator; the first batch goes out immediately
// and the rest are timer-driven. Returns the number of offers sent in the
// first batch.
func (s *Service) Dispatch(ctx context.Context, jobID types.ID, candidates []driver.Candidate) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}
	return s.dispatchBatch(ctx, jobID, candidates, 1)
}

func (s *Service) dispatchBatch(ctx context.Context, jobID types.ID, remaining []driver.Candidate, batch int) (int, error) {
	var offers []*Offer
	var rest []driver.Candidate
	for i, c := range remaining {
		if len(offers) == s.batchSize {
			rest = remaining[i:]
			break
		}
		open, err := s.offers.HasOpenOffer(ctx, jobID, c.DriverID)
		if err != nil {
			return 0, err
		}
		if open {
			continue
		}
		offers = append(offers, &Offer{
			JobID:         jobID,
			DriverID:      c.DriverID,
			Response:      ResponsePending,
			DistanceMiles: c.DistanceMiles,
			Batch:         batch,
			OfferedAt:     time.Now().UTC(),
		})
	}
	if len(offers) == 0 {
		s.logger.Info("offer candidates exhausted, job stays searching", "job", jobID, "batch", batch)
		return 0, nil
	}
	if err := s.offers.CreateBatch(ctx, offers); err != nil {
		return 0, err
	}
	observability.OfferBatchesTotal.Inc()
	observability.OffersSentTotal.Add(float64(len(offers)))

	// Notify the whole batch concurrently; one slow or failed delivery
	// must not hold back the others.
	var wg sync.WaitGroup
	for _, o := range offers {
		wg.Add(1)
		go func(o *Offer) {
			defer wg.Done()
			s.notifyDriver(ctx, o)
		}(o)
	}
	wg.Wait()

	s.scheduleTimeout(jobID, rest, batch)
	return len(offers), nil
}

func (s *Service) notifyDriver(ctx context.Context, o *Offer) {
	payload := map[string]any{
		"offer_id":       o.ID,
		"job_id":         o.JobID,
		"distance_miles": o.DistanceMiles,
	}
	if s.hub != nil {
		if err := s.hub.Send(o.DriverID, payload); err == nil {
			return
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, o.DriverID, o.JobID, notify.KindOfferReceived,
			"New tow request", "A tow job near you is waiting for a driver.", payload)
	}
}

// scheduleTimeout arms the per-job backup check. The previous timer, if any,
// is replaced; acceptance and cancellation stop it entirely.
func (s *Service) scheduleTimeout(jobID types.ID, rest []driver.Candidate, batch int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[jobID]; ok {
		t.Stop()
	}
	s.timers[jobID] = time.AfterFunc(s.timeout, func() {
		s.onTimeout(jobID, rest, batch)
	})
}

func (s *Service) stopTimer(jobID types.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[jobID]; ok {
		t.Stop()
		delete(s.timers, jobID)
	}
}

func (s *Service) onTimeout(jobID types.ID, rest []driver.Candidate, batch int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	j, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		s.logger.Error("timeout check failed", "job", jobID, "error", err)
		return
	}
	// A winner or a cancellation beat the timer; nothing to do.
	if j.Status != towjob.StatusSearching && j.Status != towjob.StatusPending {
		s.stopTimer(jobID)
		return
	}

	if err := s.offers.ExpirePendingInBatch(ctx, jobID, batch); err != nil {
		s.logger.Error("expire batch failed", "job", jobID, "batch", batch, "error", err)
		return
	}
	if len(rest) == 0 {
		s.logger.Info("offer candidates exhausted, job stays searching", "job", jobID, "batch", batch)
		s.stopTimer(jobID)
		return
	}
	if _, err := s.dispatchBatch(ctx, jobID, rest, batch+1); err != nil {
		s.logger.Error("next batch dispatch failed", "job", jobID, "batch", batch+1, "error", err)
	}
}

// Accept resolves a driver's attempt to win the job. The job CAS decides;
// losing the race returns (nil, false, nil) so callers can answer "already
// taken" without treating it as a failure.
func (s *Service) Accept(ctx context.Context, jobID, driverID types.ID) (*towjob.TowJob, bool, error) {
	j, err := s.jobs.Accept(ctx, towjob.AcceptCommand{JobID: jobID, DriverID: driverID})
	if errors.Is(err, towjob.ErrRaceLost) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if err := s.offers.MarkAccepted(ctx, jobID, driverID); err != nil {
		// The CAS already decided the winner; a missing pending offer
		// (late accept after expiry) is only worth a log line.
		s.logger.Warn("winner offer bookkeeping", "job", jobID, "driver", driverID, "error", err)
	}
	if err := s.offers.ExpirePending(ctx, jobID); err != nil {
		s.logger.Error("expire competing offers failed", "job", jobID, "error", err)
	}
	s.stopTimer(jobID)
	return j, true, nil
}

// Reject records the driver's decline. It never advances the job and never
// triggers an early next batch; the timeout handles escalation.
func (s *Service) Reject(ctx context.Context, jobID, driverID types.ID, reason string) error {
	return s.offers.MarkRejected(ctx, jobID, driverID, reason)
}

// ExpirePending lets the lifecycle service sweep open offers when a job is
// cancelled mid-search.
func (s *Service) ExpirePending(ctx context.Context, jobID types.ID) error {
	s.stopTimer(jobID)
	return s.offers.ExpirePending(ctx, jobID)
}

// Offers returns the job's offer history.
func (s *Service) Offers(ctx context.Context, jobID types.ID) ([]*Offer, error) {
	return s.offers.ListByJob(ctx, jobID)
}
