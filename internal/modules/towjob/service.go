// README: TowJob service: creation with payment hold, lifecycle transitions, accept gate, cancel, ratings.
package towjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"towline/internal/modules/pricing"
	"towline/internal/notify"
	"towline/internal/observability"
	"towline/internal/stream"
	"towline/internal/tracking"
	"towline/internal/types"
)

var (
	ErrNotFound          = errors.New("tow job not found")
	ErrBadRequest        = errors.New("bad request")
	ErrActiveJob         = errors.New("customer already has an active tow job")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTerminalState     = errors.New("tow job is in a terminal state")
	ErrNotAssigned       = errors.New("driver is not assigned to this tow job")
	ErrRaceLost          = errors.New("tow job no longer available")
	ErrConflict          = errors.New("tow job state conflict")
)

// Quoter prices a tow at creation time.
type Quoter interface {
	Quote(ctx context.Context, cmd pricing.QuoteCommand) (*pricing.Quote, error)
}

// PaymentOrchestrator is the money side of the lifecycle. Authorize returns
// the gateway hold reference; Capture and Refund manage their own payment
// status bookkeeping on success. The refund reason lands on the ledger row
// for reconciliation.
type PaymentOrchestrator interface {
	Authorize(ctx context.Context, j *TowJob) (string, error)
	Capture(ctx context.Context, j *TowJob) error
	Refund(ctx context.Context, j *TowJob, reason string) error
}

// OfferSweeper expires still-pending offers when a job leaves the searching
// pool by cancellation.
type OfferSweeper interface {
	ExpirePending(ctx context.Context, jobID types.ID) error
}

// Notifier is fire-and-forget; implementations log their own failures.
type Notifier interface {
	Notify(ctx context.Context, recipientID, jobID types.ID, kind notify.Kind, title, body string, data map[string]any)
}

type TrackPublisher interface {
	Publish(ctx context.Context, ev tracking.Event) error
}

type Service struct {
	store    Store
	quoter   Quoter
	payments PaymentOrchestrator
	offers   OfferSweeper
	notifier Notifier
	tracker  TrackPublisher
	events   *stream.Producer
	logger   *slog.Logger
}

func NewService(store Store, quoter Quoter, payments PaymentOrchestrator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, quoter: quoter, payments: payments, logger: logger}
}

// WithCollaborators attaches the optional side-effect channels. Any of them
// may be nil; the service degrades to store-only behavior.
func (s *Service) WithCollaborators(offers OfferSweeper, notifier Notifier, tracker TrackPublisher, events *stream.Producer) *Service {
	s.offers = offers
	s.notifier = notifier
	s.tracker = tracker
	s.events = events
	return s
}

type CreateCommand struct {
	CustomerID     types.ID
	Pickup         types.Point
	Dropoff        types.Point
	PickupAddress  string
	DropoffAddress string
	ServiceTypeID  types.ID
	VehicleTypeID  types.ID
	TowReasonID    types.ID
	Vehicle        VehicleInfo
	Surge          bool
}

type UpdateStatusCommand struct {
	JobID    types.ID
	DriverID types.ID
	To       Status
}

type AcceptCommand struct {
	JobID    types.ID
	DriverID types.ID
}

type CancelCommand struct {
	JobID     types.ID
	ActorType string
	ActorID   types.ID
	Reason    string
}

type RateCommand struct {
	JobID     types.ID
	ActorType string
	Stars     int
}

// Create quotes, holds funds, and persists the job in SEARCHING. The hold
// must succeed before anything is written; a job never exists without its
// authorization.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*TowJob, error) {
	if cmd.CustomerID == "" || cmd.ServiceTypeID == "" || cmd.VehicleTypeID == "" || cmd.TowReasonID == "" {
		return nil, ErrBadRequest
	}
	active, err := s.store.HasActiveByCustomer(ctx, cmd.CustomerID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrActiveJob
	}

	q, err := s.quoter.Quote(ctx, pricing.QuoteCommand{
		Pickup:        cmd.Pickup,
		Dropoff:       cmd.Dropoff,
		ServiceTypeID: cmd.ServiceTypeID,
		VehicleTypeID: cmd.VehicleTypeID,
		TowReasonID:   cmd.TowReasonID,
		At:            time.Now().UTC(),
		Surge:         cmd.Surge,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	j := &TowJob{
		ID:             types.ID(uuid.NewString()),
		CustomerID:     cmd.CustomerID,
		Status:         StatusPending,
		Pickup:         cmd.Pickup,
		Dropoff:        cmd.Dropoff,
		PickupAddress:  cmd.PickupAddress,
		DropoffAddress: cmd.DropoffAddress,
		ServiceTypeID:  cmd.ServiceTypeID,
		VehicleTypeID:  cmd.VehicleTypeID,
		TowReasonID:    cmd.TowReasonID,
		Vehicle:        cmd.Vehicle,
		DistanceMiles:  q.DistanceMiles,
		QuotedPrice:    q.CustomerPrice,
		DriverPayout:   q.DriverPayout,
		PlatformFee:    q.PlatformFee,
		PaymentStatus:  PaymentPending,
		Surge:          cmd.Surge,
		CreatedAt:      now,
	}

	ref, err := s.payments.Authorize(ctx, j)
	if err != nil {
		return nil, fmt.Errorf("authorize hold: %w", err)
	}
	j.PaymentRef = ref
	j.PaymentStatus = PaymentAuthorized
	j.Status = StatusSearching

	if err := s.store.Create(ctx, j); err != nil {
		return nil, err
	}
	_ = s.store.AppendEvent(ctx, &Event{
		JobID:      j.ID,
		FromStatus: StatusNone,
		ToStatus:   StatusSearching,
		ActorType:  "customer",
		ActorID:    &cmd.CustomerID,
		CreatedAt:  now,
	})
	s.publishStatus(ctx, j)
	return j, nil
}

// UpdateStatus advances the job along the linear flow. Only the assigned
// driver may advance; accepted and cancelled are never valid targets here.
// Completion captures payment before the transition is committed.
func (s *Service) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (*TowJob, error) {
	if cmd.To == StatusAccepted || cmd.To == StatusCancelled || cmd.To == StatusPending || cmd.To == StatusSearching {
		return nil, ErrBadRequest
	}
	j, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}
	if IsTerminal(j.Status) {
		return nil, ErrTerminalState
	}
	if j.DriverID == nil || *j.DriverID != cmd.DriverID {
		return nil, ErrNotAssigned
	}
	if !CanTransition(j.Status, cmd.To) {
		return nil, ErrInvalidTransition
	}

	if cmd.To == StatusCompleted {
		if err := s.payments.Capture(ctx, j); err != nil {
			_ = s.store.SetPaymentStatus(ctx, j.ID, PaymentFailed)
			observability.CaptureFailuresTotal.Inc()
			s.logger.Error("payment capture failed", "job", j.ID, "error", err)
			return nil, fmt.Errorf("capture payment: %w", err)
		}
	}

	ok, err := s.store.UpdateStatus(ctx, j.ID, j.Status, cmd.To, j.StatusVersion, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	from := j.Status
	j.Status = cmd.To
	j.StatusVersion++

	_ = s.store.AppendEvent(ctx, &Event{
		JobID:      j.ID,
		FromStatus: from,
		ToStatus:   cmd.To,
		ActorType:  "driver",
		ActorID:    &cmd.DriverID,
		CreatedAt:  time.Now().UTC(),
	})
	s.publishStatus(ctx, j)

	if cmd.To == StatusCompleted {
		observability.JobsCompletedTotal.Inc()
		if s.notifier != nil {
			s.notifier.Notify(ctx, j.CustomerID, j.ID, notify.KindJobCompleted,
				"Tow completed", "Your vehicle has been delivered.", nil)
		}
	} else if s.notifier != nil {
		s.notifier.Notify(ctx, j.CustomerID, j.ID, notify.KindStatusChanged,
			"Tow status updated", string(cmd.To), nil)
	}
	return j, nil
}

// Accept is the exclusivity gate: the conditional store write decides the
// winner; a failed swap means another driver got there first or the job was
// cancelled, both reported as ErrRaceLost.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*TowJob, error) {
	if cmd.JobID == "" || cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	prev, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.AcceptJob(ctx, cmd.JobID, cmd.DriverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		observability.AcceptsLostTotal.Inc()
		return nil, ErrRaceLost
	}

	j, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}
	observability.AcceptsWonTotal.Inc()
	_ = s.store.AppendEvent(ctx, &Event{
		JobID:      j.ID,
		FromStatus: prev.Status,
		ToStatus:   StatusAccepted,
		ActorType:  "driver",
		ActorID:    &cmd.DriverID,
		CreatedAt:  time.Now().UTC(),
	})
	if s.notifier != nil {
		s.notifier.Notify(ctx, j.CustomerID, j.ID, notify.KindDriverAssigned,
			"Driver assigned", "A tow driver accepted your request.",
			map[string]any{"driver_id": cmd.DriverID})
	}
	if s.tracker != nil {
		_ = s.tracker.Publish(ctx, tracking.Event{
			Type:     tracking.EventAssigned,
			JobID:    j.ID,
			Status:   string(j.Status),
			DriverID: cmd.DriverID,
		})
	}
	s.emit(j)
	return j, nil
}

// Cancel moves any non-terminal job to CANCELLED, then refunds the hold,
// expires pending offers, and tells the assigned driver.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*TowJob, error) {
	j, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}
	if IsTerminal(j.Status) {
		return nil, ErrTerminalState
	}

	var reason *string
	if cmd.Reason != "" {
		reason = &cmd.Reason
	}
	ok, err := s.store.UpdateStatus(ctx, j.ID, j.Status, StatusCancelled, j.StatusVersion, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	from := j.Status
	j.Status = StatusCancelled
	j.StatusVersion++
	j.CancelReason = reason

	_ = s.store.AppendEvent(ctx, &Event{
		JobID:      j.ID,
		FromStatus: from,
		ToStatus:   StatusCancelled,
		ActorType:  cmd.ActorType,
		ActorID:    &cmd.ActorID,
		CreatedAt:  time.Now().UTC(),
	})

	if j.PaymentStatus == PaymentAuthorized || j.PaymentStatus == PaymentCaptured {
		if err := s.payments.Refund(ctx, j, cmd.Reason); err != nil {
			_ = s.store.SetPaymentStatus(ctx, j.ID, PaymentFailed)
			s.logger.Error("refund failed", "job", j.ID, "error", err)
		}
	}
	if s.offers != nil {
		if err := s.offers.ExpirePending(ctx, j.ID); err != nil {
			s.logger.Warn("expire pending offers failed", "job", j.ID, "error", err)
		}
	}
	if s.notifier != nil && j.DriverID != nil {
		s.notifier.Notify(ctx, *j.DriverID, j.ID, notify.KindJobCancelled,
			"Tow cancelled", "The customer cancelled this tow.", nil)
	}
	s.publishStatus(ctx, j)
	observability.JobsCancelledTotal.Inc()
	return j, nil
}

// Rate records a post-completion rating, once per side.
func (s *Service) Rate(ctx context.Context, cmd RateCommand) error {
	if cmd.Stars < 1 || cmd.Stars > 5 {
		return ErrBadRequest
	}
	if cmd.ActorType != "customer" && cmd.ActorType != "driver" {
		return ErrBadRequest
	}
	j, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return err
	}
	if j.Status != StatusCompleted {
		return ErrInvalidTransition
	}
	return s.store.SetRating(ctx, j.ID, cmd.ActorType, cmd.Stars)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*TowJob, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID types.ID, limit int) ([]*TowJob, error) {
	return s.store.ListByCustomer(ctx, customerID, limit)
}

func (s *Service) ActiveByDriver(ctx context.Context, driverID types.ID) (*TowJob, error) {
	return s.store.ActiveByDriver(ctx, driverID)
}

func (s *Service) publishStatus(ctx context.Context, j *TowJob) {
	if s.tracker != nil {
		_ = s.tracker.Publish(ctx, tracking.Event{
			Type:   tracking.EventStatus,
			JobID:  j.ID,
			Status: string(j.Status),
		})
	}
	s.emit(j)
}

func (s *Service) emit(j *TowJob) {
	ev := stream.JobEvent{
		JobID:      j.ID,
		CustomerID: j.CustomerID,
		Status:     string(j.Status),
		PriceCents: j.QuotedPrice.Amount,
	}
	if j.DriverID != nil {
		ev.DriverID = *j.DriverID
	}
	if err := s.events.Emit(ev); err != nil {
		s.logger.Warn("job event emit failed", "job", j.ID, "error", err)
	}
}
