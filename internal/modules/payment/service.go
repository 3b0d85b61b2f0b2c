// README: Payment orchestrator: authorize on create, capture then payout on completion, refund on cancel.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"towline/internal/gateway"
	"towline/internal/modules/towjob"
	"towline/internal/types"
)

// PayeeResolver maps a driver to their gateway payee account. An empty ref
// means the driver never finished payout onboarding.
type PayeeResolver interface {
	PayeeRef(ctx context.Context, driverID types.ID) (string, error)
}

// JobMarker is the slice of the job store the orchestrator needs to flag
// payment states.
type JobMarker interface {
	SetPaymentStatus(ctx context.Context, id types.ID, ps towjob.PaymentStatus) error
}

// Service implements the job lifecycle's PaymentOrchestrator. Every gateway
// call carries a job-scoped idempotency key so retries never double-move
// money.
type Service struct {
	gateway gateway.Gateway
	store   Store
	jobs    JobMarker
	payees  PayeeResolver
	logger  *slog.Logger
}

func NewService(gw gateway.Gateway, store Store, jobs JobMarker, payees PayeeResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gateway: gw, store: store, jobs: jobs, payees: payees, logger: logger}
}

// Authorize places a hold for the full quoted price. No ledger row yet; the
// charge is recorded at capture time.
func (s *Service) Authorize(ctx context.Context, j *towjob.TowJob) (string, error) {
	ref, err := s.gateway.Authorize(ctx,
		j.QuotedPrice.Amount, j.QuotedPrice.Currency,
		string(j.CustomerID), "auth:"+string(j.ID))
	if err != nil {
		return "", fmt.Errorf("gateway authorize: %w", errors.Join(ErrGateway, err))
	}
	return ref, nil
}

// Capture settles the hold, records the charge, then attempts the driver
// payout. A missing payee leaves funds captured-but-unpaid for manual
// reconciliation; it never fails the capture itself.
func (s *Service) Capture(ctx context.Context, j *towjob.TowJob) error {
	if j.PaymentRef == "" {
		return fmt.Errorf("job %s has no authorization to capture", j.ID)
	}
	if err := s.gateway.Capture(ctx, j.PaymentRef, "capture:"+string(j.ID)); err != nil {
		return fmt.Errorf("gateway capture: %w", errors.Join(ErrGateway, err))
	}
	// A retried completion re-enters here after the gateway already settled;
	// the idempotency key makes the money safe, but the ledger row must not
	// be appended twice.
	if j.PaymentStatus != towjob.PaymentCaptured {
		if err := s.store.Append(ctx, &Transaction{
			JobID:      j.ID,
			Type:       TxCharge,
			Amount:     j.QuotedPrice,
			GatewayRef: j.PaymentRef,
		}); err != nil {
			return err
		}
		if err := s.jobs.SetPaymentStatus(ctx, j.ID, towjob.PaymentCaptured); err != nil {
			return err
		}
	}

	if err := s.payout(ctx, j); err != nil {
		if errors.Is(err, ErrPayeeNotConfigured) {
			s.logger.Warn("payout skipped, payee not configured", "job", j.ID, "driver", j.DriverID)
		} else {
			s.logger.Error("payout failed, funds captured but unpaid", "job", j.ID, "error", err)
		}
	}
	return nil
}

func (s *Service) payout(ctx context.Context, j *towjob.TowJob) error {
	if j.DriverID == nil {
		return ErrPayeeNotConfigured
	}
	payee, err := s.payees.PayeeRef(ctx, *j.DriverID)
	if err != nil {
		return err
	}
	if payee == "" {
		return ErrPayeeNotConfigured
	}
	ref, err := s.gateway.Transfer(ctx,
		j.DriverPayout.Amount, j.DriverPayout.Currency,
		payee, "payout:"+string(j.ID))
	if err != nil {
		return fmt.Errorf("gateway transfer: %w", errors.Join(ErrGateway, err))
	}
	if err := s.store.Append(ctx, &Transaction{
		JobID:      j.ID,
		Type:       TxPayout,
		Amount:     j.DriverPayout,
		GatewayRef: ref,
	}); err != nil {
		return err
	}
	return s.store.Append(ctx, &Transaction{
		JobID:  j.ID,
		Type:   TxPlatformFee,
		Amount: j.PlatformFee,
	})
}

// Refund releases or returns the full held amount, recording why on the
// ledger row. A job with no active authorization is a no-op success so cancel
// paths stay idempotent.
func (s *Service) Refund(ctx context.Context, j *towjob.TowJob, reason string) error {
	if j.PaymentRef == "" ||
		(j.PaymentStatus != towjob.PaymentAuthorized && j.PaymentStatus != towjob.PaymentCaptured) {
		return nil
	}
	ref, err := s.gateway.Refund(ctx, j.PaymentRef, j.QuotedPrice.Amount, "refund:"+string(j.ID))
	if err != nil {
		return fmt.Errorf("gateway refund: %w", errors.Join(ErrGateway, err))
	}
	if err := s.store.Append(ctx, &Transaction{
		JobID:      j.ID,
		Type:       TxRefund,
		Amount:     j.QuotedPrice,
		GatewayRef: ref,
		Note:       reason,
	}); err != nil {
		return err
	}
	return s.jobs.SetPaymentStatus(ctx, j.ID, towjob.PaymentRefunded)
}

// Transactions returns the job's ledger rows in insertion order.
func (s *Service) Transactions(ctx context.Context, jobID types.ID) ([]*Transaction, error) {
	return s.store.ListByJob(ctx, jobID)
}
