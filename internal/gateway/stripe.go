// README: Stripe adapter for authorize/capture/refund/transfer, manual-capture PaymentIntents.
package gateway

import (
	"context"
	"errors"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/refund"
	"github.com/stripe/stripe-go/v74/transfer"
)

var ErrGatewayUnavailable = errors.New("payment gateway not configured")

// Gateway abstracts the card processor so services can run against a fake in
// tests. Amounts are integer cents; idempotencyKey dedupes retried calls.
type Gateway interface {
	Authorize(ctx context.Context, amountCents int64, currency, customerRef, idempotencyKey string) (string, error)
	Capture(ctx context.Context, authorizationRef string, idempotencyKey string) error
	Cancel(ctx context.Context, authorizationRef string) error
	Refund(ctx context.Context, authorizationRef string, amountCents int64, idempotencyKey string) (string, error)
	Transfer(ctx context.Context, amountCents int64, currency, payeeRef, idempotencyKey string) (string, error)
}

// StripeGateway implements Gateway on stripe-go. Holds are created with
// capture_method=manual so funds stay reserved until the tow completes.
type StripeGateway struct{}

func NewStripeGateway(apiKey string) (*StripeGateway, error) {
	if apiKey == "" {
		return nil, ErrGatewayUnavailable
	}
	stripe.Key = apiKey
	return &StripeGateway{}, nil
}

func (s *StripeGateway) Authorize(ctx context.Context, amountCents int64, currency, customerRef, idempotencyKey string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	if customerRef != "" {
		params.Customer = stripe.String(customerRef)
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

func (s *StripeGateway) Capture(ctx context.Context, authorizationRef string, idempotencyKey string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	_, err := paymentintent.Capture(authorizationRef, params)
	return err
}

func (s *StripeGateway) Cancel(ctx context.Context, authorizationRef string) error {
	_, err := paymentintent.Cancel(authorizationRef, nil)
	return err
}

func (s *StripeGateway) Refund(ctx context.Context, authorizationRef string, amountCents int64, idempotencyKey string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(authorizationRef),
	}
	if amountCents > 0 {
		params.Amount = stripe.Int64(amountCents)
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	r, err := refund.New(params)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

func (s *StripeGateway) Transfer(ctx context.Context, amountCents int64, currency, payeeRef, idempotencyKey string) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(currency),
		Destination: stripe.String(payeeRef),
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	t, err := transfer.New(params)
	if err != nil {
		return "", err
	}
	return t.ID, nil
}
