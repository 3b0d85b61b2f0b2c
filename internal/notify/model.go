// README: Notification record and event kinds persisted alongside push delivery.
package notify

import (
	"time"

	"towline/internal/types"
)

type Kind string

const (
	KindOfferReceived   Kind = "offer_received"
	KindOfferExpired    Kind = "offer_expired"
	KindDriverAssigned  Kind = "driver_assigned"
	KindStatusChanged   Kind = "status_changed"
	KindJobCancelled    Kind = "job_cancelled"
	KindJobCompleted    Kind = "job_completed"
	KindPaymentCaptured Kind = "payment_captured"
	KindPaymentRefunded Kind = "payment_refunded"
)

// Notification is the persisted copy of a push. Delivery is best effort; the
// record is the durable audit trail.
type Notification struct {
	ID          types.ID       `json:"id"`
	RecipientID types.ID       `json:"recipient_id"`
	JobID       types.ID       `json:"job_id"`
	Kind        Kind           `json:"kind"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Data        map[string]any `json:"data,omitempty"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
