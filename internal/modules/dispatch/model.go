// README: Offer record: one driver's time-boxed invitation to take a job.
package dispatch

import (
	"errors"
	"time"

	"towline/internal/types"
)

var ErrNoOffer = errors.New("no offer for this driver and job")

type Response string

const (
	ResponsePending  Response = "pending"
	ResponseAccepted Response = "accepted"
	ResponseRejected Response = "rejected"
	ResponseExpired  Response = "expired"
)

// Offer rows are append-then-resolve: created pending by the dispatcher,
// moved exactly once to accepted, rejected, or expired.
type Offer struct {
	ID            types.ID   `json:"id"`
	JobID         types.ID   `json:"job_id"`
	DriverID      types.ID   `json:"driver_id"`
	Response      Response   `json:"response"`
	DistanceMiles float64    `json:"distance_miles"`
	Batch         int        `json:"batch"`
	RejectReason  *string    `json:"reject_reason,omitempty"`
	OfferedAt     time.Time  `json:"offered_at"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
}
