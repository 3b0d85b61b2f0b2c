// README: TowJob aggregate, status state machine, and payment status definitions.
package towjob

import (
	"time"

	"towline/internal/types"
)

type Status string

const (
	StatusNone           Status = "none"
	StatusPending        Status = "pending"
	StatusSearching      Status = "searching"
	StatusAccepted       Status = "accepted"
	StatusEnRoutePickup  Status = "en_route_pickup"
	StatusArrivedPickup  Status = "arrived_pickup"
	StatusVehicleLoaded  Status = "vehicle_loaded"
	StatusEnRouteDropoff Status = "en_route_dropoff"
	StatusArrivedDropoff Status = "arrived_dropoff"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentFailed     PaymentStatus = "failed"
)

// VehicleInfo describes the customer's vehicle so the driver knows what
// they're hauling before arrival.
type VehicleInfo struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  int    `json:"year"`
	Color string `json:"color"`
	Plate string `json:"plate"`
}

type TowJob struct {
	ID               types.ID
	CustomerID       types.ID
	DriverID         *types.ID
	Status           Status
	StatusVersion    int
	Pickup           types.Point
	Dropoff          types.Point
	PickupAddress    string
	DropoffAddress   string
	ServiceTypeID    types.ID
	VehicleTypeID    types.ID
	TowReasonID      types.ID
	Vehicle          VehicleInfo
	DistanceMiles    float64
	QuotedPrice      types.Money
	DriverPayout     types.Money
	PlatformFee      types.Money
	PaymentStatus    PaymentStatus
	PaymentRef       string
	Surge            bool
	CustomerRating   *int
	DriverRating     *int
	CancelReason     *string
	CreatedAt        time.Time
	AcceptedAt       *time.Time
	ArrivedPickupAt  *time.Time
	LoadedAt         *time.Time
	ArrivedDropoffAt *time.Time
	CompletedAt      *time.Time
	CancelledAt      *time.Time
}

// Event is one row of the append-only job status audit log.
type Event struct {
	ID         int64
	JobID      types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions encodes the linear job flow. Cancellation is reachable
// from every non-terminal state; terminal states have no exits.
var AllowedTransitions = map[Status][]Status{
	StatusPending:        {StatusSearching, StatusCancelled},
	StatusSearching:      {StatusAccepted, StatusCancelled},
	StatusAccepted:       {StatusEnRoutePickup, StatusCancelled},
	StatusEnRoutePickup:  {StatusArrivedPickup, StatusCancelled},
	StatusArrivedPickup:  {StatusVehicleLoaded, StatusCancelled},
	StatusVehicleLoaded:  {StatusEnRouteDropoff, StatusCancelled},
	StatusEnRouteDropoff: {StatusArrivedDropoff, StatusCancelled},
	StatusArrivedDropoff: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}
