// README: Pricing lookup rows and the computed quote value.
package pricing

import (
	"errors"

	"towline/internal/types"
)

var ErrInvalidLookup = errors.New("unknown service, vehicle class, or tow reason")

// ServiceRate is one row of the service_types table. Zero-valued rate fields
// fall back to the platform defaults at quote time.
type ServiceRate struct {
	ID            types.ID
	Name          string
	BasePrice     float64
	PerMileRate   float64
	IncludedMiles float64
}

// VehicleClass scales the base price for heavier customer vehicles.
type VehicleClass struct {
	ID              types.ID
	Name            string
	PriceMultiplier float64
}

// TowReason carries a flat fee for situations needing extra equipment or
// care, such as accident recovery or winch-outs.
type TowReason struct {
	ID              types.ID
	Name            string
	PriceAdjustment float64
}

// Quote is the ephemeral pricing answer. It is embedded into a tow job at
// creation and never persisted on its own.
type Quote struct {
	DistanceMiles            float64            `json:"distance_miles"`
	CustomerPrice            types.Money        `json:"customer_price"`
	DriverPayout             types.Money        `json:"driver_payout"`
	PlatformFee              types.Money        `json:"platform_fee"`
	GatewayFee               types.Money        `json:"gateway_fee"`
	NetRevenue               types.Money        `json:"net_revenue"`
	EstimatedDurationMinutes int                `json:"estimated_duration_minutes"`
	Breakdown                map[string]float64 `json:"breakdown"`
}
