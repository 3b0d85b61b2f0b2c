// README: Pricing service: itemized quote with a driver-cost-plus-markup floor.
package pricing

import (
	"context"
	"math"
	"time"

	"towline/internal/config"
	"towline/internal/geo"
	"towline/internal/types"
)

// gatewayPctFee and gatewayFlatFee model the card processor's 2.9% + $0.30.
const (
	gatewayPctFee  = 0.029
	gatewayFlatFee = 0.30
)

type Service struct {
	store Store
	cfg   config.PricingConfig
}

func NewService(store Store, cfg config.PricingConfig) *Service {
	return &Service{store: store, cfg: cfg}
}

// QuoteCommand carries everything needed to price one tow. Surge is an
// external input; the engine never decides demand on its own.
type QuoteCommand struct {
	Pickup        types.Point
	Dropoff       types.Point
	ServiceTypeID types.ID
	VehicleTypeID types.ID
	TowReasonID   types.ID
	At            time.Time
	Surge         bool
}

// Quote prices a tow. The customer price is the itemized subtotal or the
// driver's standard rate plus markup, whichever is higher, so a job is never
// quoted below what the driver must be paid.
func (s *Service) Quote(ctx context.Context, cmd QuoteCommand) (*Quote, error) {
	if err := geo.Validate(cmd.Pickup); err != nil {
		return nil, err
	}
	if err := geo.Validate(cmd.Dropoff); err != nil {
		return nil, err
	}
	if cmd.At.IsZero() {
		cmd.At = time.Now().UTC()
	}

	service, err := s.store.GetServiceRate(ctx, cmd.ServiceTypeID)
	if err != nil {
		return nil, err
	}
	vehicle, err := s.store.GetVehicleClass(ctx, cmd.VehicleTypeID)
	if err != nil {
		return nil, err
	}
	reason, err := s.store.GetTowReason(ctx, cmd.TowReasonID)
	if err != nil {
		return nil, err
	}

	distance := geo.DistanceMiles(cmd.Pickup, cmd.Dropoff)
	return s.price(distance, service, vehicle, reason, cmd.At, cmd.Surge), nil
}

func (s *Service) price(distance float64, service ServiceRate, vehicle VehicleClass, reason TowReason, at time.Time, surge bool) *Quote {
	basePrice := service.BasePrice
	if basePrice <= 0 {
		basePrice = s.cfg.DefaultBasePrice
	}
	perMile := service.PerMileRate
	if perMile <= 0 {
		perMile = s.cfg.DefaultPerMileRate
	}
	includedMiles := service.IncludedMiles
	if includedMiles <= 0 {
		includedMiles = s.cfg.DefaultIncludedMiles
	}

	extraMiles := math.Max(0, distance-includedMiles)
	mileageFee := extraMiles * perMile
	vehicleAdjustment := basePrice * (vehicle.PriceMultiplier - 1)
	reasonFee := reason.PriceAdjustment

	timeMultiplier := s.timeMultiplier(at)
	surgeMultiplier := 1.0
	if surge {
		surgeMultiplier = s.cfg.SurgeMultiplier
	}

	subtotal := (basePrice + mileageFee + vehicleAdjustment + reasonFee) * timeMultiplier * surgeMultiplier

	driverStandardRate := s.cfg.DriverBaseRate + distance*s.cfg.DriverPerMileRate
	markupMultiplier := 1 + s.cfg.MarkupPercent/100
	customerPrice := math.Max(subtotal, driverStandardRate*markupMultiplier)

	// Convert to cents once, then derive the fee by subtraction so
	// payout + fee always equals the quoted price exactly.
	price := types.FromDollars(customerPrice)
	payout := types.FromDollars(driverStandardRate)
	fee := price.Sub(payout)
	gatewayFee := types.FromDollars(customerPrice*gatewayPctFee + gatewayFlatFee)
	net := fee.Sub(gatewayFee)

	return &Quote{
		DistanceMiles:            distance,
		CustomerPrice:            price,
		DriverPayout:             payout,
		PlatformFee:              fee,
		GatewayFee:               gatewayFee,
		NetRevenue:               net,
		EstimatedDurationMinutes: int(distance * 2.5),
		Breakdown: map[string]float64{
			"base":                 basePrice,
			"mileage":              mileageFee,
			"vehicle_adjustment":   vehicleAdjustment,
			"reason_fee":           reasonFee,
			"time_multiplier":      timeMultiplier,
			"surge_multiplier":     surgeMultiplier,
			"driver_standard_rate": driverStandardRate,
			"markup_percent":       s.cfg.MarkupPercent,
		},
	}
}

// timeMultiplier returns the night rate for 22:00-06:00, else the weekend
// rate on Saturday and Sunday, else 1.0. Night takes precedence; the two
// never stack.
func (s *Service) timeMultiplier(at time.Time) float64 {
	hour := at.Hour()
	if hour >= 22 || hour < 6 {
		return s.cfg.NightMultiplier
	}
	switch at.Weekday() {
	case time.Saturday, time.Sunday:
		return s.cfg.WeekendMultiplier
	}
	return 1.0
}
