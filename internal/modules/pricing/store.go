// README: Pricing lookup-table store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"towline/internal/types"
)

type Store interface {
	GetServiceRate(ctx context.Context, id types.ID) (ServiceRate, error)
	GetVehicleClass(ctx context.Context, id types.ID) (VehicleClass, error)
	GetTowReason(ctx context.Context, id types.ID) (TowReason, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) GetServiceRate(ctx context.Context, id types.ID) (ServiceRate, error) {
	var r ServiceRate
	err := s.db.QueryRow(ctx, `
		SELECT id, name, base_price, per_mile_rate, included_miles
		FROM service_types WHERE id = $1`, id).
		Scan(&r.ID, &r.Name, &r.BasePrice, &r.PerMileRate, &r.IncludedMiles)
	if errors.Is(err, pgx.ErrNoRows) {
		return ServiceRate{}, ErrInvalidLookup
	}
	return r, err
}

func (s *PGStore) GetVehicleClass(ctx context.Context, id types.ID) (VehicleClass, error) {
	var v VehicleClass
	err := s.db.QueryRow(ctx, `
		SELECT id, name, price_multiplier
		FROM vehicle_types WHERE id = $1`, id).
		Scan(&v.ID, &v.Name, &v.PriceMultiplier)
	if errors.Is(err, pgx.ErrNoRows) {
		return VehicleClass{}, ErrInvalidLookup
	}
	return v, err
}

func (s *PGStore) GetTowReason(ctx context.Context, id types.ID) (TowReason, error) {
	var t TowReason
	err := s.db.QueryRow(ctx, `
		SELECT id, name, price_adjustment
		FROM tow_reasons WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.PriceAdjustment)
	if errors.Is(err, pgx.ErrNoRows) {
		return TowReason{}, ErrInvalidLookup
	}
	return t, err
}
