// README: TowJob store backed by PostgreSQL; all status writes are compare-and-swap.
package towjob

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"towline/internal/types"
)

// Store is the persistence contract. The in-memory implementation in the
// tests mirrors the same CAS semantics.
type Store interface {
	Create(ctx context.Context, j *TowJob) error
	Get(ctx context.Context, id types.ID) (*TowJob, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, cancelReason *string) (bool, error)
	AcceptJob(ctx context.Context, id, driverID types.ID) (bool, error)
	SetPaymentStatus(ctx context.Context, id types.ID, ps PaymentStatus) error
	SetRating(ctx context.Context, id types.ID, actorType string, stars int) error
	ListByCustomer(ctx context.Context, customerID types.ID, limit int) ([]*TowJob, error)
	ActiveByDriver(ctx context.Context, driverID types.ID) (*TowJob, error)
	HasActiveByCustomer(ctx context.Context, customerID types.ID) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const jobColumns = `
	id, customer_id, driver_id, status, status_version,
	pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	pickup_address, dropoff_address,
	service_type_id, vehicle_type_id, tow_reason_id,
	vehicle_make, vehicle_model, vehicle_year, vehicle_color, vehicle_plate,
	distance_miles, quoted_price, driver_payout, platform_fee, currency,
	payment_status, payment_ref, surge,
	customer_rating, driver_rating, cancel_reason,
	created_at, accepted_at, arrived_pickup_at, loaded_at,
	arrived_dropoff_at, completed_at, cancelled_at`

func (s *PGStore) Create(ctx context.Context, j *TowJob) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO tow_jobs (`+jobColumns+`)
		VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11,
			$12, $13, $14,
			$15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24,
			$25, $26, $27,
			$28, $29, $30,
			$31, $32, $33, $34,
			$35, $36, $37
		)`,
		string(j.ID), string(j.CustomerID), toStringPtr(j.DriverID), string(j.Status), j.StatusVersion,
		j.Pickup.Lat, j.Pickup.Lng, j.Dropoff.Lat, j.Dropoff.Lng,
		j.PickupAddress, j.DropoffAddress,
		string(j.ServiceTypeID), string(j.VehicleTypeID), string(j.TowReasonID),
		j.Vehicle.Make, j.Vehicle.Model, j.Vehicle.Year, j.Vehicle.Color, j.Vehicle.Plate,
		j.DistanceMiles, j.QuotedPrice.Amount, j.DriverPayout.Amount, j.PlatformFee.Amount, j.QuotedPrice.Currency,
		string(j.PaymentStatus), j.PaymentRef, j.Surge,
		j.CustomerRating, j.DriverRating, j.CancelReason,
		j.CreatedAt, j.AcceptedAt, j.ArrivedPickupAt, j.LoadedAt,
		j.ArrivedDropoffAt, j.CompletedAt, j.CancelledAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*TowJob, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM tow_jobs WHERE id = $1`, string(id))
	return scanJob(row)
}

// UpdateStatus is the compare-and-swap write path for every transition other
// than acceptance. The CASE WHEN arms stamp each milestone exactly once.
func (s *PGStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, cancelReason *string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE tow_jobs
		SET status = $1,
		    status_version = status_version + 1,
		    cancel_reason = COALESCE($2, cancel_reason),
		    arrived_pickup_at = CASE WHEN $1 = 'arrived_pickup' THEN NOW() ELSE arrived_pickup_at END,
		    loaded_at = CASE WHEN $1 = 'vehicle_loaded' THEN NOW() ELSE loaded_at END,
		    arrived_dropoff_at = CASE WHEN $1 = 'arrived_dropoff' THEN NOW() ELSE arrived_dropoff_at END,
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(to), cancelReason, string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AcceptJob is the exclusivity gate: exactly one concurrent caller can move
// the row out of pending/searching.
func (s *PGStore) AcceptJob(ctx context.Context, id, driverID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE tow_jobs
		SET status = 'accepted',
		    status_version = status_version + 1,
		    driver_id = $1,
		    accepted_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'searching')`,
		string(driverID), string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) SetPaymentStatus(ctx context.Context, id types.ID, ps PaymentStatus) error {
	_, err := s.db.Exec(ctx,
		`UPDATE tow_jobs SET payment_status = $1 WHERE id = $2`,
		string(ps), string(id))
	return err
}

func (s *PGStore) SetRating(ctx context.Context, id types.ID, actorType string, stars int) error {
	col := "customer_rating"
	if actorType == "driver" {
		col = "driver_rating"
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE tow_jobs SET `+col+` = $1 WHERE id = $2 AND `+col+` IS NULL`,
		stars, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}
	return nil
}

func (s *PGStore) ListByCustomer(ctx context.Context, customerID types.ID, limit int) ([]*TowJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+jobColumns+` FROM tow_jobs WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2`,
		string(customerID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TowJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *PGStore) ActiveByDriver(ctx context.Context, driverID types.ID) (*TowJob, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM tow_jobs
		WHERE driver_id = $1 AND status NOT IN ('completed', 'cancelled')
		ORDER BY created_at DESC LIMIT 1`, string(driverID))
	return scanJob(row)
}

func (s *PGStore) HasActiveByCustomer(ctx context.Context, customerID types.ID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tow_jobs
			WHERE customer_id = $1 AND status NOT IN ('completed', 'cancelled')
		)`, string(customerID)).Scan(&exists)
	return exists, err
}

func (s *PGStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO tow_job_events (job_id, from_status, to_status, actor_type, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.JobID), string(e.FromStatus), string(e.ToStatus),
		e.ActorType, toStringPtr(e.ActorID), e.CreatedAt,
	)
	return err
}

func scanJob(row pgx.Row) (*TowJob, error) {
	var j TowJob
	var driverID, cancelReason, currency sql.NullString
	var customerRating, driverRating sql.NullInt64
	var acceptedAt, arrivedPickupAt, loadedAt, arrivedDropoffAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&j.ID, &j.CustomerID, &driverID, &j.Status, &j.StatusVersion,
		&j.Pickup.Lat, &j.Pickup.Lng, &j.Dropoff.Lat, &j.Dropoff.Lng,
		&j.PickupAddress, &j.DropoffAddress,
		&j.ServiceTypeID, &j.VehicleTypeID, &j.TowReasonID,
		&j.Vehicle.Make, &j.Vehicle.Model, &j.Vehicle.Year, &j.Vehicle.Color, &j.Vehicle.Plate,
		&j.DistanceMiles, &j.QuotedPrice.Amount, &j.DriverPayout.Amount, &j.PlatformFee.Amount, &currency,
		&j.PaymentStatus, &j.PaymentRef, &j.Surge,
		&customerRating, &driverRating, &cancelReason,
		&j.CreatedAt, &acceptedAt, &arrivedPickupAt, &loadedAt,
		&arrivedDropoffAt, &completedAt, &cancelledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if driverID.Valid {
		d := types.ID(driverID.String)
		j.DriverID = &d
	}
	if cancelReason.Valid {
		j.CancelReason = &cancelReason.String
	}
	if customerRating.Valid {
		v := int(customerRating.Int64)
		j.CustomerRating = &v
	}
	if driverRating.Valid {
		v := int(driverRating.Int64)
		j.DriverRating = &v
	}
	cur := types.DefaultCurrency
	if currency.Valid && currency.String != "" {
		cur = currency.String
	}
	j.QuotedPrice.Currency = cur
	j.DriverPayout.Currency = cur
	j.PlatformFee.Currency = cur
	j.AcceptedAt = toTimePtr(acceptedAt)
	j.ArrivedPickupAt = toTimePtr(arrivedPickupAt)
	j.LoadedAt = toTimePtr(loadedAt)
	j.ArrivedDropoffAt = toTimePtr(arrivedDropoffAt)
	j.CompletedAt = toTimePtr(completedAt)
	j.CancelledAt = toTimePtr(cancelledAt)
	return &j, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
