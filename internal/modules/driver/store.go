// README: Driver snapshot store backed by PostgreSQL.
package driver

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"towline/internal/types"
)

type Store interface {
	Get(ctx context.Context, id types.ID) (*Driver, error)
	GetMany(ctx context.Context, ids []types.ID) (map[types.ID]*Driver, error)
	SetAvailability(ctx context.Context, id types.ID, online bool) error
	UpdateLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error
	PayeeRef(ctx context.Context, driverID types.ID) (string, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const driverColumns = `
	id, name, online, approved, active, rating, total_tows,
	capabilities, payee_ref, current_lat, current_lng, location_at`

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, string(id))
	d, err := scanDriver(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (s *PGStore) GetMany(ctx context.Context, ids []types.ID) (map[types.ID]*Driver, error) {
	if len(ids) == 0 {
		return map[types.ID]*Driver{}, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = ANY($1)`, raw)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[types.ID]*Driver, len(ids))
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out[d.ID] = d
	}
	return out, rows.Err()
}

func (s *PGStore) SetAvailability(ctx context.Context, id types.ID, online bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE drivers SET online = $1 WHERE id = $2`, online, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) UpdateLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers SET current_lat = $1, current_lng = $2, location_at = $3 WHERE id = $4`,
		p.Lat, p.Lng, at, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) PayeeRef(ctx context.Context, driverID types.ID) (string, error) {
	var ref sql.NullString
	err := s.db.QueryRow(ctx, `SELECT payee_ref FROM drivers WHERE id = $1`, string(driverID)).Scan(&ref)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return ref.String, nil
}

func scanDriver(row pgx.Row) (*Driver, error) {
	var d Driver
	var caps []string
	var payee sql.NullString
	var lat, lng sql.NullFloat64
	var locAt sql.NullTime

	err := row.Scan(&d.ID, &d.Name, &d.Online, &d.Approved, &d.Active, &d.Rating, &d.TotalTows,
		&caps, &payee, &lat, &lng, &locAt)
	if err != nil {
		return nil, err
	}
	d.Capabilities = make([]types.ID, len(caps))
	for i, c := range caps {
		d.Capabilities[i] = types.ID(c)
	}
	d.PayeeRef = payee.String
	if lat.Valid && lng.Valid {
		d.Location = &types.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if locAt.Valid {
		t := locAt.Time
		d.LocationAt = &t
	}
	return &d, nil
}
