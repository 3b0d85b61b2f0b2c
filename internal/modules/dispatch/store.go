// README: Offer store backed by PostgreSQL.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"towline/internal/types"
)

type OfferStore interface {
	CreateBatch(ctx context.Context, offers []*Offer) error
	ListByJob(ctx context.Context, jobID types.ID) ([]*Offer, error)
	HasOpenOffer(ctx context.Context, jobID, driverID types.ID) (bool, error)
	MarkAccepted(ctx context.Context, jobID, driverID types.ID) error
	MarkRejected(ctx context.Context, jobID, driverID types.ID, reason string) error
	ExpirePending(ctx context.Context, jobID types.ID) error
	ExpirePendingInBatch(ctx context.Context, jobID types.ID, batch int) error
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) CreateBatch(ctx context.Context, offers []*Offer) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, o := range offers {
		if o.ID == "" {
			o.ID = types.ID(uuid.NewString())
		}
		if o.OfferedAt.IsZero() {
			o.OfferedAt = time.Now().UTC()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO tow_offers (id, job_id, driver_id, response, distance_miles, batch, offered_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			string(o.ID), string(o.JobID), string(o.DriverID),
			string(o.Response), o.DistanceMiles, o.Batch, o.OfferedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PGStore) ListByJob(ctx context.Context, jobID types.ID) ([]*Offer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, job_id, driver_id, response, distance_miles, batch, reject_reason, offered_at, responded_at
		FROM tow_offers WHERE job_id = $1 ORDER BY batch, offered_at`, string(jobID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Offer
	for rows.Next() {
		var o Offer
		if err := rows.Scan(&o.ID, &o.JobID, &o.DriverID, &o.Response,
			&o.DistanceMiles, &o.Batch, &o.RejectReason, &o.OfferedAt, &o.RespondedAt); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (s *PGStore) HasOpenOffer(ctx context.Context, jobID, driverID types.ID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tow_offers
			WHERE job_id = $1 AND driver_id = $2 AND response != 'expired'
		)`, string(jobID), string(driverID)).Scan(&exists)
	return exists, err
}

func (s *PGStore) MarkAccepted(ctx context.Context, jobID, driverID types.ID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE tow_offers SET response = 'accepted', responded_at = NOW()
		WHERE job_id = $1 AND driver_id = $2 AND response = 'pending'`,
		string(jobID), string(driverID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNoOffer
	}
	return nil
}

func (s *PGStore) MarkRejected(ctx context.Context, jobID, driverID types.ID, reason string) error {
	var r *string
	if reason != "" {
		r = &reason
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE tow_offers SET response = 'rejected', responded_at = NOW(), reject_reason = $3
		WHERE job_id = $1 AND driver_id = $2 AND response = 'pending'`,
		string(jobID), string(driverID), r)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNoOffer
	}
	return nil
}

func (s *PGStore) ExpirePending(ctx context.Context, jobID types.ID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE tow_offers SET response = 'expired', responded_at = NOW()
		WHERE job_id = $1 AND response = 'pending'`, string(jobID))
	return err
}

func (s *PGStore) ExpirePendingInBatch(ctx context.Context, jobID types.ID, batch int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE tow_offers SET response = 'expired', responded_at = NOW()
		WHERE job_id = $1 AND batch = $2 AND response = 'pending'`, string(jobID), batch)
	return err
}
