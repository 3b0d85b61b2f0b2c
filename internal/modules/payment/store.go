// README: Transaction store backed by PostgreSQL; insert-only.
package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"towline/internal/types"
)

type Store interface {
	Append(ctx context.Context, tx *Transaction) error
	ListByJob(ctx context.Context, jobID types.ID) ([]*Transaction, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, tx *Transaction) error {
	if tx.ID == "" {
		tx.ID = types.ID(uuid.NewString())
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO transactions (id, job_id, type, amount, currency, gateway_ref, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(tx.ID), string(tx.JobID), string(tx.Type),
		tx.Amount.Amount, tx.Amount.Currency, tx.GatewayRef, tx.Note, tx.CreatedAt,
	)
	return err
}

func (s *PGStore) ListByJob(ctx context.Context, jobID types.ID) ([]*Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, job_id, type, amount, currency, gateway_ref, note, created_at
		FROM transactions WHERE job_id = $1 ORDER BY created_at`, string(jobID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.ID, &tx.JobID, &tx.Type,
			&tx.Amount.Amount, &tx.Amount.Currency, &tx.GatewayRef, &tx.Note, &tx.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &tx)
	}
	return out, rows.Err()
}
