package payouts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/royaltyops/royaltyops/internal/platform/db"
)

// Store reads and writes payout records in PostgreSQL.
type Store struct {
	q db.Querier
}

// NewStore binds the store to a pool or transaction.
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

const listByOwnerSQL = `
SELECT id, owner_id, payee_id, batch_id, gross_royalties, total_expenses, amount_due,
       status, COALESCE(workflow_stage, ''), period_start, created_at
FROM payouts
WHERE owner_id = $1
ORDER BY created_at, id`

// ListByOwner returns every payout visible to the owner.
func (s *Store) ListByOwner(ctx context.Context, owner uuid.UUID) ([]Record, error) {
	rows, err := s.q.Query(ctx, listByOwnerSQL, owner)
	if err != nil {
		return nil, fmt.Errorf("payouts: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.OwnerID, &r.PayeeID, &r.BatchID,
			&r.GrossRoyalties, &r.TotalExpenses, &r.AmountDue,
			&r.Status, &r.WorkflowStage, &r.PeriodStart, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("payouts: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payouts: rows: %w", err)
	}
	return out, nil
}

// ListOwners returns owners that have at least one payout.
func (s *Store) ListOwners(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.q.Query(ctx, `SELECT DISTINCT owner_id FROM payouts ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("payouts: list owners: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("payouts: scan owner: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const insertSQL = `
INSERT INTO payouts (id, owner_id, payee_id, batch_id, gross_royalties, total_expenses,
                     amount_due, status, workflow_stage, period_start, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// Insert writes records as-is in a single round trip.
func (s *Store) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(insertSQL,
			r.ID, r.OwnerID, r.PayeeID, r.BatchID,
			r.GrossRoyalties, r.TotalExpenses, r.AmountDue,
			r.Status, r.WorkflowStage, r.PeriodStart, r.CreatedAt,
		)
	}
	results := s.q.SendBatch(ctx, batch)
	for _, r := range records {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("payouts: insert %s: %w", r.ID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("payouts: insert: %w", err)
	}
	return nil
}
