package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/royaltyops/royaltyops/internal/payees"
	"github.com/royaltyops/royaltyops/internal/payouts"
	"github.com/royaltyops/royaltyops/internal/platform/db"
)

// Snapshot is every input the ledger needs, read at one point in time.
type Snapshot struct {
	Persisted []PersistedRow
	Payouts   []payouts.Record
	Payees    []payees.Payee
}

// Repository defines ledger data access.
type Repository interface {
	// Snapshot reads persisted rows, payouts and payees in one read-only transaction.
	Snapshot(ctx context.Context, owner uuid.UUID) (Snapshot, error)
	ListOwners(ctx context.Context) ([]uuid.UUID, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository defines operations within a read-write transaction.
type TxRepository interface {
	Snapshot(ctx context.Context, owner uuid.UUID) (Snapshot, error)
	ReplaceEntries(ctx context.Context, owner uuid.UUID, rows []PersistedRow) error
}

var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Snapshot(ctx context.Context, owner uuid.UUID) (Snapshot, error) {
	var snap Snapshot
	err := db.WithSnapshot(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		snap, err = readSnapshot(ctx, tx, owner)
		return err
	})
	return snap, err
}

func (r *pgRepository) ListOwners(ctx context.Context) ([]uuid.UUID, error) {
	return payouts.NewStore(r.pool).ListOwners(ctx)
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) Snapshot(ctx context.Context, owner uuid.UUID) (Snapshot, error) {
	return readSnapshot(ctx, r.tx, owner)
}

const deleteEntriesSQL = `DELETE FROM balance_entries WHERE owner_id = $1`

func (r *pgTxRepository) ReplaceEntries(ctx context.Context, owner uuid.UUID, rows []PersistedRow) error {
	if _, err := r.tx.Exec(ctx, deleteEntriesSQL, owner); err != nil {
		return fmt.Errorf("ledger: clear entries: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertEntrySQL,
			owner, row.PayeeID, row.Year, row.Quarter, row.PeriodLabel,
			row.OpeningBalance, row.Royalties, row.Expenses, row.Payments, row.ClosingBalance,
			row.IsCalculated, row.GeneratedAt,
		)
	}
	results := r.tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("ledger: insert entry: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("ledger: insert entries: %w", err)
	}
	return nil
}

const insertEntrySQL = `
INSERT INTO balance_entries (owner_id, payee_id, year, quarter, period_label,
                             opening_balance, royalties_amount, expenses_amount, payments_amount, closing_balance,
                             is_calculated, generated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

const listPersistedSQL = `
SELECT payee_id, year, quarter, period_label, opening_balance, royalties_amount,
       expenses_amount, payments_amount, closing_balance, is_calculated, generated_at
FROM balance_entries
WHERE owner_id = $1
ORDER BY payee_id, year, quarter`

func readSnapshot(ctx context.Context, q db.Querier, owner uuid.UUID) (Snapshot, error) {
	persisted, err := listPersisted(ctx, q, owner)
	if err != nil {
		return Snapshot{}, err
	}
	records, err := payouts.NewStore(q).ListByOwner(ctx, owner)
	if err != nil {
		return Snapshot{}, err
	}
	list, err := payees.NewStore(q).ListByOwner(ctx, owner)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Persisted: persisted, Payouts: records, Payees: list}, nil
}

func listPersisted(ctx context.Context, q db.Querier, owner uuid.UUID) ([]PersistedRow, error) {
	rows, err := q.Query(ctx, listPersistedSQL, owner)
	if err != nil {
		return nil, fmt.Errorf("ledger: list entries: %w", err)
	}
	defer rows.Close()

	var out []PersistedRow
	for rows.Next() {
		var row PersistedRow
		var generatedAt *time.Time
		if err := rows.Scan(
			&row.PayeeID, &row.Year, &row.Quarter, &row.PeriodLabel,
			&row.OpeningBalance, &row.Royalties, &row.Expenses, &row.Payments, &row.ClosingBalance,
			&row.IsCalculated, &generatedAt,
		); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		if generatedAt != nil {
			row.GeneratedAt = *generatedAt
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: rows: %w", err)
	}
	return out, nil
}
