package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/royaltyops/royaltyops/internal/payouts"
	"github.com/royaltyops/royaltyops/internal/platform/db"
	"github.com/royaltyops/royaltyops/internal/shared"
)

const uniqueViolation = "23505"

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

const batchColumns = `id, owner_id, batch_ref, source, total_gross_amount, date_received,
       linked_statement_id, status, statement_period_start, statement_period_end,
       processed_year, processed_quarter, created_at, updated_at`

func (r *pgRepository) ListBatches(ctx context.Context, owner uuid.UUID) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM reconciliation_batches WHERE owner_id = $1 ORDER BY date_received DESC, batch_ref`, owner)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: list batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reconciliation: rows: %w", err)
	}
	return out, nil
}

func (r *pgRepository) GetBatch(ctx context.Context, owner, id uuid.UUID) (Batch, error) {
	return getBatch(ctx, r.pool, owner, id, false)
}

func (r *pgRepository) Allocations(ctx context.Context, owner uuid.UUID, batch Batch) ([]Allocation, []Allocation, error) {
	return allocations(ctx, r.pool, owner, batch)
}

const insertBatchSQL = `
INSERT INTO reconciliation_batches (id, owner_id, batch_ref, source, total_gross_amount, date_received,
                                    status, statement_period_start, statement_period_end, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (r *pgRepository) CreateBatch(ctx context.Context, b Batch) error {
	_, err := r.pool.Exec(ctx, insertBatchSQL,
		b.ID, b.OwnerID, b.BatchRef, string(b.Source), b.TotalGrossAmount, b.DateReceived,
		string(b.Status), b.StatementPeriodStart, b.StatementPeriodEnd, b.CreatedAt, b.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: batch id %q already exists", ErrInvalidBatch, b.BatchRef)
	}
	if err != nil {
		return fmt.Errorf("reconciliation: insert batch: %w", err)
	}
	return nil
}

const linkStatementSQL = `
UPDATE reconciliation_batches
SET linked_statement_id = $3, updated_at = now()
WHERE owner_id = $1 AND id = $2`

func (r *pgRepository) LinkStatement(ctx context.Context, owner, id uuid.UUID, statementID string) error {
	tag, err := r.pool.Exec(ctx, linkStatementSQL, owner, id, statementID)
	if isUniqueViolation(err) {
		return ErrStatementAlreadyLinked
	}
	if err != nil {
		return fmt.Errorf("reconciliation: link statement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) LockBatch(ctx context.Context, owner, id uuid.UUID) (Batch, error) {
	return getBatch(ctx, r.tx, owner, id, true)
}

func (r *pgTxRepository) Allocations(ctx context.Context, owner uuid.UUID, batch Batch) ([]Allocation, []Allocation, error) {
	return allocations(ctx, r.tx, owner, batch)
}

func (r *pgTxRepository) InsertPayouts(ctx context.Context, records []payouts.Record) error {
	return payouts.NewStore(r.tx).Insert(ctx, records)
}

const markProcessedSQL = `
UPDATE reconciliation_batches
SET status = $2, processed_year = $3, processed_quarter = $4, updated_at = $5
WHERE id = $1`

func (r *pgTxRepository) MarkProcessed(ctx context.Context, id uuid.UUID, period shared.Quarter, at time.Time) error {
	tag, err := r.tx.Exec(ctx, markProcessedSQL, id, string(BatchProcessed), period.Year, period.Q, at)
	if err != nil {
		return fmt.Errorf("reconciliation: mark processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func getBatch(ctx context.Context, q db.Querier, owner, id uuid.UUID, lock bool) (Batch, error) {
	sql := `SELECT ` + batchColumns + ` FROM reconciliation_batches WHERE owner_id = $1 AND id = $2`
	if lock {
		sql += ` FOR UPDATE`
	}
	b, err := scanBatch(q.QueryRow(ctx, sql, owner, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, ErrBatchNotFound
	}
	return b, err
}

func scanBatch(row pgx.Row) (Batch, error) {
	var (
		b              Batch
		source, status string
		year, quarter  *int32
	)
	if err := row.Scan(
		&b.ID, &b.OwnerID, &b.BatchRef, &source, &b.TotalGrossAmount, &b.DateReceived,
		&b.LinkedStatementID, &status, &b.StatementPeriodStart, &b.StatementPeriodEnd,
		&year, &quarter, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, err
		}
		return Batch{}, fmt.Errorf("reconciliation: scan batch: %w", err)
	}
	b.Source = Source(source)
	b.Status = BatchStatus(status)
	if year != nil && quarter != nil {
		b.ProcessedPeriod = &shared.Quarter{Year: int(*year), Q: int(*quarter)}
	}
	return b, nil
}

const allocationsByBatchSQL = `
SELECT id, batch_id, statement_id, staging_record_id, payee_id, gross_royalty_amount
FROM royalty_allocations
WHERE owner_id = $1 AND batch_id = $2`

const allocationsByStatementSQL = `
SELECT id, batch_id, statement_id, staging_record_id, payee_id, gross_royalty_amount
FROM royalty_allocations
WHERE owner_id = $1 AND (statement_id = $2 OR staging_record_id = $2)`

func allocations(ctx context.Context, q db.Querier, owner uuid.UUID, batch Batch) ([]Allocation, []Allocation, error) {
	linked, err := queryAllocations(ctx, q, allocationsByBatchSQL, owner, batch.ID)
	if err != nil {
		return nil, nil, err
	}
	if batch.LinkedStatementID == nil || *batch.LinkedStatementID == "" {
		return linked, nil, nil
	}
	statement, err := queryAllocations(ctx, q, allocationsByStatementSQL, owner, *batch.LinkedStatementID)
	if err != nil {
		return nil, nil, err
	}
	return linked, statement, nil
}

func queryAllocations(ctx context.Context, q db.Querier, sql string, args ...any) ([]Allocation, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: list allocations: %w", err)
	}
	defer rows.Close()

	var out []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.BatchID, &a.StatementID, &a.StagingRecordID, &a.PayeeID, &a.GrossRoyaltyAmount); err != nil {
			return nil, fmt.Errorf("reconciliation: scan allocation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
