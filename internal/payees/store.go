package payees

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/royaltyops/royaltyops/internal/platform/db"
)

// Store reads payees from PostgreSQL.
type Store struct {
	q db.Querier
}

// NewStore binds the store to a pool or transaction.
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

const listByOwnerSQL = `
SELECT p.id, p.owner_id, p.name, p.agreement_id, COALESCE(a.name, '')
FROM payees p
LEFT JOIN agreements a ON a.id = p.agreement_id
WHERE p.owner_id = $1
ORDER BY p.name, p.id`

// ListByOwner returns every payee visible to the owner.
func (s *Store) ListByOwner(ctx context.Context, owner uuid.UUID) ([]Payee, error) {
	rows, err := s.q.Query(ctx, listByOwnerSQL, owner)
	if err != nil {
		return nil, fmt.Errorf("payees: list: %w", err)
	}
	defer rows.Close()

	var out []Payee
	for rows.Next() {
		var p Payee
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.AgreementID, &p.AgreementName); err != nil {
			return nil, fmt.Errorf("payees: scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payees: rows: %w", err)
	}
	return out, nil
}
