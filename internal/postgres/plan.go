package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hakotapp/hakot/internal/domain"
)

// Plan returns a plan by id.
func (s *Store) Plan(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	const op = "plan.get"

	var p domain.Plan
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, price_cents, currency, active, created_at
		FROM plans
		WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Currency, &p.Active, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(op, "plan", id.String())
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query plan")
	}
	return &p, nil
}

// ActivePlans lists plans open for new subscriptions, cheapest first.
func (s *Store) ActivePlans(ctx context.Context) ([]domain.Plan, error) {
	const op = "plan.list"

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, price_cents, currency, active, created_at
		FROM plans
		WHERE active
		ORDER BY price_cents ASC`,
	)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query plans")
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		var p domain.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Currency, &p.Active, &p.CreatedAt); err != nil {
			return nil, domain.Internal(err, op, "failed to scan plan")
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to read plans")
	}
	return plans, nil
}
