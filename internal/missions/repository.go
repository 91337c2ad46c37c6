package missions

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed reads of work orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByStatus returns work orders in status.
func (r *Repository) ListByStatus(ctx context.Context, status WorkOrderStatus) ([]WorkOrder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, collaborator_value, status, paid_at, updated_at
		FROM work_orders
		WHERE status = $1
		ORDER BY id`, status)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (WorkOrder, error) {
		var wo WorkOrder
		err := row.Scan(&wo.ID, &wo.Title, &wo.CollaboratorValue, &wo.Status, &wo.PaidAt, &wo.UpdatedAt)
		return wo, err
	})
}
