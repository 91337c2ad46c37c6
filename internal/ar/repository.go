package ar

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed reads of AR invoices.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByStatus returns invoices in status with their latest payment date.
func (r *Repository) ListByStatus(ctx context.Context, status InvoiceStatus) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.number, i.total, i.status, MAX(p.paid_at) AS paid_at, i.updated_at
		FROM ar_invoices i
		LEFT JOIN ar_payments p ON p.ar_invoice_id = i.id
		WHERE i.status = $1
		GROUP BY i.id
		ORDER BY i.id`, status)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Invoice, error) {
		var inv Invoice
		err := row.Scan(&inv.ID, &inv.Number, &inv.Total, &inv.Status, &inv.PaidAt, &inv.UpdatedAt)
		return inv, err
	})
}
