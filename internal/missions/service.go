package missions

import (
	"context"
	"strconv"

	"github.com/odyssey-erp/malimina/internal/finance/reconcile"
)

// RepositoryPort defines data access methods for work orders.
type RepositoryPort interface {
	ListByStatus(ctx context.Context, status WorkOrderStatus) ([]WorkOrder, error)
}

// Feed adapts paid work orders to the reconciliation input.
type Feed struct {
	repo RepositoryPort
}

// NewFeed builds Feed instance.
func NewFeed(repo RepositoryPort) *Feed {
	return &Feed{repo: repo}
}

// PaidWorkOrders returns every work order currently paid.
func (f *Feed) PaidWorkOrders(ctx context.Context) ([]reconcile.PaidWorkOrder, error) {
	orders, err := f.repo.ListByStatus(ctx, StatusPaid)
	if err != nil {
		return nil, err
	}
	out := make([]reconcile.PaidWorkOrder, 0, len(orders))
	for _, wo := range orders {
		out = append(out, reconcile.PaidWorkOrder{
			ID:                strconv.FormatInt(wo.ID, 10),
			Title:             wo.Title,
			CollaboratorValue: wo.CollaboratorValue,
			PaymentDate:       wo.PaidAt,
			UpdatedAt:         wo.UpdatedAt,
		})
	}
	return out, nil
}
